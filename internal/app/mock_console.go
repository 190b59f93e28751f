// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/ecompass/internal/imu"
	"github.com/relabs-tech/ecompass/internal/orientation"
)

// RunMockConsole prints readings computed from the mock source, no
// hardware or broker needed.
func RunMockConsole(ctx context.Context, w io.Writer, clk clock.Clock, interval time.Duration) error {
	src := orientation.NewMockSource(clk, orientation.DefaultMockMotion)
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		r, err := mockReading(clk, src)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, FormatReading(r))
	}
}

func mockReading(clk clock.Clock, src orientation.Source) (orientation.Reading, error) {
	motion, mag, err := src.Next()
	if err != nil {
		return orientation.Reading{}, err
	}
	o := orientation.Compute(motion.Accel, mag)
	needle := orientation.DefaultDial.Needle(o.Azimuth)
	return orientation.NewReading(clk.Now(), o, needle, imu.NewIMURaw(motion, mag)), nil
}
