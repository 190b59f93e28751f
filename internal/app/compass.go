// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/display/displaytest"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ecompass/internal/compass"
	"github.com/relabs-tech/ecompass/internal/config"
	"github.com/relabs-tech/ecompass/internal/indicator"
	"github.com/relabs-tech/ecompass/internal/oled"
	"github.com/relabs-tech/ecompass/internal/orientation"
	"github.com/relabs-tech/ecompass/internal/sensors"
	"github.com/relabs-tech/ecompass/internal/telemetry"
)

// devices is what the loop drives, real or simulated.
type devices struct {
	display *oled.Display
	mag     compass.Magnetometer
	acc     compass.Accelerometer
	lamp    indicator.Indicator
	close   func() error
}

func openHardware(cfg *config.Config, logger golog.Logger) (*devices, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, errors.Wrapf(err, "open I2C bus %q", cfg.I2CBus)
	}
	lamp, err := indicator.ByName(cfg.FaultLEDPin)
	if err != nil {
		bus.Close()
		return nil, err
	}
	logger.Infof("compass: I2C bus %s, display 0x%02X, mag 0x%02X, accel 0x%02X",
		bus, cfg.DisplayI2CAddr, cfg.MagI2CAddr, cfg.AccelI2CAddr)

	return &devices{
		display: oled.New(oled.NewSSD1306(bus, cfg.DisplayI2CAddr)),
		mag: sensors.NewHMC5883L(bus, sensors.HMC5883LOpts{
			Addr:       cfg.MagI2CAddr,
			AvgSamples: cfg.MagAvgSamples,
			ODRHz:      cfg.MagODRHz,
			GainCode:   cfg.MagGainCode,
			Mode:       cfg.MagMode,
		}),
		acc: sensors.NewMPU6050(bus, sensors.MPU6050Opts{
			Addr: cfg.AccelI2CAddr,
			Mode: cfg.AccelMode,
		}),
		lamp:  lamp,
		close: bus.Close,
	}, nil
}

// openSimulated renders into memory and reads a slowly turning, rocking
// device.
func openSimulated(clk clock.Clock) *devices {
	sim := sensors.NewSimulated(orientation.NewMockSource(clk, orientation.DefaultMockMotion))
	panel := &displaytest.Drawer{Img: image.NewNRGBA(image.Rect(0, 0, oled.Width, oled.Height))}
	return &devices{
		display: oled.New(panel),
		mag:     sim.Magnetometer(),
		acc:     sim.Accelerometer(),
		lamp:    indicator.Nop{},
		close:   func() error { return nil },
	}
}

// publishers sets up the configured telemetry outputs. Outputs that fail
// to open are logged and skipped; the compass runs without them.
func publishers(cfg *config.Config, logger golog.Logger) (compass.Publisher, func()) {
	var (
		pubs    telemetry.Multi
		closers []func()
	)
	if cfg.MQTTBroker != "" {
		client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDCompass)
		if err != nil {
			logger.Warnf("compass: MQTT disabled: %v", err)
		} else {
			logger.Infof("compass: publishing to %s on %s", cfg.TopicHeading, cfg.MQTTBroker)
			pubs = append(pubs, telemetry.NewMQTTPublisher(client, cfg.TopicHeading))
			closers = append(closers, func() { client.Disconnect(250) })
		}
	}
	if cfg.NMEASerialPort != "" {
		port, err := openSerial(cfg.NMEASerialPort, cfg.NMEABaudRate)
		if err != nil {
			logger.Warnf("compass: NMEA disabled: %v", err)
		} else {
			logger.Infof("compass: NMEA %sHDG on %s at %d baud", cfg.NMEATalker, cfg.NMEASerialPort, cfg.NMEABaudRate)
			pubs = append(pubs, telemetry.NewNMEAWriter(port, cfg.NMEATalker))
			closers = append(closers, func() { port.Close() })
		}
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(pubs) == 0 {
		return nil, closeAll
	}
	return pubs, closeAll
}

// RunCompass runs the e-compass until ctx is cancelled. After a device
// fault the lamp stays lit and RunCompass waits for ctx before returning
// the fault.
func RunCompass(ctx context.Context, simulate bool) error {
	cfg := config.Get()
	logger, err := NewLogger("ecompass", cfg.LogLevel)
	if err != nil {
		return err
	}

	clk := clock.New()
	var devs *devices
	if simulate {
		logger.Info("compass: using simulated sensors and display")
		devs = openSimulated(clk)
	} else {
		devs, err = openHardware(cfg, logger)
		if err != nil {
			return err
		}
	}
	defer devs.close()

	pub, closePubs := publishers(cfg, logger)
	defer closePubs()

	loop, err := compass.New(compass.Options{
		Screen:        devs.display,
		Magnetometer:  devs.mag,
		Accelerometer: devs.acc,
		Indicator:     devs.lamp,
		Publisher:     pub,
		Interval:      time.Duration(cfg.SampleInterval) * time.Millisecond,
		LampTest:      time.Duration(cfg.LampTestMS) * time.Millisecond,
		Clock:         clk,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	err = loop.Run(ctx)
	switch {
	case errors.Is(err, compass.ErrFaulted):
		logger.Errorf("compass: halted: %v", err)
		<-ctx.Done()
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Info("compass: shutting down")
		if herr := devs.display.Halt(); herr != nil {
			logger.Warnf("compass: display halt: %v", herr)
		}
		return nil
	default:
		return err
	}
}
