// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/ecompass/internal/imu"
)

// MockMotion shapes the attitude produced by the mock source. Rates and
// amplitudes are in degrees.
type MockMotion struct {
	HeadingRate float64 // deg/s
	RollAmp     float64
	PitchAmp    float64

	// Field strengths in raw counts.
	Gravity    float64
	Horizontal float64
	Vertical   float64
}

// DefaultMockMotion turns slowly while rocking gently.
var DefaultMockMotion = MockMotion{
	HeadingRate: 30,
	RollAmp:     20,
	PitchAmp:    15,
	Gravity:     16384, // 1 g at ±2 g full scale
	Horizontal:  230,   // ~0.2 Ga at gain code 2
	Vertical:    410,
}

type mockSource struct {
	clk    clock.Clock
	start  float64
	motion MockMotion
}

// NewMockSource creates a mock source that generates smoothly changing
// raw samples. The returned samples are consistent with Compute: a level
// device reports the commanded heading exactly.
func NewMockSource(clk clock.Clock, motion MockMotion) Source {
	return &mockSource{
		clk:    clk,
		start:  seconds(clk),
		motion: motion,
	}
}

func seconds(clk clock.Clock) float64 {
	return float64(clk.Now().UnixNano()) / 1e9
}

func (m *mockSource) Next() (imu.Motion, imu.MagSample, error) {
	elapsed := seconds(m.clk) - m.start

	heading := deg2rad(math.Mod(elapsed*m.motion.HeadingRate, 360))
	roll := deg2rad(m.motion.RollAmp * math.Sin(elapsed))
	pitch := deg2rad(m.motion.PitchAmp * math.Cos(elapsed*0.7))

	acc, mag := bodyFrame(pitch, roll, heading, m.motion)
	return imu.Motion{Accel: acc}, mag, nil
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}

// bodyFrame rotates level-frame gravity and magnetic field into the sensor
// frame. It inverts the projection in Compute: h = Ry(pitch)·Rx(roll)·m.
func bodyFrame(pitch, roll, heading float64, motion MockMotion) (imu.AccelSample, imu.MagSample) {
	sinP, cosP := math.Sincos(pitch)
	sinR, cosR := math.Sincos(roll)

	toBody := func(x, y, z float64) (float64, float64, float64) {
		// Ry(pitch)^T
		u0 := x*cosP - z*sinP
		u1 := y
		u2 := x*sinP + z*cosP
		// Rx(roll)^T
		return u0, u1*cosR + u2*sinR, -u1*sinR + u2*cosR
	}

	gx, gy, gz := toBody(0, 0, motion.Gravity)
	sinH, cosH := math.Sincos(heading)
	mx, my, mz := toBody(motion.Horizontal*cosH, motion.Horizontal*sinH, motion.Vertical)

	return imu.AccelSample{X: clamp16(gx), Y: clamp16(gy), Z: clamp16(gz)},
		imu.MagSample{X: clamp16(mx), Y: clamp16(my), Z: clamp16(mz)}
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
