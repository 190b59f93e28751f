// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"tinygo.org/x/drivers/mpu6050"

	"github.com/relabs-tech/ecompass/internal/imu"
)

// MPU6050Addr is the default address with AD0 low.
const MPU6050Addr = mpu6050.Address

const mpuWhoAmI = 0x68

// Low-power accelerometer mode: PWR_MGMT_2 selects a 40 Hz wake-up rate and
// parks the gyroscope, PWR_MGMT_1 enables cycling with the temperature
// sensor off.
const (
	mpuPwr2LowPower = 0b11<<6 | 0b111 // LP_WAKE_CTRL=3, STBY_XG|YG|ZG
	mpuPwr1Cycle    = 1<<5 | 1<<3     // CYCLE, TEMP_DIS
)

// MPU6050Opts holds initialization options.
type MPU6050Opts struct {
	Addr uint16
	Mode string // "normal" or "low_power"
}

// MPU6050 is the accelerometer half of an MPU-6050 on I2C. Register layout
// and clock/range setup come from the tinygo driver; register access goes
// through periph so that errors surface.
type MPU6050 struct {
	dev  i2c.Dev
	tg   mpu6050.Device
	opts MPU6050Opts
}

// NewMPU6050 returns a driver handle. It does not touch the bus.
func NewMPU6050(bus i2c.Bus, opts MPU6050Opts) *MPU6050 {
	if opts.Addr == 0 {
		opts.Addr = MPU6050Addr
	}
	tg := mpu6050.New(bus)
	tg.Address = opts.Addr
	return &MPU6050{
		dev:  i2c.Dev{Bus: bus, Addr: opts.Addr},
		tg:   tg,
		opts: opts,
	}
}

func (m *MPU6050) String() string {
	return fmt.Sprintf("MPU6050{0x%02X, %s}", m.opts.Addr, m.opts.Mode)
}

// Init verifies WHO_AM_I, wakes the device on its internal oscillator with
// a ±2 g range and, in low_power mode, switches to accelerometer-only
// cycling.
func (m *MPU6050) Init() error {
	id := make([]byte, 1)
	if err := m.dev.Tx([]byte{mpu6050.WHO_AM_I}, id); err != nil {
		return errors.Wrap(err, "mpu6050: read WHO_AM_I")
	}
	if id[0] != mpuWhoAmI {
		return errors.Errorf("mpu6050: unexpected WHO_AM_I 0x%02X", id[0])
	}
	if err := m.tg.Configure(); err != nil {
		return errors.Wrap(err, "mpu6050: set clock source")
	}
	if err := m.tg.SetFullScaleAccelRange(mpu6050.AFS_RANGE_2G); err != nil {
		return errors.Wrap(err, "mpu6050: set accel range")
	}

	switch m.opts.Mode {
	case "", "normal":
		return nil
	case "low_power":
		if err := m.writeReg(mpu6050.PWR_MGMT_2, mpuPwr2LowPower); err != nil {
			return errors.Wrap(err, "mpu6050: write PWR_MGMT_2")
		}
		if err := m.writeReg(mpu6050.PWR_MGMT_1, mpuPwr1Cycle); err != nil {
			return errors.Wrap(err, "mpu6050: write PWR_MGMT_1")
		}
		return nil
	default:
		return errors.Errorf("mpu6050: unknown mode %q", m.opts.Mode)
	}
}

// ReadRaw reads the 14-byte motion block starting at ACCEL_XOUT_H.
func (m *MPU6050) ReadRaw(buf []byte) error {
	if len(buf) < imu.MotionBlockLen {
		return errors.Errorf("mpu6050: buffer too short: %d", len(buf))
	}
	if err := m.dev.Tx([]byte{mpu6050.ACCEL_XOUT_H}, buf[:imu.MotionBlockLen]); err != nil {
		return errors.Wrap(err, "mpu6050: read motion block")
	}
	return nil
}

func (m *MPU6050) writeReg(reg, val byte) error {
	return m.dev.Tx([]byte{reg, val}, nil)
}
