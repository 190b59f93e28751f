// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"

	"github.com/relabs-tech/ecompass/internal/imu"
)

// I2C register map for the HMC5883L.
const (
	hmcRegCRA  = 0x00
	hmcRegCRB  = 0x01
	hmcRegMode = 0x02
	hmcRegData = 0x03 // X MSB, X LSB, Z MSB, Z LSB, Y MSB, Y LSB
	hmcRegIDA  = 0x0A
)

// HMC5883LAddr is the fixed I2C address of the HMC5883L.
const HMC5883LAddr = 0x1E

const (
	hmcModeContinuous = 0x00
	hmcModeSingle     = 0x01
)

// HMC5883LOpts holds initialization options.
type HMC5883LOpts struct {
	Addr       uint16
	AvgSamples int    // 1, 2, 4 or 8
	ODRHz      int    // 1 (0.75), 2 (1.5), 3, 7 (7.5), 15, 30, 75
	GainCode   byte   // 0..7, 2 = ±1.9 Ga
	Mode       string // "continuous" or "single"
}

// DefaultHMC5883LOpts is 8-sample averaging at 15 Hz, ±1.9 Ga, continuous.
var DefaultHMC5883LOpts = HMC5883LOpts{
	Addr:       HMC5883LAddr,
	AvgSamples: 8,
	ODRHz:      15,
	GainCode:   2,
	Mode:       "continuous",
}

// HMC5883L is a 3-axis magnetometer on I2C.
type HMC5883L struct {
	dev    i2c.Dev
	opts   HMC5883LOpts
	single bool
}

// NewHMC5883L returns a driver handle. It does not touch the bus.
func NewHMC5883L(bus i2c.Bus, opts HMC5883LOpts) *HMC5883L {
	if opts.Addr == 0 {
		opts.Addr = HMC5883LAddr
	}
	return &HMC5883L{
		dev:    i2c.Dev{Bus: bus, Addr: opts.Addr},
		opts:   opts,
		single: opts.Mode == "single",
	}
}

func (h *HMC5883L) String() string {
	return fmt.Sprintf("HMC5883L{0x%02X}", h.opts.Addr)
}

// configA builds CRA: averaging in bits 6:5, output rate in bits 4:2,
// normal measurement (no bias) in bits 1:0.
func configA(avg, odrHz int) (byte, error) {
	var cra byte
	switch avg {
	case 1:
	case 2:
		cra |= 0b01 << 5
	case 4:
		cra |= 0b10 << 5
	case 8:
		cra |= 0b11 << 5
	default:
		return 0, errors.Errorf("unsupported averaging %d", avg)
	}
	rates := map[int]byte{1: 0b000, 2: 0b001, 3: 0b010, 7: 0b011, 15: 0b100, 30: 0b101, 75: 0b110}
	code, ok := rates[odrHz]
	if !ok {
		return 0, errors.Errorf("unsupported output rate %d Hz", odrHz)
	}
	return cra | code<<2, nil
}

// Init checks the identity registers and writes the configuration.
func (h *HMC5883L) Init() error {
	id := make([]byte, 3)
	if err := h.readRegBlock(hmcRegIDA, id); err != nil {
		return errors.Wrap(err, "hmc5883l: read id")
	}
	if string(id) != "H43" {
		return errors.Errorf("hmc5883l: unexpected id %q", id)
	}

	cra, err := configA(h.opts.AvgSamples, h.opts.ODRHz)
	if err != nil {
		return errors.Wrap(err, "hmc5883l")
	}
	if h.opts.GainCode > 7 {
		return errors.Errorf("hmc5883l: gain code %d out of range", h.opts.GainCode)
	}
	if err := h.writeReg(hmcRegCRA, cra); err != nil {
		return errors.Wrap(err, "hmc5883l: write CRA")
	}
	if err := h.writeReg(hmcRegCRB, h.opts.GainCode<<5); err != nil {
		return errors.Wrap(err, "hmc5883l: write CRB")
	}
	if err := h.writeReg(hmcRegMode, h.modeByte()); err != nil {
		return errors.Wrap(err, "hmc5883l: write mode")
	}
	return nil
}

func (h *HMC5883L) modeByte() byte {
	if h.single {
		return hmcModeSingle
	}
	return hmcModeContinuous
}

// ReadRaw reads the six data bytes in device order (x, z, y). In single
// mode it also triggers the next conversion, so each read returns the
// measurement started by the previous one.
func (h *HMC5883L) ReadRaw(buf []byte) error {
	if len(buf) < imu.MagBlockLen {
		return errors.Errorf("hmc5883l: buffer too short: %d", len(buf))
	}
	if err := h.readRegBlock(hmcRegData, buf[:imu.MagBlockLen]); err != nil {
		return errors.Wrap(err, "hmc5883l: read data")
	}
	if h.single {
		if err := h.writeReg(hmcRegMode, hmcModeSingle); err != nil {
			return errors.Wrap(err, "hmc5883l: trigger")
		}
	}
	return nil
}

func (h *HMC5883L) writeReg(reg, val byte) error {
	return h.dev.Tx([]byte{reg, val}, nil)
}

func (h *HMC5883L) readRegBlock(reg byte, dst []byte) error {
	return h.dev.Tx([]byte{reg}, dst)
}
