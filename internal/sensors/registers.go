// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
)

// BitField describes one field inside a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo describes one device register.
type RegisterInfo struct {
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// Addr parses the hex address.
func (r RegisterInfo) Addr() (byte, error) {
	return ParseHexByte(r.Address)
}

// ParseHexByte parses "0x1C" style values.
func ParseHexByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
	if err != nil {
		return 0, errors.Errorf("invalid hex byte %q", s)
	}
	return byte(v), nil
}

// HMC5883LRegisterMap returns metadata for the HMC5883L registers.
func HMC5883LRegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: "0x00", Name: "CRA", Description: "Configuration Register A", Access: "RW", Default: "0x10",
			BitFields: []BitField{
				{Bits: "6:5", Name: "MA", Description: "Samples averaged per output", Values: "0=1, 1=2, 2=4, 3=8"},
				{Bits: "4:2", Name: "DO", Description: "Output data rate", Values: "0=0.75Hz, 1=1.5Hz, 2=3Hz, 3=7.5Hz, 4=15Hz, 5=30Hz, 6=75Hz"},
				{Bits: "1:0", Name: "MS", Description: "Measurement mode", Values: "0=Normal, 1=Positive bias, 2=Negative bias"},
			}},
		{Address: "0x01", Name: "CRB", Description: "Configuration Register B", Access: "RW", Default: "0x20",
			BitFields: []BitField{
				{Bits: "7:5", Name: "GN", Description: "Gain", Values: "0=±0.88Ga, 1=±1.3Ga, 2=±1.9Ga, 3=±2.5Ga, 4=±4.0Ga, 5=±4.7Ga, 6=±5.6Ga, 7=±8.1Ga"},
			}},
		{Address: "0x02", Name: "MODE", Description: "Mode Register", Access: "RW", Default: "0x01",
			BitFields: []BitField{
				{Bits: "7", Name: "HS", Description: "High speed I2C", Values: "0=Off, 1=3400kHz"},
				{Bits: "1:0", Name: "MD", Description: "Operating mode", Values: "0=Continuous, 1=Single, 2=Idle, 3=Idle"},
			}},
		{Address: "0x03", Name: "DXRA", Description: "Data Output X MSB", Access: "R"},
		{Address: "0x04", Name: "DXRB", Description: "Data Output X LSB", Access: "R"},
		{Address: "0x05", Name: "DZRA", Description: "Data Output Z MSB", Access: "R"},
		{Address: "0x06", Name: "DZRB", Description: "Data Output Z LSB", Access: "R"},
		{Address: "0x07", Name: "DYRA", Description: "Data Output Y MSB", Access: "R"},
		{Address: "0x08", Name: "DYRB", Description: "Data Output Y LSB", Access: "R"},
		{Address: "0x09", Name: "SR", Description: "Status Register", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "1", Name: "LOCK", Description: "Data output registers locked", Values: "0=Unlocked, 1=Locked"},
				{Bits: "0", Name: "RDY", Description: "Data ready", Values: "0=Not ready, 1=Ready"},
			}},
		{Address: "0x0A", Name: "IRA", Description: "Identification Register A", Access: "R", Default: "0x48"},
		{Address: "0x0B", Name: "IRB", Description: "Identification Register B", Access: "R", Default: "0x34"},
		{Address: "0x0C", Name: "IRC", Description: "Identification Register C", Access: "R", Default: "0x33"},
	}
}

// MPU6050RegisterMap returns metadata for the MPU-6050 registers used by
// the compass.
func MPU6050RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: "0x19", Name: "SMPLRT_DIV", Description: "Sample Rate Divider", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "SMPLRT_DIV", Description: "Sample Rate = Gyro_Output_Rate / (1 + SMPLRT_DIV)", Values: "0-255"},
			}},
		{Address: "0x1A", Name: "CONFIG", Description: "Configuration (DLPF)", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "5:3", Name: "EXT_SYNC_SET", Description: "External FSYNC pin sampling", Values: "0=Disabled"},
				{Bits: "2:0", Name: "DLPF_CFG", Description: "Digital Low Pass Filter", Values: "0=260Hz, 1=184Hz, 2=94Hz, 3=44Hz, 4=21Hz, 5=10Hz, 6=5Hz"},
			}},
		{Address: "0x1B", Name: "GYRO_CONFIG", Description: "Gyroscope Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:3", Name: "FS_SEL", Description: "Gyro Full Scale Range", Values: "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s"},
			}},
		{Address: "0x1C", Name: "ACCEL_CONFIG", Description: "Accelerometer Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "XA_ST", Description: "X Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "6", Name: "YA_ST", Description: "Y Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "5", Name: "ZA_ST", Description: "Z Accel self-test", Values: "0=Disabled, 1=Enabled"},
				{Bits: "4:3", Name: "AFS_SEL", Description: "Accel Full Scale Range", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
			}},
		{Address: "0x37", Name: "INT_PIN_CFG", Description: "INT Pin / Bypass Enable Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7", Name: "INT_LEVEL", Description: "INT pin active low", Values: "0=Active high, 1=Active low"},
				{Bits: "5", Name: "LATCH_INT_EN", Description: "Latch INT pin", Values: "0=50us pulse, 1=Latch until cleared"},
				{Bits: "1", Name: "I2C_BYPASS_EN", Description: "Auxiliary I2C bypass", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x38", Name: "INT_ENABLE", Description: "Interrupt Enable", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "0", Name: "DATA_RDY_EN", Description: "Data ready interrupt", Values: "0=Disabled, 1=Enabled"},
			}},
		{Address: "0x3A", Name: "INT_STATUS", Description: "Interrupt Status", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "0", Name: "DATA_RDY_INT", Description: "Data ready interrupt status"},
			}},

		{Address: "0x3B", Name: "ACCEL_XOUT_H", Description: "Accelerometer X-Axis High Byte", Access: "R"},
		{Address: "0x3C", Name: "ACCEL_XOUT_L", Description: "Accelerometer X-Axis Low Byte", Access: "R"},
		{Address: "0x3D", Name: "ACCEL_YOUT_H", Description: "Accelerometer Y-Axis High Byte", Access: "R"},
		{Address: "0x3E", Name: "ACCEL_YOUT_L", Description: "Accelerometer Y-Axis Low Byte", Access: "R"},
		{Address: "0x3F", Name: "ACCEL_ZOUT_H", Description: "Accelerometer Z-Axis High Byte", Access: "R"},
		{Address: "0x40", Name: "ACCEL_ZOUT_L", Description: "Accelerometer Z-Axis Low Byte", Access: "R"},
		{Address: "0x41", Name: "TEMP_OUT_H", Description: "Temperature High Byte", Access: "R"},
		{Address: "0x42", Name: "TEMP_OUT_L", Description: "Temperature Low Byte", Access: "R"},
		{Address: "0x43", Name: "GYRO_XOUT_H", Description: "Gyroscope X-Axis High Byte", Access: "R"},
		{Address: "0x44", Name: "GYRO_XOUT_L", Description: "Gyroscope X-Axis Low Byte", Access: "R"},
		{Address: "0x45", Name: "GYRO_YOUT_H", Description: "Gyroscope Y-Axis High Byte", Access: "R"},
		{Address: "0x46", Name: "GYRO_YOUT_L", Description: "Gyroscope Y-Axis Low Byte", Access: "R"},
		{Address: "0x47", Name: "GYRO_ZOUT_H", Description: "Gyroscope Z-Axis High Byte", Access: "R"},
		{Address: "0x48", Name: "GYRO_ZOUT_L", Description: "Gyroscope Z-Axis Low Byte", Access: "R"},

		{Address: "0x6B", Name: "PWR_MGMT_1", Description: "Power Management 1", Access: "RW", Default: "0x40",
			BitFields: []BitField{
				{Bits: "7", Name: "DEVICE_RESET", Description: "Reset all registers", Values: "1=Reset"},
				{Bits: "6", Name: "SLEEP", Description: "Sleep mode", Values: "0=Awake, 1=Sleep"},
				{Bits: "5", Name: "CYCLE", Description: "Cycle between sleep and sampling", Values: "0=Off, 1=On"},
				{Bits: "3", Name: "TEMP_DIS", Description: "Disable temperature sensor", Values: "0=Enabled, 1=Disabled"},
				{Bits: "2:0", Name: "CLKSEL", Description: "Clock source", Values: "0=Internal 8MHz, 1=PLL X gyro, 2=PLL Y gyro, 3=PLL Z gyro, 7=Stop"},
			}},
		{Address: "0x6C", Name: "PWR_MGMT_2", Description: "Power Management 2", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:6", Name: "LP_WAKE_CTRL", Description: "Wake-up rate in cycle mode", Values: "0=1.25Hz, 1=5Hz, 2=20Hz, 3=40Hz"},
				{Bits: "5:3", Name: "STBY_XA/YA/ZA", Description: "Accelerometer axis standby", Values: "1=Standby"},
				{Bits: "2:0", Name: "STBY_XG/YG/ZG", Description: "Gyroscope axis standby", Values: "1=Standby"},
			}},
		{Address: "0x75", Name: "WHO_AM_I", Description: "Device identity", Access: "R", Default: "0x68",
			BitFields: []BitField{
				{Bits: "6:1", Name: "WHO_AM_I", Description: "Upper 6 bits of the I2C address", Values: "0x34"},
			}},
	}
}

// RegisterPort gives raw register access to one I2C device for debugging.
// Writes are limited to registers the map marks writable.
type RegisterPort struct {
	Device string
	dev    i2c.Dev
	regs   []RegisterInfo
}

// NewRegisterPort returns a port for the device at addr described by regs.
func NewRegisterPort(device string, bus i2c.Bus, addr uint16, regs []RegisterInfo) *RegisterPort {
	return &RegisterPort{
		Device: device,
		dev:    i2c.Dev{Bus: bus, Addr: addr},
		regs:   regs,
	}
}

// Map returns the register metadata.
func (p *RegisterPort) Map() []RegisterInfo {
	return p.regs
}

// Read reads one register.
func (p *RegisterPort) Read(reg byte) (byte, error) {
	b := make([]byte, 1)
	if err := p.dev.Tx([]byte{reg}, b); err != nil {
		return 0, errors.Wrapf(err, "%s: read 0x%02X", p.Device, reg)
	}
	return b[0], nil
}

// Write writes one register if the map allows it.
func (p *RegisterPort) Write(reg, val byte) error {
	info, ok := p.lookup(reg)
	if !ok {
		return errors.Errorf("%s: register 0x%02X not in map", p.Device, reg)
	}
	if !strings.Contains(info.Access, "W") {
		return errors.Errorf("%s: register %s is read-only", p.Device, info.Name)
	}
	if err := p.dev.Tx([]byte{reg, val}, nil); err != nil {
		return errors.Wrapf(err, "%s: write 0x%02X", p.Device, reg)
	}
	return nil
}

// ReadAll reads every mapped register, keyed by address.
func (p *RegisterPort) ReadAll() (map[byte]byte, error) {
	out := make(map[byte]byte, len(p.regs))
	for _, r := range p.regs {
		addr, err := r.Addr()
		if err != nil {
			return nil, err
		}
		v, err := p.Read(addr)
		if err != nil {
			return nil, err
		}
		out[addr] = v
	}
	return out, nil
}

func (p *RegisterPort) lookup(reg byte) (RegisterInfo, bool) {
	for _, r := range p.regs {
		if a, err := r.Addr(); err == nil && a == reg {
			return r, true
		}
	}
	return RegisterInfo{}, false
}

// FormatHex formats a register value the way the maps do.
func FormatHex(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}
