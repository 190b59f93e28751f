package imu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// MotionBlockLen is the size of the MPU-6050 burst read starting at
	// ACCEL_XOUT_H: accel x,y,z, temperature, gyro x,y,z.
	MotionBlockLen = 14
	// MagBlockLen is the size of the HMC5883L data output burst.
	MagBlockLen = 6
)

// AccelSample is a raw accelerometer reading in device counts.
type AccelSample struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// MagSample is a raw magnetometer reading in device counts, already in
// x, y, z order.
type MagSample struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// Motion is a decoded accel/gyro block. Only Accel feeds the heading math.
type Motion struct {
	Accel AccelSample
	Temp  int16
	Gx    int16
	Gy    int16
	Gz    int16
}

// IMURaw represents a single raw accel+gyro+mag sample.
type IMURaw struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Mx int16 `json:"mx"` // magnetometer
	My int16 `json:"my"`
	Mz int16 `json:"mz"`

	Temp int16 `json:"temp"`
}

// NewIMURaw merges one motion block and one magnetometer sample.
func NewIMURaw(m Motion, mag MagSample) IMURaw {
	return IMURaw{
		Ax: m.Accel.X, Ay: m.Accel.Y, Az: m.Accel.Z,
		Gx: m.Gx, Gy: m.Gy, Gz: m.Gz,
		Mx: mag.X, My: mag.Y, Mz: mag.Z,
		Temp: m.Temp,
	}
}

func be16(b []byte) int16 {
	return int16(binary.BigEndian.Uint16(b))
}

// DecodeMotion decodes a 14-byte big-endian accel/temp/gyro block.
func DecodeMotion(buf []byte) (Motion, error) {
	if len(buf) < MotionBlockLen {
		return Motion{}, errors.Errorf("motion block too short: %d bytes, need %d", len(buf), MotionBlockLen)
	}
	return Motion{
		Accel: AccelSample{X: be16(buf[0:]), Y: be16(buf[2:]), Z: be16(buf[4:])},
		Temp:  be16(buf[6:]),
		Gx:    be16(buf[8:]),
		Gy:    be16(buf[10:]),
		Gz:    be16(buf[12:]),
	}, nil
}

// DecodeMag decodes the HMC5883L output block. The device emits the axes
// as x, z, y.
func DecodeMag(buf []byte) (MagSample, error) {
	if len(buf) < MagBlockLen {
		return MagSample{}, errors.Errorf("mag block too short: %d bytes, need %d", len(buf), MagBlockLen)
	}
	return MagSample{
		X: be16(buf[0:]),
		Z: be16(buf[2:]),
		Y: be16(buf[4:]),
	}, nil
}

// EncodeMag is the inverse of DecodeMag, used by the simulated sensor.
func EncodeMag(m MagSample, buf []byte) {
	binary.BigEndian.PutUint16(buf[0:], uint16(m.X))
	binary.BigEndian.PutUint16(buf[2:], uint16(m.Z))
	binary.BigEndian.PutUint16(buf[4:], uint16(m.Y))
}

// EncodeMotion is the inverse of DecodeMotion.
func EncodeMotion(m Motion, buf []byte) {
	binary.BigEndian.PutUint16(buf[0:], uint16(m.Accel.X))
	binary.BigEndian.PutUint16(buf[2:], uint16(m.Accel.Y))
	binary.BigEndian.PutUint16(buf[4:], uint16(m.Accel.Z))
	binary.BigEndian.PutUint16(buf[6:], uint16(m.Temp))
	binary.BigEndian.PutUint16(buf[8:], uint16(m.Gx))
	binary.BigEndian.PutUint16(buf[10:], uint16(m.Gy))
	binary.BigEndian.PutUint16(buf[12:], uint16(m.Gz))
}
