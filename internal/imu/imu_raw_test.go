package imu

import (
	"testing"

	"go.viam.com/test"
)

func TestDecodeMagReordersAxes(t *testing.T) {
	// x=0x0102, z=0xFFFE (-2), y=0x8000 (-32768)
	buf := []byte{0x01, 0x02, 0xFF, 0xFE, 0x80, 0x00}
	m, err := DecodeMag(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldResemble, MagSample{X: 0x0102, Y: -32768, Z: -2})
}

func TestDecodeMotion(t *testing.T) {
	buf := []byte{
		0x40, 0x00, // ax 16384
		0xC0, 0x00, // ay -16384
		0x00, 0x10, // az 16
		0xF0, 0x00, // temp
		0x00, 0x01, // gx
		0xFF, 0xFF, // gy -1
		0x7F, 0xFF, // gz
	}
	m, err := DecodeMotion(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Accel, test.ShouldResemble, AccelSample{X: 16384, Y: -16384, Z: 16})
	test.That(t, m.Temp, test.ShouldEqual, int16(-4096))
	test.That(t, m.Gx, test.ShouldEqual, int16(1))
	test.That(t, m.Gy, test.ShouldEqual, int16(-1))
	test.That(t, m.Gz, test.ShouldEqual, int16(32767))
}

func TestDecodeShortBuffers(t *testing.T) {
	_, err := DecodeMag(make([]byte, 5))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = DecodeMotion(make([]byte, 6))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEncodeInvertsDecode(t *testing.T) {
	mag := MagSample{X: -120, Y: 300, Z: -7}
	buf := make([]byte, MagBlockLen)
	EncodeMag(mag, buf)
	got, err := DecodeMag(buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, mag)

	motion := Motion{Accel: AccelSample{X: 1, Y: -2, Z: 16384}, Temp: -500, Gx: 3, Gy: 4, Gz: -5}
	mb := make([]byte, MotionBlockLen)
	EncodeMotion(motion, mb)
	gotMotion, err := DecodeMotion(mb)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, gotMotion, test.ShouldResemble, motion)

	raw := NewIMURaw(motion, mag)
	test.That(t, raw.Ax, test.ShouldEqual, int16(1))
	test.That(t, raw.Mz, test.ShouldEqual, int16(-7))
	test.That(t, raw.Temp, test.ShouldEqual, int16(-500))
}
