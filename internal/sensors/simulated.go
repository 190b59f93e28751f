package sensors

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/relabs-tech/ecompass/internal/imu"
	"github.com/relabs-tech/ecompass/internal/orientation"
)

// Simulated is a magnetometer/accelerometer pair fed by one orientation
// source. A magnetometer read pulls the next sample; the following
// accelerometer read returns the motion half of that same sample, so a
// cycle sees one consistent attitude.
type Simulated struct {
	mu      sync.Mutex
	src     orientation.Source
	pending *imu.Motion
}

// NewSimulated wraps src.
func NewSimulated(src orientation.Source) *Simulated {
	return &Simulated{src: src}
}

// Magnetometer returns the magnetometer half of the pair.
func (s *Simulated) Magnetometer() *SimulatedMagnetometer {
	return &SimulatedMagnetometer{s: s}
}

// Accelerometer returns the accelerometer half of the pair.
func (s *Simulated) Accelerometer() *SimulatedAccelerometer {
	return &SimulatedAccelerometer{s: s}
}

func (s *Simulated) readMag(buf []byte) error {
	if len(buf) < imu.MagBlockLen {
		return errors.Errorf("simulated mag: buffer too short: %d", len(buf))
	}
	motion, mag, err := s.src.Next()
	if err != nil {
		return errors.Wrap(err, "simulated mag")
	}
	s.mu.Lock()
	s.pending = &motion
	s.mu.Unlock()
	imu.EncodeMag(mag, buf)
	return nil
}

func (s *Simulated) readMotion(buf []byte) error {
	if len(buf) < imu.MotionBlockLen {
		return errors.Errorf("simulated accel: buffer too short: %d", len(buf))
	}
	s.mu.Lock()
	motion := s.pending
	s.pending = nil
	s.mu.Unlock()
	if motion == nil {
		m, _, err := s.src.Next()
		if err != nil {
			return errors.Wrap(err, "simulated accel")
		}
		motion = &m
	}
	imu.EncodeMotion(*motion, buf)
	return nil
}

// SimulatedMagnetometer serves HMC5883L-format blocks.
type SimulatedMagnetometer struct{ s *Simulated }

func (m *SimulatedMagnetometer) Init() error              { return nil }
func (m *SimulatedMagnetometer) ReadRaw(buf []byte) error { return m.s.readMag(buf) }
func (m *SimulatedMagnetometer) String() string           { return "simulated-magnetometer" }

// SimulatedAccelerometer serves MPU-6050-format blocks.
type SimulatedAccelerometer struct{ s *Simulated }

func (a *SimulatedAccelerometer) Init() error              { return nil }
func (a *SimulatedAccelerometer) ReadRaw(buf []byte) error { return a.s.readMotion(buf) }
func (a *SimulatedAccelerometer) String() string           { return "simulated-accelerometer" }
