package compass

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrFaulted is returned by every call made after the loop has faulted.
var ErrFaulted = errors.New("compass: faulted")

// Device names used in DeviceError.
const (
	DeviceDisplay       = "display"
	DeviceMagnetometer  = "magnetometer"
	DeviceAccelerometer = "accelerometer"
)

// DeviceError reports the device operation that faulted the loop. It
// matches ErrFaulted under errors.Is.
type DeviceError struct {
	Device string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("compass: %s %s: %v", e.Device, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is reports a DeviceError as a fault.
func (e *DeviceError) Is(target error) bool {
	return target == ErrFaulted
}
