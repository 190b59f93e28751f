// Package indicator drives the fault lamp.
package indicator

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// LED is an active-high lamp on a GPIO output.
type LED struct {
	pin gpio.PinOut
}

// NewLED wraps pin.
func NewLED(pin gpio.PinOut) *LED {
	return &LED{pin: pin}
}

// ByName looks the pin up in the periph registry. An empty name yields a
// Nop indicator.
func ByName(name string) (Indicator, error) {
	if name == "" {
		return Nop{}, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("indicator: gpio %q not found", name)
	}
	return NewLED(p), nil
}

// Indicator is a two-state lamp.
type Indicator interface {
	On() error
	Off() error
}

func (l *LED) On() error {
	return errors.Wrapf(l.pin.Out(gpio.High), "indicator %s on", l.pin)
}

func (l *LED) Off() error {
	return errors.Wrapf(l.pin.Out(gpio.Low), "indicator %s off", l.pin)
}

// Nop is used when no lamp is wired.
type Nop struct{}

func (Nop) On() error  { return nil }
func (Nop) Off() error { return nil }
