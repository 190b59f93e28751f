package indicator

import (
	"testing"

	"go.viam.com/test"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestLED(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", Num: 17}
	led := NewLED(pin)

	test.That(t, led.On(), test.ShouldBeNil)
	test.That(t, pin.L, test.ShouldEqual, gpio.High)
	test.That(t, led.Off(), test.ShouldBeNil)
	test.That(t, pin.L, test.ShouldEqual, gpio.Low)
}

func TestByNameEmptyIsNop(t *testing.T) {
	ind, err := ByName("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ind, test.ShouldResemble, Nop{})
	test.That(t, ind.On(), test.ShouldBeNil)
	test.That(t, ind.Off(), test.ShouldBeNil)
}

func TestByNameUnknown(t *testing.T) {
	_, err := ByName("NO_SUCH_PIN_42")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not found")
}
