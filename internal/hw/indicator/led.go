package indicator

import (
	"fmt"

	"github.com/cjeanneret/catwatch/internal/debug"
	"github.com/cjeanneret/catwatch/internal/hw/gpio"
)

// LED is a status light on one output pin, active HIGH.
// A zero pin disables it: On and Off become no-ops.
type LED struct {
	gpio gpio.Driver
	pin  int
}

// NewLED configures pin as output and switches the LED off.
func NewLED(g gpio.Driver, pin int) (*LED, error) {
	if pin > 0 {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup indicator pin %d: %w", pin, err)
		}
		if err := g.WritePin(pin, gpio.Low); err != nil {
			return nil, fmt.Errorf("switch off indicator pin %d: %w", pin, err)
		}
	}
	return &LED{gpio: g, pin: pin}, nil
}

// On lights the LED.
func (l *LED) On() error {
	if l.pin <= 0 {
		return nil
	}
	debug.Trace("Indicator: pin %d on", l.pin)
	return l.gpio.WritePin(l.pin, gpio.High)
}

// Off switches the LED off.
func (l *LED) Off() error {
	if l.pin <= 0 {
		return nil
	}
	debug.Trace("Indicator: pin %d off", l.pin)
	return l.gpio.WritePin(l.pin, gpio.Low)
}
