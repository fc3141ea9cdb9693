package gpio

import (
	"fmt"

	"github.com/cjeanneret/catwatch/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins  map[int]rpio.Pin
	edges map[int]Edge
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins:  make(map[int]rpio.Pin),
		edges: make(map[int]Edge),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	r.pins[pin] = p

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, err := r.inputPin(pin)
	if err != nil {
		return Low, err
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) SetPull(pin int, pull Pull) error {
	debug.GPIO("SetPull", pin, pull)

	p, err := r.inputPin(pin)
	if err != nil {
		return err
	}

	switch pull {
	case PullOff:
		p.PullOff()
	case PullDown:
		p.PullDown()
	case PullUp:
		p.PullUp()
	default:
		return fmt.Errorf("unknown pull mode: %d", pull)
	}
	return nil
}

func (r *RPiDriver) WatchEdge(pin int, edge Edge) error {
	debug.GPIO("WatchEdge", pin, edge)

	p, err := r.inputPin(pin)
	if err != nil {
		return err
	}

	switch edge {
	case NoEdge:
		p.Detect(rpio.NoEdge)
		delete(r.edges, pin)
		return nil
	case RisingEdge:
		p.Detect(rpio.RiseEdge)
	case FallingEdge:
		p.Detect(rpio.FallEdge)
	case BothEdges:
		p.Detect(rpio.AnyEdge)
	default:
		return fmt.Errorf("unknown edge: %d", edge)
	}
	r.edges[pin] = edge
	return nil
}

func (r *RPiDriver) EdgeDetected(pin int) (bool, error) {
	if _, ok := r.edges[pin]; !ok {
		return false, fmt.Errorf("edge detection not armed on pin %d", pin)
	}
	return r.pins[pin].EdgeDetected(), nil
}

// inputPin returns the pin, configuring it as input on first use.
func (r *RPiDriver) inputPin(pin int) (rpio.Pin, error) {
	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupPin(pin, Input); err != nil {
			return 0, err
		}
		p = r.pins[pin]
	}
	return p, nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Disarm edge detection before releasing the memory map
	for pin := range r.edges {
		r.pins[pin].Detect(rpio.NoEdge)
	}

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
