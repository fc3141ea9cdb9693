package gpio

import (
	"sync"

	"github.com/cjeanneret/catwatch/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Pull selects the internal pull resistor of an input pin.
type Pull int

const (
	PullOff Pull = iota
	PullDown
	PullUp
)

// Edge selects which transitions an input pin reports.
type Edge int

const (
	NoEdge Edge = iota
	RisingEdge
	FallingEdge
	BothEdges
)

func (e Edge) String() string {
	switch e {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	case BothEdges:
		return "both"
	default:
		return "none"
	}
}

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	SetPull(pin int, pull Pull) error
	// WatchEdge arms edge detection on an input pin. NoEdge disarms it.
	WatchEdge(pin int, edge Edge) error
	// EdgeDetected reports whether an armed edge occurred since the last call.
	// The flag is cleared by the call.
	EdgeDetected(pin int) (bool, error)
	Close() error
}

// MockDriver is a test implementation that logs actions and lets callers
// inject edges. Used for development on PC or testing.
// It is safe for concurrent use.
type MockDriver struct {
	mu      sync.Mutex
	levels  map[int]Level
	watched map[int]Edge
	pending map[int][]Level
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

// NewMockDriver returns an empty mock driver with every pin LOW.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		levels:  make(map[int]Level),
		watched: make(map[int]Edge),
		pending: make(map[int][]Level),
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	m.levels[pin] = level
	m.mu.Unlock()
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) SetPull(pin int, pull Pull) error {
	debug.GPIO("SetPull", pin, pull)
	return nil
}

func (m *MockDriver) WatchEdge(pin int, edge Edge) error {
	debug.GPIO("WatchEdge", pin, edge)
	m.mu.Lock()
	defer m.mu.Unlock()
	if edge == NoEdge {
		delete(m.watched, pin)
		delete(m.pending, pin)
		return nil
	}
	m.watched[pin] = edge
	return nil
}

// EdgeDetected pops one injected transition, sets the pin level to it and
// reports true. Transitions that do not match the armed edge are consumed
// silently, like the hardware would never latch them.
func (m *MockDriver) EdgeDetected(pin int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.pending[pin]) > 0 {
		level := m.pending[pin][0]
		m.pending[pin] = m.pending[pin][1:]
		m.levels[pin] = level
		if matches(m.watched[pin], level) {
			debug.GPIO("EdgeDetected", pin, level)
			return true, nil
		}
	}
	return false, nil
}

// InjectEdge queues a transition of pin to level. Ignored when the pin is not armed.
func (m *MockDriver) InjectEdge(pin int, level Level) {
	debug.GPIO("InjectEdge", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watched[pin]; !ok {
		return
	}
	m.pending[pin] = append(m.pending[pin], level)
}

// Level returns the last level written or injected for pin.
func (m *MockDriver) Level(pin int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

func matches(edge Edge, level Level) bool {
	switch edge {
	case RisingEdge:
		return level == High
	case FallingEdge:
		return level == Low
	case BothEdges:
		return true
	default:
		return false
	}
}
