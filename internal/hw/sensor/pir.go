package sensor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cjeanneret/catwatch/internal/debug"
	"github.com/cjeanneret/catwatch/internal/hw/gpio"
)

// DefaultPollInterval is how often the edge-detect flag is checked while idle.
const DefaultPollInterval = 10 * time.Millisecond

// Config holds the hardware configuration for a PIR motion sensor.
type Config struct {
	Pin          int           // BCM pin wired to the sensor OUT line
	Trigger      gpio.Edge     // transitions that count as motion
	Pull         gpio.Pull     // internal pull resistor
	PollInterval time.Duration // 0 = DefaultPollInterval
}

// PIR is a passive infrared motion sensor on a single digital input.
// It owns the pin from NewPIR until Close.
type PIR struct {
	gpio gpio.Driver
	cfg  Config
}

// NewPIR configures the pin as input and arms edge detection.
// Any error here means the sensor is unusable.
func NewPIR(g gpio.Driver, cfg Config) (*PIR, error) {
	if cfg.Trigger == gpio.NoEdge {
		return nil, fmt.Errorf("sensor trigger must be rising, falling or both")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if err := g.SetupPin(cfg.Pin, gpio.Input); err != nil {
		return nil, fmt.Errorf("setup sensor pin %d: %w", cfg.Pin, err)
	}
	if err := g.SetPull(cfg.Pin, cfg.Pull); err != nil {
		return nil, fmt.Errorf("set pull on sensor pin %d: %w", cfg.Pin, err)
	}
	if err := g.WatchEdge(cfg.Pin, cfg.Trigger); err != nil {
		return nil, fmt.Errorf("arm %s edge on sensor pin %d: %w", cfg.Trigger, cfg.Pin, err)
	}

	debug.Verbose("Sensor: pin %d armed for %s edges (poll every %v)", cfg.Pin, cfg.Trigger, cfg.PollInterval)

	return &PIR{gpio: g, cfg: cfg}, nil
}

// Wait blocks until an armed edge is detected and returns the level that
// edge left the pin at. It returns ctx.Err() once ctx is done.
func (p *PIR) Wait(ctx context.Context) (gpio.Level, error) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		detected, err := p.gpio.EdgeDetected(p.cfg.Pin)
		if err != nil {
			return gpio.Low, fmt.Errorf("poll sensor pin %d: %w", p.cfg.Pin, err)
		}
		if detected {
			return p.latchedLevel()
		}

		select {
		case <-ctx.Done():
			return gpio.Low, ctx.Err()
		case <-ticker.C:
		}
	}
}

// latchedLevel is the level a latched edge left the pin at. A single-edge
// trigger implies it: the line may already have moved back when an edge was
// latched during a long handling. Only under BothEdges is the pin read.
func (p *PIR) latchedLevel() (gpio.Level, error) {
	switch p.cfg.Trigger {
	case gpio.RisingEdge:
		return gpio.High, nil
	case gpio.FallingEdge:
		return gpio.Low, nil
	}
	level, err := p.gpio.ReadPin(p.cfg.Pin)
	if err != nil {
		return gpio.Low, fmt.Errorf("read sensor pin %d: %w", p.cfg.Pin, err)
	}
	return level, nil
}

// Qualifies reports whether an edge that left the pin at level should
// trigger a capture under the configured trigger.
func (p *PIR) Qualifies(level gpio.Level) bool {
	switch p.cfg.Trigger {
	case gpio.RisingEdge:
		return level == gpio.High
	case gpio.FallingEdge:
		return level == gpio.Low
	case gpio.BothEdges:
		return true
	default:
		return false
	}
}

// Pin returns the BCM pin number.
func (p *PIR) Pin() int {
	return p.cfg.Pin
}

// Close disarms edge detection. The driver itself is closed by its owner.
func (p *PIR) Close() error {
	return p.gpio.WatchEdge(p.cfg.Pin, gpio.NoEdge)
}

// ParseTrigger converts "rising", "falling" or "both" to a gpio.Edge.
func ParseTrigger(s string) (gpio.Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising", "":
		return gpio.RisingEdge, nil
	case "falling":
		return gpio.FallingEdge, nil
	case "both":
		return gpio.BothEdges, nil
	default:
		return gpio.NoEdge, fmt.Errorf("unknown trigger %q (want rising, falling or both)", s)
	}
}

// ParsePull converts "off", "down" or "up" to a gpio.Pull.
func ParsePull(s string) (gpio.Pull, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return gpio.PullOff, nil
	case "down":
		return gpio.PullDown, nil
	case "up":
		return gpio.PullUp, nil
	default:
		return gpio.PullOff, fmt.Errorf("unknown pull %q (want off, down or up)", s)
	}
}
