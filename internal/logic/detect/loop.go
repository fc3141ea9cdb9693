package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/catwatch/internal/debug"
	"github.com/cjeanneret/catwatch/internal/hw/camera"
	"github.com/cjeanneret/catwatch/internal/hw/gpio"
	"github.com/cjeanneret/catwatch/internal/logic/capture"
	"github.com/cjeanneret/catwatch/internal/notify"
)

const (
	DefaultMessage         = "Detected!"
	DefaultFallbackMessage = "detected, but failed to capture"
)

// State of the detection loop.
type State int32

const (
	Idle     State = iota // blocked on the sensor
	Handling              // capturing and notifying
)

func (s State) String() string {
	if s == Handling {
		return "handling"
	}
	return "idle"
}

// Sensor is the motion input the loop blocks on.
type Sensor interface {
	Wait(ctx context.Context) (gpio.Level, error)
	Qualifies(level gpio.Level) bool
}

// Indicator is lit while an event is handled.
type Indicator interface {
	On() error
	Off() error
}

// Config holds the loop parameters.
type Config struct {
	Dir             string // capture directory, must exist
	Message         string // sent with the image
	FallbackMessage string // sent alone when there is no image
}

// Stats is a snapshot of what the loop has done so far.
type Stats struct {
	State           State
	Edges           uint64 // every edge reported by the sensor
	Handled         uint64 // qualifying edges
	CaptureFailures uint64
	NotifyFailures  uint64
	Last            *capture.Event
}

// Loop couples sensor edges to a capture-then-notify action.
// It is strictly sequential: while one edge is handled the sensor is not read.
type Loop struct {
	sensor    Sensor
	camera    camera.Camera
	notifier  notify.Notifier
	indicator Indicator
	cfg       Config
	now       func() time.Time
	observer  func(capture.Event)

	state atomic.Int32

	mu    sync.Mutex
	stats Stats
}

// Option customizes a Loop.
type Option func(*Loop)

// WithIndicator lights ind while an event is handled.
func WithIndicator(ind Indicator) Option {
	return func(l *Loop) { l.indicator = ind }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithObserver calls fn with a copy of every handled event.
func WithObserver(fn func(capture.Event)) Option {
	return func(l *Loop) { l.observer = fn }
}

func New(s Sensor, c camera.Camera, n notify.Notifier, cfg Config, opts ...Option) *Loop {
	if cfg.Dir == "" {
		cfg.Dir = capture.DefaultDir
	}
	if cfg.Message == "" {
		cfg.Message = DefaultMessage
	}
	if cfg.FallbackMessage == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}

	l := &Loop{
		sensor:   s,
		camera:   c,
		notifier: n,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run waits for edges and handles each qualifying one until ctx is done
// (returns nil) or the sensor fails (returns the error).
// An edge being handled when ctx is cancelled is still handled to the end.
func (l *Loop) Run(ctx context.Context) error {
	debug.Info("Waiting for motion")

	for {
		level, err := l.sensor.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.summarize()
				return nil
			}
			return fmt.Errorf("wait for motion: %w", err)
		}

		l.mu.Lock()
		l.stats.Edges++
		l.mu.Unlock()

		if !l.sensor.Qualifies(level) {
			debug.Trace("Ignoring edge to %s", level)
			continue
		}

		l.Handle(context.WithoutCancel(ctx), level)
	}
}

// Handle runs one capture-and-notify sequence for an edge that left the
// sensor at level. Failures are logged and recorded in the returned event;
// they never stop the loop.
func (l *Loop) Handle(ctx context.Context, level gpio.Level) capture.Event {
	l.state.Store(int32(Handling))
	defer l.state.Store(int32(Idle))

	if l.indicator != nil {
		_ = l.indicator.On()
		defer func() { _ = l.indicator.Off() }()
	}

	start := time.Now()
	ev := capture.NewEvent(l.cfg.Dir, l.now(), level)
	debug.Event("motion detected", "event", ev.ID, "path", ev.Path)

	msg := notify.Message{Text: l.cfg.Message, ImagePath: ev.Path}
	if err := l.camera.Capture(ctx, ev.Path); err != nil {
		ev.CaptureErr = err
		debug.Event("capture failed", "event", ev.ID, "err", err)
		msg = notify.Message{Text: l.cfg.FallbackMessage}
	} else {
		ev.Captured = true
	}

	err := l.notifier.Notify(ctx, msg)
	if errors.Is(err, notify.ErrAttachment) {
		// Nothing went out; send the text alone instead.
		ev.CaptureErr = err
		debug.Event("attachment failed", "event", ev.ID, "err", err)
		err = l.notifier.Notify(ctx, notify.Message{Text: l.cfg.FallbackMessage})
	}
	if err != nil {
		ev.NotifyErr = err
		debug.Event("notification failed", "event", ev.ID, "err", err)
	} else {
		ev.Notified = true
		debug.Event("notification sent", "event", ev.ID, "image", ev.Captured)
	}

	ev.Duration = time.Since(start)
	l.record(*ev)
	return *ev
}

func (l *Loop) record(ev capture.Event) {
	l.mu.Lock()
	l.stats.Handled++
	if ev.CaptureErr != nil {
		l.stats.CaptureFailures++
	}
	if ev.NotifyErr != nil {
		l.stats.NotifyFailures++
	}
	l.stats.Last = &ev
	l.mu.Unlock()

	if l.observer != nil {
		l.observer(ev)
	}
}

// summarize logs the counters when the loop stops.
func (l *Loop) summarize() {
	s := l.Stats()
	debug.Summary("Detection loop stopped")
	debug.Info("Edges: %d, handled: %d, capture failures: %d, notify failures: %d",
		s.Edges, s.Handled, s.CaptureFailures, s.NotifyFailures)
}

// State returns the current loop state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stats returns a snapshot safe to read from another goroutine.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.State = l.State()
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return s
}
