package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/catwatch/internal/logic/capture"
)

// Kinds of stream messages.
const (
	KindLog   = "log"
	KindEvent = "event"
)

// subscriberBuffer is how many messages a slow client may lag behind.
const subscriberBuffer = 64

// EventView is the JSON form of a handled detection.
type EventView struct {
	ID           string `json:"id"`
	Time         string `json:"time"`
	Level        string `json:"level"`
	Path         string `json:"path"`
	Captured     bool   `json:"captured"`
	Notified     bool   `json:"notified"`
	CaptureError string `json:"capture_error,omitempty"`
	NotifyError  string `json:"notify_error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// NewEventView converts a handled event for JSON output.
func NewEventView(ev capture.Event) EventView {
	v := EventView{
		ID:         ev.ID.String(),
		Time:       ev.Time.Format(time.RFC3339),
		Level:      ev.Level.String(),
		Path:       ev.Path,
		Captured:   ev.Captured,
		Notified:   ev.Notified,
		DurationMs: ev.Duration.Milliseconds(),
	}
	if ev.CaptureErr != nil {
		v.CaptureError = ev.CaptureErr.Error()
	}
	if ev.NotifyErr != nil {
		v.NotifyError = ev.NotifyErr.Error()
	}
	return v
}

// StatusEvent is a single stream message: a log line or a handled detection.
type StatusEvent struct {
	Time  string     `json:"t"`
	Kind  string     `json:"kind"`
	Level string     `json:"l,omitempty"`
	Msg   string     `json:"msg,omitempty"`
	Event *EventView `json:"event,omitempty"`
}

// StatusBroadcaster fans stream messages out to SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel of JSON messages and its cleanup function.
// The caller must call cleanup when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Subscribers returns the number of connected clients.
func (b *StatusBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a log line to every client.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// PublishEvent sends a handled detection to every client.
// It has the signature of a detection loop observer.
func (b *StatusBroadcaster) PublishEvent(ev capture.Event) {
	view := NewEventView(ev)
	b.publish(StatusEvent{Kind: KindEvent, Event: &view})
}

// publish never blocks: a client whose buffer is full misses the message.
func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = b.now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// BroadcastWriter adapts b to io.Writer so log output can be teed to clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

// Write broadcasts each non-empty line, tagged with the log level found in it.
func (w *broadcastWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		w.b.Broadcast(lineLevel(line), line)
	}
	return len(p), nil
}

// lineLevel picks the level word out of a console log line.
func lineLevel(line string) string {
	for _, f := range strings.Fields(line) {
		switch f {
		case "DEBUG", "INFO", "WARN", "ERROR", "FATAL":
			return strings.ToLower(f)
		}
	}
	return "info"
}
