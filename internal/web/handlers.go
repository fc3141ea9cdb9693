package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cjeanneret/catwatch/internal/debug"
	"github.com/cjeanneret/catwatch/internal/hw/gpio"
	"github.com/cjeanneret/catwatch/internal/logic/detect"
)

// heartbeatInterval keeps idle SSE connections open through proxies.
var heartbeatInterval = 30 * time.Second

const maxTriggerBody = 1 << 10

// StatsFunc returns a snapshot of the detection loop.
type StatsFunc func() detect.Stats

// TriggerFunc simulates a sensor edge that leaves the line at level.
// It is only available with mock GPIO.
type TriggerFunc func(level gpio.Level) error

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State           string     `json:"state"`
	Edges           uint64     `json:"edges"`
	Handled         uint64     `json:"handled"`
	CaptureFailures uint64     `json:"capture_failures"`
	NotifyFailures  uint64     `json:"notify_failures"`
	Last            *EventView `json:"last,omitempty"`
	Subscribers     int        `json:"subscribers"`
}

// TriggerRequest is the optional body of POST /trigger.
type TriggerRequest struct {
	Level string `json:"level"` // "high" (default) or "low"
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Stats       StatsFunc
	Trigger     TriggerFunc
}

// NewHandlers creates handlers with the given dependencies.
// If trigger is nil, POST /trigger returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, stats StatsFunc, trigger TriggerFunc) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Stats:       stats,
		Trigger:     trigger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleHealth answers GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleStatus answers GET /status with the loop counters and last event.
func (h *Handlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	if h.Stats == nil {
		http.Error(w, "detection loop not attached", http.StatusServiceUnavailable)
		return
	}
	s := h.Stats()
	resp := StatusResponse{
		State:           s.State.String(),
		Edges:           s.Edges,
		Handled:         s.Handled,
		CaptureFailures: s.CaptureFailures,
		NotifyFailures:  s.NotifyFailures,
	}
	if s.Last != nil {
		v := NewEventView(*s.Last)
		resp.Last = &v
	}
	if h.Broadcaster != nil {
		resp.Subscribers = h.Broadcaster.Subscribers()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleTrigger handles POST /trigger by injecting a simulated edge.
func (h *Handlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	if h.Trigger == nil {
		http.Error(w, "trigger requires mock GPIO", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxTriggerBody)
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	level := gpio.High
	switch strings.ToLower(req.Level) {
	case "", "high":
	case "low":
		level = gpio.Low
	default:
		http.Error(w, `level must be "high" or "low"`, http.StatusBadRequest)
		return
	}

	if err := h.Trigger(level); err != nil {
		debug.Warn("trigger failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered", "level": level.String()})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
