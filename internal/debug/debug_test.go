package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(lvl)
	t.Cleanup(func() {
		Init(LevelOff)
		SetOutput(&bytes.Buffer{})
	})
	return &buf
}

func TestInit_OffProducesNothing(t *testing.T) {
	buf := capture(t, LevelOff)
	Info("hello %d", 1)
	Error(errors.New("boom"))
	if buf.Len() != 0 {
		t.Errorf("expected no output at level 0, got %q", buf.String())
	}
}

func TestLevels_Filtering(t *testing.T) {
	buf := capture(t, LevelLive)
	Info("info message")
	Live("live message")
	Verbose("verbose message")
	Trace("trace message")

	out := buf.String()
	for _, want := range []string{"info message", "live message"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
	for _, unwanted := range []string{"verbose message", "trace message"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("output should not contain %q at level 2: %q", unwanted, out)
		}
	}
}

func TestEvent_StructuredFields(t *testing.T) {
	buf := capture(t, LevelInfo)
	Event("capture event", "id", "abc-123", "path", "/tmp/x.jpg")

	out := buf.String()
	if !strings.Contains(out, "capture event") {
		t.Errorf("missing message: %q", out)
	}
	if !strings.Contains(out, "abc-123") || !strings.Contains(out, "/tmp/x.jpg") {
		t.Errorf("missing fields: %q", out)
	}
}

func TestGPIO_TraceOnly(t *testing.T) {
	buf := capture(t, LevelVerbose)
	GPIO("ReadPin", 17, nil)
	if buf.Len() != 0 {
		t.Errorf("GPIO should be silent below trace level, got %q", buf.String())
	}

	Init(LevelTrace)
	GPIO("ReadPin", 17, nil)
	if !strings.Contains(buf.String(), "ReadPin") {
		t.Errorf("expected GPIO trace output, got %q", buf.String())
	}
}

func TestIsEnabled(t *testing.T) {
	capture(t, LevelLive)
	if !IsEnabled(LevelInfo) || !IsEnabled(LevelLive) {
		t.Error("levels 1 and 2 should be enabled")
	}
	if IsEnabled(LevelVerbose) {
		t.Error("level 3 should not be enabled")
	}
	if Level() != LevelLive {
		t.Errorf("Level() = %d, want %d", Level(), LevelLive)
	}
}
