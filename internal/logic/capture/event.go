package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/catwatch/internal/hw/gpio"
)

// DefaultDir is where captured images land when nothing is configured.
const DefaultDir = "/tmp/cat-sv"

// fileTimeLayout is YYYYMMDDHHMMSS.
const fileTimeLayout = "20060102150405"

// Event is one handled motion detection: created when a qualifying edge
// is seen, discarded once the notification has been attempted.
type Event struct {
	ID         uuid.UUID
	Time       time.Time
	Level      gpio.Level // sensor level right after the edge
	Path       string     // image path derived from Time
	Captured   bool
	Notified   bool
	CaptureErr error
	NotifyErr  error
	Duration   time.Duration
}

// NewEvent creates an event for an edge observed at t.
func NewEvent(dir string, t time.Time, level gpio.Level) *Event {
	return &Event{
		ID:    uuid.New(),
		Time:  t,
		Level: level,
		Path:  FileName(dir, t),
	}
}

// FileName returns dir/image_YYYYMMDDHHMMSS.jpg for t in local time.
// Two events within the same second map to the same name.
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, "image_"+t.Local().Format(fileTimeLayout)+".jpg")
}

// PrepareDir creates the capture directory. An existing directory is fine;
// any other failure, including an existing non-directory, is returned.
func PrepareDir(dir string) error {
	err := os.Mkdir(dir, 0o755)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("create capture dir: %w", err)
	}

	info, statErr := os.Stat(dir)
	if statErr != nil {
		return fmt.Errorf("stat capture dir: %w", statErr)
	}
	if !info.IsDir() {
		return fmt.Errorf("capture dir %s exists and is not a directory", dir)
	}
	return nil
}
