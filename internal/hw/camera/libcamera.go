package camera

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/catwatch/internal/debug"
)

// Default capture parameters.
const (
	DefaultCommand   = "libcamera-jpeg"
	DefaultEV        = 0.5
	DefaultShutterUs = 200000
	DefaultWidth     = 1920
	DefaultHeight    = 1080
	DefaultTimeout   = 30 * time.Second
)

// pipeGrace bounds the wait for stderr to close once the utility is killed,
// in case a grandchild still holds it.
const pipeGrace = 2 * time.Second

// Options enumerates the parameters passed to the capture utility.
type Options struct {
	Command    string        // executable, looked up in PATH
	EV         float64       // exposure compensation (--ev)
	ShutterUs  int           // shutter speed in microseconds (--shutter)
	Width      int           // output width in pixels
	Height     int           // output height in pixels
	Brightness *float64      // optional, -1.0 to 1.0 (--brightness); nil = not passed
	Timeout    time.Duration // hard limit for one capture
}

// DefaultOptions returns the parameters used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Command:   DefaultCommand,
		EV:        DefaultEV,
		ShutterUs: DefaultShutterUs,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Timeout:   DefaultTimeout,
	}
}

// CaptureError describes a failed run of the capture utility.
type CaptureError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("capture %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("capture %s: %v: %s", e.Path, e.Err, e.Stderr)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Libcamera is a Camera implementation that shells out to a
// libcamera-apps still utility (libcamera-jpeg, libcamera-still, rpicam-still).
// The utility is run synchronously, its stdout is discarded and its stderr is
// kept for error reporting.
type Libcamera struct {
	opts Options
}

// NewLibcamera creates a subprocess camera. Zero fields in opts fall back
// to the defaults.
func NewLibcamera(opts Options) *Libcamera {
	def := DefaultOptions()
	if opts.Command == "" {
		opts.Command = def.Command
	}
	if opts.ShutterUs <= 0 {
		opts.ShutterUs = def.ShutterUs
	}
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Libcamera{opts: opts}
}

// Args returns the command-line arguments for a capture to path.
func (c *Libcamera) Args(path string) []string {
	args := []string{
		"-o", path,
		"-n",
		"--ev", formatFloat(c.opts.EV),
		"--shutter", strconv.Itoa(c.opts.ShutterUs),
		"--width", strconv.Itoa(c.opts.Width),
		"--height", strconv.Itoa(c.opts.Height),
	}
	if c.opts.Brightness != nil {
		args = append(args, "--brightness", formatFloat(*c.opts.Brightness))
	}
	return args
}

// Capture runs the utility and waits for it. A nonzero exit, a spawn failure,
// a timeout or a missing output file all count as failure.
func (c *Libcamera) Capture(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	args := c.Args(path)
	if debug.IsEnabled(debug.LevelVerbose) {
		debug.Verbose("Camera: %s %s", c.opts.Command, strings.Join(args, " "))
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.opts.Command, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeGrace
	killGroupOnCancel(cmd)

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return &CaptureError{Path: path, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	if _, err := os.Stat(path); err != nil {
		return &CaptureError{Path: path, Err: fmt.Errorf("no output file: %w", err)}
	}

	debug.Live("Camera: captured %s in %v", path, time.Since(start).Round(time.Millisecond))
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
