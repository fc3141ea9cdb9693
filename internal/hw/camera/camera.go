package camera

import "context"

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how it's controlled
// (subprocess, USB, network protocol, etc.).
type Camera interface {
	// Capture takes a single photo and writes it as a JPEG file at path.
	Capture(ctx context.Context, path string) error
}
