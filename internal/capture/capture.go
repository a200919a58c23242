package capture

import (
	"context"
	"errors"

	"github.com/bryanchriswhite/framerelay/internal/frame"
)

var (
	// ErrUnknownSource is returned by Open for an unrecognized backend name
	ErrUnknownSource = errors.New("unknown capture source")

	// ErrNotStarted is returned by Capture before Start or after Stop
	ErrNotStarted = errors.New("capturer not started")
)

// Capturer defines the interface for frame capture backends
type Capturer interface {
	// Start acquires the device, display or subprocess behind the capturer
	Start() error

	// Stop releases everything Start acquired. Safe to call more than once.
	Stop() error

	// Capture blocks until the next frame is available or ctx is done.
	// Every frame from one capturer has the same shape.
	Capture(ctx context.Context) (*frame.Frame, error)

	// Name returns a human-readable name for this capturer
	Name() string

	// IsAvailable checks if this capturer can be used in the current environment
	IsAvailable() bool
}

// Options configures a capture backend
type Options struct {
	// Device is the capture device, e.g. /dev/video0 or an X display name
	Device string

	// InputFormat is the ffmpeg demuxer for Device (v4l2, avfoundation, dshow)
	InputFormat string

	Width  int
	Height int
	FPS    int
}
