// Package output delivers each received frame, together with its
// transformed counterpart, to whatever is displaying the stream.
package output

import (
	"errors"
	"sync"

	"github.com/bryanchriswhite/framerelay/internal/frame"
	"github.com/bryanchriswhite/framerelay/internal/logger"
	"github.com/bryanchriswhite/framerelay/internal/transform"
)

// View names for the two frames of every pair
const (
	ViewRaw       = "raw"
	ViewProcessed = "processed"
)

// Output defines the interface for frame output mechanisms.
// This allows the receiver to show frames in a browser, log them, or both.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrames delivers one received frame and its transformed version.
	// Either may be nil when there is nothing to show for that view.
	WriteFrames(raw, processed *frame.Frame) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// GeometryAware is implemented by outputs that annotate the raw view with
// the crop region. SetGeometry is called before each WriteFrames.
type GeometryAware interface {
	SetGeometry(g transform.Geometry)
}

// Config holds common configuration for all output types
type Config struct {
	// JPEG quality, 1-100
	Quality int

	// Labels draws the view name and frame size onto each frame
	Labels bool

	// Outline strokes the crop region onto the raw view
	Outline bool
}

// DefaultConfig returns the display settings used by the receiver
func DefaultConfig() Config {
	return Config{Quality: 85, Labels: true, Outline: true}
}

// multiOutput fans every call out to a fixed set of outputs
type multiOutput struct {
	outputs []Output
}

// Multi combines outputs into one. Errors from the members are joined.
func Multi(outputs ...Output) Output {
	return &multiOutput{outputs: outputs}
}

func (m *multiOutput) Start() error {
	var errs []error
	for _, o := range m.outputs {
		errs = append(errs, o.Start())
	}
	return errors.Join(errs...)
}

func (m *multiOutput) Stop() error {
	var errs []error
	for _, o := range m.outputs {
		errs = append(errs, o.Stop())
	}
	return errors.Join(errs...)
}

func (m *multiOutput) WriteFrames(raw, processed *frame.Frame) error {
	var errs []error
	for _, o := range m.outputs {
		errs = append(errs, o.WriteFrames(raw, processed))
	}
	return errors.Join(errs...)
}

// SetGeometry forwards g to every member that wants it
func (m *multiOutput) SetGeometry(g transform.Geometry) {
	for _, o := range m.outputs {
		if ga, ok := o.(GeometryAware); ok {
			ga.SetGeometry(g)
		}
	}
}

func (m *multiOutput) Name() string {
	return "Multi"
}

func (m *multiOutput) IsRunning() bool {
	for _, o := range m.outputs {
		if !o.IsRunning() {
			return false
		}
	}
	return true
}

// LogOutput records every frame pair at debug level. It is the only
// output when the display server is disabled.
type LogOutput struct {
	mu      sync.Mutex
	running bool
	frames  uint64
}

// NewLogOutput creates a logging output
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Start marks the output as running
func (l *LogOutput) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = true
	l.frames = 0
	return nil
}

// Stop logs the frame total
func (l *LogOutput) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		logger.WithComponent("output").Info().Uint64("frames", l.frames).Msg("Frame log stopped")
	}
	l.running = false
	return nil
}

// WriteFrames logs the shapes of the pair
func (l *LogOutput) WriteFrames(raw, processed *frame.Frame) error {
	l.mu.Lock()
	l.frames++
	n := l.frames
	l.mu.Unlock()

	ev := logger.WithComponent("output").Debug().Uint64("frame", n)
	if raw != nil {
		ev = ev.Stringer("raw", raw)
	}
	if processed != nil {
		ev = ev.Stringer("processed", processed)
	}
	ev.Msg("Frame received")
	return nil
}

// Frames returns how many pairs have been written
func (l *LogOutput) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Name returns the output type name
func (l *LogOutput) Name() string {
	return "Log"
}

// IsRunning returns true if the output is active
func (l *LogOutput) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
