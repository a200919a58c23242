package capture

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bryanchriswhite/framerelay/internal/logger"
)

var backends = map[string]func(Options) Capturer{
	"pattern": func(o Options) Capturer { return NewPatternCapturer(o) },
	"ffmpeg":  func(o Options) Capturer { return NewFFmpegCapturer(o) },
	"gst":     func(o Options) Capturer { return NewGStreamerCapturer(o) },
	"x11":     func(o Options) Capturer { return NewX11Capturer(o) },
}

// Kinds lists the backend names accepted by Open
func Kinds() []string {
	kinds := make([]string, 0, len(backends))
	for k := range backends {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Open returns the named backend. It does not start it.
func Open(kind string, opts Options) (Capturer, error) {
	newCapturer, ok := backends[strings.ToLower(kind)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (use one of: %s)", ErrUnknownSource, kind, strings.Join(Kinds(), ", "))
	}

	c := newCapturer(opts)
	log := logger.WithComponent("capture-router")
	if !c.IsAvailable() {
		return nil, fmt.Errorf("%s capturer is not available in this environment", c.Name())
	}

	log.Info().
		Str("source", c.Name()).
		Int("width", opts.Width).
		Int("height", opts.Height).
		Msg("Capture source selected")
	return c, nil
}
