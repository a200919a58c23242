package capture

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/framerelay/internal/frame"
)

// PatternCapturer synthesizes a moving test pattern. It needs no hardware,
// which makes it the default source for demos and tests.
type PatternCapturer struct {
	width    int
	height   int
	channels uint8

	mu      sync.Mutex
	running bool
	seq     int
}

// NewPatternCapturer creates an RGB pattern source of the configured size
func NewPatternCapturer(opts Options) *PatternCapturer {
	return NewPatternCapturerWithChannels(opts, 3)
}

// NewPatternCapturerWithChannels creates a pattern source with the given layout
func NewPatternCapturerWithChannels(opts Options, channels uint8) *PatternCapturer {
	return &PatternCapturer{
		width:    opts.Width,
		height:   opts.Height,
		channels: channels,
	}
}

// Start marks the capturer as running
func (p *PatternCapturer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	return nil
}

// Stop marks the capturer as stopped
func (p *PatternCapturer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

// Capture renders the next pattern frame: diagonal color bands that
// shift by a few pixels per frame, so motion and rotation are visible.
func (p *PatternCapturer) Capture(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil, ErrNotStarted
	}
	seq := p.seq
	p.seq++
	p.mu.Unlock()

	f := frame.New(p.width, p.height, p.channels)
	c := int(p.channels)
	shift := seq * 4
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			px := f.Pix[(y*p.width+x)*c : (y*p.width+x)*c+c]
			band := byte((x + y + shift) & 0xff)
			px[0] = band
			if c >= 3 {
				px[1] = byte(x * 255 / p.width)
				px[2] = byte(y * 255 / p.height)
			}
			if c == 4 {
				px[3] = 0xff
			}
		}
	}
	return f, nil
}

// Sequence returns how many frames have been produced
func (p *PatternCapturer) Sequence() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// Name returns the capturer name
func (p *PatternCapturer) Name() string {
	return "Pattern"
}

// IsAvailable reports whether the configured size is usable
func (p *PatternCapturer) IsAvailable() bool {
	return p.width > 0 && p.height > 0 && frame.SupportedChannels(p.channels)
}
