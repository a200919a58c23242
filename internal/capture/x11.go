package capture

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/framerelay/internal/frame"
	"github.com/bryanchriswhite/framerelay/internal/logger"
)

// X11Capturer grabs the top-left region of the X root window. It is
// mostly useful for exercising the relay on a desktop with no camera.
type X11Capturer struct {
	display string
	width   int
	height  int

	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	mu     sync.Mutex
}

// NewX11Capturer creates a capturer for the display named by opts.Device
// when it looks like an X display (":0", "host:1"), or $DISPLAY otherwise
func NewX11Capturer(opts Options) *X11Capturer {
	display := ""
	if strings.Contains(opts.Device, ":") && !strings.HasPrefix(opts.Device, "/") {
		display = opts.Device
	}
	return &X11Capturer{
		display: display,
		width:   opts.Width,
		height:  opts.Height,
	}
}

// Start connects to the X server
func (c *X11Capturer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("x11 capturer already running")
	}

	conn, err := xgb.NewConnDisplay(c.display)
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	c.conn = conn
	c.screen = setup.DefaultScreen(conn)
	c.root = c.screen.Root

	// Never request more than the screen has
	if c.width <= 0 || c.width > int(c.screen.WidthInPixels) {
		c.width = int(c.screen.WidthInPixels)
	}
	if c.height <= 0 || c.height > int(c.screen.HeightInPixels) {
		c.height = int(c.screen.HeightInPixels)
	}

	logger.WithComponent("x11-capturer").Info().
		Uint8("depth", c.screen.RootDepth).
		Int("width", c.width).
		Int("height", c.height).
		Msg("Connected to X server")
	return nil
}

// Stop closes the X11 connection
func (c *X11Capturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// Capture grabs one frame from the root window
func (c *X11Capturer) Capture(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotStarted
	}

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(c.root),
		0, 0,
		uint16(c.width), uint16(c.height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return c.convertImageData(reply.Data)
}

// convertImageData converts 32bpp BGRX image data to a packed RGB frame
func (c *X11Capturer) convertImageData(data []byte) (*frame.Frame, error) {
	depth := int(c.screen.RootDepth)
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported X root depth %d", depth)
	}
	if len(data) < c.width*c.height*4 {
		return nil, fmt.Errorf("short X image: got %d bytes for %dx%d", len(data), c.width, c.height)
	}

	f := frame.New(c.width, c.height, 3)
	for i, j := 0, 0; j < len(f.Pix); i, j = i+4, j+3 {
		f.Pix[j] = data[i+2]
		f.Pix[j+1] = data[i+1]
		f.Pix[j+2] = data[i]
	}
	return f, nil
}

// Name returns the capturer name
func (c *X11Capturer) Name() string {
	return "X11"
}

// IsAvailable checks if an X display can be addressed
func (c *X11Capturer) IsAvailable() bool {
	return c.display != "" || os.Getenv("DISPLAY") != ""
}
