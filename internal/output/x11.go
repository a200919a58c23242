package output

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/framerelay/internal/frame"
	"github.com/bryanchriswhite/framerelay/internal/logger"
)

// putImageHeader is the fixed part of a PutImage request in bytes
const putImageHeader = 24

// x11Window is one top-level window showing a single view
type x11Window struct {
	id     xproto.Window
	gc     xproto.Gcontext
	width  int
	height int
}

// X11Output shows the raw and processed frames in two X11 windows,
// resizing each window to the frames it receives
type X11Output struct {
	display string

	conn           *xgb.Conn
	screen         *xproto.ScreenInfo
	bytesPerPixel  int
	scanlinePad    int
	maxRequestSize int

	windows map[string]*x11Window
	running bool
	mu      sync.Mutex
}

// NewX11Output creates an output for the named X display; empty uses $DISPLAY
func NewX11Output(display string) *X11Output {
	return &X11Output{
		display: display,
		windows: make(map[string]*x11Window),
	}
}

// Start connects to the X server. Windows are created with the first frame.
func (x *X11Output) Start() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.running {
		return fmt.Errorf("X11 output already running")
	}

	conn, err := xgb.NewConnDisplay(x.display)
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	// Find the pixmap format that matches the root depth
	var bitsPerPixel, scanlinePad uint8
	for _, format := range setup.PixmapFormats {
		if format.Depth == screen.RootDepth {
			bitsPerPixel = format.BitsPerPixel
			scanlinePad = format.ScanlinePad
			break
		}
	}
	if bitsPerPixel != 24 && bitsPerPixel != 32 {
		conn.Close()
		return fmt.Errorf("unsupported pixmap format for depth %d: %d bits per pixel", screen.RootDepth, bitsPerPixel)
	}

	x.conn = conn
	x.screen = screen
	x.bytesPerPixel = int(bitsPerPixel) / 8
	x.scanlinePad = int(scanlinePad) / 8
	x.maxRequestSize = int(setup.MaximumRequestLength) * 4
	x.running = true

	logger.WithComponent("x11-output").Info().
		Uint8("depth", screen.RootDepth).
		Int("max_request_bytes", x.maxRequestSize).
		Msg("Connected to X server")
	return nil
}

// Stop destroys the windows and closes the connection
func (x *X11Output) Stop() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.running {
		return nil
	}

	for _, w := range x.windows {
		xproto.FreeGC(x.conn, w.gc)
		xproto.DestroyWindow(x.conn, w.id)
	}
	x.windows = make(map[string]*x11Window)
	x.conn.Sync()
	x.conn.Close()
	x.running = false

	logger.WithComponent("x11-output").Info().Msg("X11 windows closed")
	return nil
}

// WriteFrames draws each frame into its view's window
func (x *X11Output) WriteFrames(raw, processed *frame.Frame) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.running {
		return fmt.Errorf("X11 output not running")
	}

	for _, v := range []struct {
		name string
		f    *frame.Frame
	}{{ViewRaw, raw}, {ViewProcessed, processed}} {
		if v.f == nil {
			continue
		}
		w, err := x.window(v.name, v.f.Width, v.f.Height)
		if err != nil {
			return fmt.Errorf("%s window: %w", v.name, err)
		}
		if err := x.putImage(w, v.f.ToRGBA()); err != nil {
			return fmt.Errorf("%s window: %w", v.name, err)
		}
	}

	x.conn.Sync()
	return nil
}

// window returns the view's window, creating or resizing it as needed
func (x *X11Output) window(name string, width, height int) (*x11Window, error) {
	if w, ok := x.windows[name]; ok {
		if w.width != width || w.height != height {
			err := xproto.ConfigureWindowChecked(x.conn, w.id,
				xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
				[]uint32{uint32(width), uint32(height)},
			).Check()
			if err != nil {
				return nil, fmt.Errorf("failed to resize window: %w", err)
			}
			w.width, w.height = width, height
		}
		return w, nil
	}

	id, err := xproto.NewWindowId(x.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create window ID: %w", err)
	}

	err = xproto.CreateWindowChecked(
		x.conn,
		x.screen.RootDepth,
		id,
		x.screen.Root,
		0, 0,
		uint16(width), uint16(height),
		0,
		xproto.WindowClassInputOutput,
		x.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{0x000000, xproto.EventMaskExposure | xproto.EventMaskStructureNotify},
	).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	log := logger.WithComponent("x11-output")
	if err := x.setWindowTitle(id, "framerelay - "+name); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := x.setWindowClass(id, "framerelay", "framerelay"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}

	if err := xproto.MapWindowChecked(x.conn, id).Check(); err != nil {
		return nil, fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(x.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	if err := xproto.CreateGCChecked(x.conn, gc, xproto.Drawable(id), 0, nil).Check(); err != nil {
		return nil, fmt.Errorf("failed to create GC: %w", err)
	}

	w := &x11Window{id: id, gc: gc, width: width, height: height}
	x.windows[name] = w

	log.Info().
		Str("view", name).
		Int("width", width).
		Int("height", height).
		Uint32("window_id", uint32(id)).
		Msg("Window created")
	return w, nil
}

// putImage uploads img in horizontal strips that fit the server's
// maximum request size
func (x *X11Output) putImage(w *x11Window, img *image.RGBA) error {
	data, stride := packRows(img, x.bytesPerPixel, x.scanlinePad)
	height := img.Bounds().Dy()
	rows := rowsPerRequest(x.maxRequestSize, stride)

	for y := 0; y < height; y += rows {
		n := min(rows, height-y)
		err := xproto.PutImageChecked(
			x.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(w.id),
			w.gc,
			uint16(img.Bounds().Dx()), uint16(n),
			0, int16(y),
			0,
			x.screen.RootDepth,
			data[y*stride:(y+n)*stride],
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}
	return nil
}

// packRows converts img to the server's ZPixmap layout: BGRx or BGR
// pixels with each scanline padded to a multiple of pad bytes
func packRows(img *image.RGBA, bytesPerPixel, pad int) ([]byte, int) {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	stride := width * bytesPerPixel
	if pad > 1 {
		stride = (stride + pad - 1) / pad * pad
	}

	data := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		src := img.Pix[y*img.Stride:]
		dst := data[y*stride:]
		for px := 0; px < width; px++ {
			s := src[px*4 : px*4+4]
			d := dst[px*bytesPerPixel:]
			d[0], d[1], d[2] = s[2], s[1], s[0]
		}
	}
	return data, stride
}

// rowsPerRequest returns how many scanlines fit in one PutImage request
func rowsPerRequest(maxRequestSize, stride int) int {
	rows := (maxRequestSize - putImageHeader) / stride
	if rows < 1 {
		return 1
	}
	return rows
}

// setWindowTitle sets the window title
func (x *X11Output) setWindowTitle(win xproto.Window, title string) error {
	titleAtom, err := x.atom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := x.atom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(x.conn, xproto.PropModeReplace, win,
		titleAtom, utf8Atom, 8, uint32(len(title)), []byte(title)).Check()
}

// setWindowClass sets WM_CLASS, encoded as instance\0class\0
func (x *X11Output) setWindowClass(win xproto.Window, instance, class string) error {
	classAtom, err := x.atom("WM_CLASS")
	if err != nil {
		return err
	}
	classStr := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(x.conn, xproto.PropModeReplace, win,
		classAtom, xproto.AtomString, 8, uint32(len(classStr)), []byte(classStr)).Check()
}

func (x *X11Output) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(x.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// Name returns the output type name
func (x *X11Output) Name() string {
	return "X11 Window"
}

// IsRunning returns true if the output is active
func (x *X11Output) IsRunning() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.running
}
