package output

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/framerelay/internal/frame"
	"github.com/bryanchriswhite/framerelay/internal/logger"
	"github.com/bryanchriswhite/framerelay/internal/overlay"
	"github.com/bryanchriswhite/framerelay/internal/transform"
)

var labelBackground = color.RGBA{0, 0, 0, 255}

// view is one Motion JPEG stream: the raw frames or the processed ones
type view struct {
	name    string
	overlay *overlay.Manager
	label   *overlay.TextWidget
	outline *overlay.OutlineWidget

	frameMu    sync.RWMutex
	latest     []byte
	width      int
	height     int
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
}

// MJPEGOutput streams the raw and processed frames as two Motion JPEG
// streams over HTTP, so both can be watched side by side in a browser
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	views map[string]*view

	// Stats
	frameCount uint64
	startTime  time.Time
}

// ViewStats describes one view of the MJPEG output
type ViewStats struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Clients    int       `json:"clients"`
	LastUpdate time.Time `json:"last_update"`
}

// MJPEGStats is a snapshot of the output's counters
type MJPEGStats struct {
	Running bool                 `json:"running"`
	Frames  uint64               `json:"frames"`
	FPS     float64              `json:"fps"`
	Uptime  string               `json:"uptime"`
	Views   map[string]ViewStats `json:"views"`
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultConfig().Quality
	}

	m := &MJPEGOutput{
		config: config,
		views:  make(map[string]*view),
	}
	for _, name := range []string{ViewRaw, ViewProcessed} {
		v := &view{
			name:    name,
			overlay: overlay.NewManager(),
			label:   overlay.NewTextWidget("label", name, 4, 4),
			clients: make(map[chan []byte]struct{}),
		}
		v.label.SetBackground(&labelBackground)
		v.label.SetOpacity(0.8)
		if name == ViewRaw && config.Outline {
			v.outline = overlay.NewOutlineWidget("crop")
			v.overlay.AddWidget(v.outline)
		}
		v.overlay.AddWidget(v.label)
		v.overlay.SetEnabled(config.Labels)
		m.views[name] = v
	}
	return m
}

// Start initializes the MJPEG output.
// The HTTP handlers are mounted separately, see StreamHandler and ViewerHandler.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("mjpeg").Info().Int("quality", m.config.Quality).Msg("MJPEG output started")
	return nil
}

// Stop cleanly shuts down the output and disconnects all clients
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	for _, v := range m.views {
		v.clientsMu.Lock()
		for ch := range v.clients {
			close(ch)
		}
		v.clients = make(map[chan []byte]struct{})
		v.clientsMu.Unlock()
	}

	logger.WithComponent("mjpeg").Info().Uint64("frames", m.frameCount).Msg("MJPEG output stopped")
	return nil
}

// WriteFrames encodes both frames and sends them to the clients of each view
func (m *MJPEGOutput) WriteFrames(raw, processed *frame.Frame) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	for name, f := range map[string]*frame.Frame{ViewRaw: raw, ViewProcessed: processed} {
		if f == nil {
			continue
		}
		if err := m.views[name].publish(f, m.config.Quality); err != nil {
			return fmt.Errorf("%s view: %w", name, err)
		}
	}

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()
	return nil
}

// SetGeometry marks the crop region of the next raw frame
func (m *MJPEGOutput) SetGeometry(g transform.Geometry) {
	v := m.views[ViewRaw]
	if v.outline == nil {
		return
	}
	points := make([]image.Point, len(g.Corners))
	for i, c := range g.Corners {
		points[i] = image.Pt(int(math.Round(c.X)), int(math.Round(c.Y)))
	}
	v.outline.SetPoints(points)
}

func (v *view) publish(f *frame.Frame, quality int) error {
	img := f.ToRGBA()
	v.label.SetText(fmt.Sprintf("%s %dx%d", v.name, f.Width, f.Height))
	v.overlay.Render(img)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	v.frameMu.Lock()
	v.latest = jpegData
	v.width, v.height = f.Width, f.Height
	v.lastUpdate = time.Now()
	v.frameMu.Unlock()

	v.clientsMu.RLock()
	for ch := range v.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	v.clientsMu.RUnlock()
	return nil
}

// Snapshot returns the latest JPEG of a view, or nil if none was written yet
func (m *MJPEGOutput) Snapshot(name string) ([]byte, bool) {
	v, ok := m.views[name]
	if !ok {
		return nil, false
	}
	v.frameMu.RLock()
	defer v.frameMu.RUnlock()
	return v.latest, v.latest != nil
}

// HasView reports whether name is one of the output's views
func (m *MJPEGOutput) HasView(name string) bool {
	_, ok := m.views[name]
	return ok
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Stats returns a snapshot of the output counters
func (m *MJPEGOutput) Stats() MJPEGStats {
	m.mu.RLock()
	s := MJPEGStats{
		Running: m.running,
		Frames:  m.frameCount,
		Views:   make(map[string]ViewStats, len(m.views)),
	}
	startTime := m.startTime
	m.mu.RUnlock()

	if s.Running && !startTime.IsZero() {
		elapsed := time.Since(startTime)
		s.Uptime = elapsed.Round(time.Second).String()
		if elapsed > 0 {
			s.FPS = float64(s.Frames) / elapsed.Seconds()
		}
	}

	for name, v := range m.views {
		v.frameMu.RLock()
		vs := ViewStats{Width: v.width, Height: v.height, LastUpdate: v.lastUpdate}
		v.frameMu.RUnlock()
		v.clientsMu.RLock()
		vs.Clients = len(v.clients)
		v.clientsMu.RUnlock()
		s.Views[name] = vs
	}
	return s
}

// StreamHandler returns an http.Handler for one view's MJPEG stream
func (m *MJPEGOutput) StreamHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := m.views[name]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown view %q", name), http.StatusNotFound)
			return
		}
		frameChan, clientCount, ok := m.subscribe(v)
		if !ok {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		log := logger.WithComponent("mjpeg").With().Str("view", name).Str("remote", r.RemoteAddr).Logger()
		log.Info().Int("clients", clientCount).Msg("Client connected")

		defer func() {
			v.clientsMu.Lock()
			delete(v.clients, frameChan)
			clientCount := len(v.clients)
			v.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Client disconnected")
		}()

		// Show the last frame right away instead of waiting for the next one
		if latest, ok := m.Snapshot(name); ok {
			if writePart(w, latest) != nil {
				return
			}
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if writePart(w, jpegData) != nil {
					return
				}
			}
		}
	}
}

// subscribe adds a client channel to v if the output is running. It holds
// m.mu across the check and the insert, so Stop closes every channel
// handed out here.
func (m *MJPEGOutput) subscribe(v *view) (chan []byte, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.running {
		return nil, 0, false
	}

	ch := make(chan []byte, 2) // Buffer 2 frames
	v.clientsMu.Lock()
	v.clients[ch] = struct{}{}
	n := len(v.clients)
	v.clientsMu.Unlock()
	return ch, n, true
}

// writePart writes one multipart section and flushes it to the client
func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// ViewerHandler returns an HTTP handler for a page showing both views side by side
func (m *MJPEGOutput) ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>framerelay</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #111;
            color: #ccc;
            font-family: system-ui, -apple-system, sans-serif;
            min-height: 100vh;
        }
        .views {
            display: flex;
            flex-wrap: wrap;
            gap: 16px;
            padding: 16px;
            justify-content: center;
        }
        figure { flex: 1 1 480px; max-width: 50vw; }
        figcaption { padding: 6px 0; font-size: 13px; color: #888; }
        img { width: 100%; object-fit: contain; background: #000; display: block; }
        #stats { padding: 0 16px 16px; font-family: monospace; font-size: 12px; color: #4ec9b0; }
    </style>
</head>
<body>
    <div class="views">
        <figure><figcaption>raw</figcaption><img src="/stream/raw" alt="raw frames"></figure>
        <figure><figcaption>processed</figcaption><img src="/stream/processed" alt="processed frames"></figure>
    </div>
    <pre id="stats"></pre>
    <script>
        const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
        const ws = new WebSocket(proto + '//' + location.host + '/api/stats/ws');
        ws.onmessage = e => {
            document.getElementById('stats').textContent = JSON.stringify(JSON.parse(e.data), null, 2);
        };
    </script>
</body>
</html>`
