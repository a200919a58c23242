package output

import (
	"bufio"
	"bytes"
	"errors"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/framerelay/internal/frame"
	"github.com/bryanchriswhite/framerelay/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayFrame(w, h int, channels uint8) *frame.Frame {
	f := frame.New(w, h, channels)
	for i := range f.Pix {
		f.Pix[i] = 128
	}
	return f
}

func TestMJPEGRequiresStart(t *testing.T) {
	m := NewMJPEGOutput(DefaultConfig())
	assert.False(t, m.IsRunning())
	assert.Error(t, m.WriteFrames(grayFrame(4, 4, 3), nil))

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

func TestMJPEGSnapshots(t *testing.T) {
	m := NewMJPEGOutput(Config{Quality: 90})
	require.NoError(t, m.Start())
	defer m.Stop()

	_, ok := m.Snapshot(ViewRaw)
	assert.False(t, ok)

	require.NoError(t, m.WriteFrames(grayFrame(64, 48, 3), grayFrame(30, 20, 1)))

	for name, size := range map[string][2]int{ViewRaw: {64, 48}, ViewProcessed: {30, 20}} {
		data, ok := m.Snapshot(name)
		require.True(t, ok, name)
		img, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err, name)
		assert.Equal(t, size[0], img.Bounds().Dx(), name)
		assert.Equal(t, size[1], img.Bounds().Dy(), name)
	}

	stats := m.Stats()
	assert.True(t, stats.Running)
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Equal(t, 30, stats.Views[ViewProcessed].Width)

	_, ok = m.Snapshot("sideways")
	assert.False(t, ok)
	assert.False(t, m.HasView("sideways"))
}

func TestMJPEGStreamHandler(t *testing.T) {
	m := NewMJPEGOutput(DefaultConfig())
	require.NoError(t, m.Start())
	require.NoError(t, m.WriteFrames(grayFrame(16, 16, 3), grayFrame(8, 8, 3)))

	srv := httptest.NewServer(m.StreamHandler(ViewProcessed))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: image/jpeg\r\n", line)

	// Stopping the output ends the stream for connected clients
	require.Eventually(t, func() bool { return m.Stats().Views[ViewProcessed].Clients == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, m.Stop())
}

func TestMJPEGStopReleasesEveryClient(t *testing.T) {
	for round := 0; round < 50; round++ {
		m := NewMJPEGOutput(DefaultConfig())
		require.NoError(t, m.Start())

		var wg sync.WaitGroup
		codes := make(chan int, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec := httptest.NewRecorder()
				m.StreamHandler(ViewRaw)(rec, httptest.NewRequest(http.MethodGet, "/stream/raw", nil))
				codes <- rec.Code
			}()
		}
		require.NoError(t, m.Stop())

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: a client is still streaming after Stop", round)
		}

		close(codes)
		for code := range codes {
			assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, code)
		}
	}
}

func TestMJPEGStreamHandlerAfterStop(t *testing.T) {
	m := NewMJPEGOutput(DefaultConfig())
	require.NoError(t, m.Start())
	require.NoError(t, m.Stop())

	rec := httptest.NewRecorder()
	m.StreamHandler(ViewRaw)(rec, httptest.NewRequest(http.MethodGet, "/stream/raw", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, m.Stats().Views[ViewRaw].Clients)
}

func TestMJPEGStreamHandlerUnknownView(t *testing.T) {
	m := NewMJPEGOutput(DefaultConfig())
	require.NoError(t, m.Start())
	defer m.Stop()

	rec := httptest.NewRecorder()
	m.StreamHandler("sideways")(rec, httptest.NewRequest(http.MethodGet, "/stream/sideways", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewerHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMJPEGOutput(DefaultConfig()).ViewerHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "/stream/raw")
	assert.Contains(t, rec.Body.String(), "/stream/processed")
}

type failingOutput struct {
	LogOutput
}

func (f *failingOutput) WriteFrames(raw, processed *frame.Frame) error {
	return errors.New("display gone")
}

func TestMulti(t *testing.T) {
	log := NewLogOutput()
	bad := &failingOutput{}
	m := Multi(log, bad)

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	err := m.WriteFrames(grayFrame(2, 2, 3), grayFrame(1, 1, 3))
	assert.ErrorContains(t, err, "display gone")
	assert.Equal(t, uint64(1), log.Frames())

	require.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())
}

func TestPackRows(t *testing.T) {
	f := frame.New(3, 2, 3)
	for i := range f.Pix {
		f.Pix[i] = byte(i + 1)
	}
	img := f.ToRGBA()

	data, stride := packRows(img, 4, 4)
	assert.Equal(t, 12, stride)
	require.Len(t, data, 24)
	// First pixel RGB 1,2,3 becomes BGRx
	assert.Equal(t, []byte{3, 2, 1, 0}, data[0:4])
	// Second row starts at the stride
	assert.Equal(t, []byte{12, 11, 10, 0}, data[12:16])

	data, stride = packRows(img, 3, 4)
	assert.Equal(t, 12, stride, "9 bytes of BGR padded to 12")
	assert.Equal(t, []byte{3, 2, 1}, data[0:3])
	assert.Equal(t, []byte{0, 0, 0}, data[9:12])
}

func TestRowsPerRequest(t *testing.T) {
	assert.Equal(t, 102, rowsPerRequest(262140, 640*4))
	assert.Equal(t, 1, rowsPerRequest(100, 4096))
}

func TestX11OutputRequiresStart(t *testing.T) {
	x := NewX11Output(":99")
	assert.False(t, x.IsRunning())
	assert.Error(t, x.WriteFrames(grayFrame(2, 2, 3), nil))
	assert.NoError(t, x.Stop())
}

func TestMJPEGOutlineOnRawView(t *testing.T) {
	m := NewMJPEGOutput(Config{Quality: 100, Outline: true})
	require.NoError(t, m.Start())
	defer m.Stop()

	g := transform.Plan(64, 48, transform.Params{Alpha: 0, OX: 0.5, OY: 0.5, Width: 0.5, Height: 0.5})
	var out Output = Multi(m)
	out.(GeometryAware).SetGeometry(g)
	require.NoError(t, out.WriteFrames(grayFrame(64, 48, 3), grayFrame(32, 24, 3)))

	pts := m.views[ViewRaw].outline.Points()
	require.Len(t, pts, 4)
	assert.Equal(t, 16, pts[0].X)
	assert.Equal(t, 12, pts[0].Y)
	assert.Nil(t, m.views[ViewProcessed].outline)

	data, ok := m.Snapshot(ViewRaw)
	require.True(t, ok)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, gr, b, _ := img.At(32, 36).RGBA()
	assert.Greater(t, gr>>8, r>>8, "outline is green")
	assert.Greater(t, gr>>8, b>>8, "outline is green")
}
