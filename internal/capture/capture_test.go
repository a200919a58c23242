package capture

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternCapturer(t *testing.T) {
	p := NewPatternCapturer(Options{Width: 32, Height: 24})
	require.True(t, p.IsAvailable())

	_, err := p.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, p.Start())
	defer p.Stop()

	first, err := p.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 32, first.Width)
	assert.Equal(t, 24, first.Height)
	assert.Equal(t, uint8(3), first.Channels)
	require.NoError(t, first.Validate())

	second, err := p.Capture(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Equal(second), "pattern should move between frames")
	assert.Equal(t, 2, p.Sequence())
}

func TestPatternCapturerChannels(t *testing.T) {
	for _, ch := range []uint8{1, 3, 4} {
		p := NewPatternCapturerWithChannels(Options{Width: 5, Height: 5}, ch)
		require.NoError(t, p.Start())
		f, err := p.Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ch, f.Channels)
		assert.Len(t, f.Pix, 25*int(ch))
	}

	assert.False(t, NewPatternCapturerWithChannels(Options{Width: 5, Height: 5}, 2).IsAvailable())
	assert.False(t, NewPatternCapturer(Options{}).IsAvailable())
}

func TestPatternCapturerCancelled(t *testing.T) {
	p := NewPatternCapturer(Options{Width: 4, Height: 4})
	require.NoError(t, p.Start())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Capture(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	c, err := Open("PATTERN", Options{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Equal(t, "Pattern", c.Name())

	_, err = Open("webcam", Options{Width: 8, Height: 8})
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = Open("pattern", Options{})
	assert.Error(t, err)
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []string{"ffmpeg", "gst", "pattern", "x11"}, Kinds())
}

func TestGStreamerPipeline(t *testing.T) {
	p := gstPipeline(Options{Device: "/dev/video2", Width: 320, Height: 240, FPS: 15})
	assert.True(t, strings.HasPrefix(p, "v4l2src device=/dev/video2 "))
	assert.Contains(t, p, "video/x-raw,format=RGB,width=320,height=240,framerate=15/1")
	assert.True(t, strings.HasSuffix(p, "fdsink fd=1 sync=false"))
}

func TestFFmpegCommand(t *testing.T) {
	c := NewFFmpegCapturer(Options{Device: "/dev/video0", InputFormat: "v4l2", Width: 640, Height: 480, FPS: 30})
	cmd, err := c.command()
	require.NoError(t, err)

	args := strings.Join(cmd.Args, " ")
	assert.Contains(t, args, "-f v4l2")
	assert.Contains(t, args, "-i /dev/video0")
	assert.Contains(t, args, "-pix_fmt rgb24")
	assert.Contains(t, args, "-s 640x480")
	assert.Contains(t, args, "pipe:")
}

func TestSubprocessCapturerNotStarted(t *testing.T) {
	c := NewGStreamerCapturer(Options{Width: 2, Height: 2})
	_, err := c.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, c.Stop())
}

func TestX11Display(t *testing.T) {
	assert.Equal(t, ":1", NewX11Capturer(Options{Device: ":1"}).display)
	assert.Equal(t, "", NewX11Capturer(Options{Device: "/dev/video0"}).display)

	_, err := NewX11Capturer(Options{Device: ":1"}).Capture(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}
