package capture

import (
	"fmt"
	"os/exec"
	"strings"
)

// GStreamerCapturer reads camera frames from a gst-launch-1.0 subprocess.
// Running the pipeline out of process avoids CGO bindings entirely.
type GStreamerCapturer struct {
	*subprocessCapturer
}

// NewGStreamerCapturer creates a v4l2src pipeline for opts.Device
func NewGStreamerCapturer(opts Options) *GStreamerCapturer {
	return &GStreamerCapturer{&subprocessCapturer{
		name:     "GStreamer",
		binary:   "gst-launch-1.0",
		width:    opts.Width,
		height:   opts.Height,
		channels: 3,
		command: func() (*exec.Cmd, error) {
			pipeline := gstPipeline(opts)
			args := append([]string{"-q"}, strings.Fields(pipeline)...)
			return exec.Command("gst-launch-1.0", args...), nil
		},
	}}
}

// gstPipeline builds: v4l2src -> videoconvert -> scale -> RGB caps -> raw output to stdout
func gstPipeline(opts Options) string {
	caps := fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", opts.Width, opts.Height)
	if opts.FPS > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", opts.FPS)
	}
	return fmt.Sprintf(
		"v4l2src device=%s do-timestamp=true ! "+
			"videoconvert ! "+
			"videoscale ! "+
			"videorate ! "+
			"%s ! "+
			"fdsink fd=1 sync=false",
		opts.Device, caps,
	)
}
