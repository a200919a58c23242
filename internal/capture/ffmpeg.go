package capture

import (
	"fmt"
	"os/exec"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegCapturer reads camera frames through an ffmpeg subprocess that
// decodes the device and writes rawvideo rgb24 to a pipe
type FFmpegCapturer struct {
	*subprocessCapturer
}

// NewFFmpegCapturer creates a capturer for opts.Device using demuxer opts.InputFormat
func NewFFmpegCapturer(opts Options) *FFmpegCapturer {
	size := fmt.Sprintf("%dx%d", opts.Width, opts.Height)

	input := ffmpeg.KwArgs{"video_size": size}
	if opts.InputFormat != "" {
		input["f"] = opts.InputFormat
	}
	if opts.FPS > 0 {
		input["framerate"] = opts.FPS
	}

	return &FFmpegCapturer{&subprocessCapturer{
		name:     "FFmpeg",
		binary:   "ffmpeg",
		width:    opts.Width,
		height:   opts.Height,
		channels: 3,
		command: func() (*exec.Cmd, error) {
			cmd := ffmpeg.Input(opts.Device, input).
				Output("pipe:", ffmpeg.KwArgs{
					"format":   "rawvideo",
					"pix_fmt":  "rgb24",
					"s":        size,
					"loglevel": "warning",
				}).
				Compile()
			return cmd, nil
		},
	}}
}
