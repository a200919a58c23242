package commands

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bryanchriswhite/framerelay/internal/capture"
	"github.com/bryanchriswhite/framerelay/internal/config"
	"github.com/bryanchriswhite/framerelay/internal/stream"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const dialTimeout = 5 * time.Second

func newProducerCmd() *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:   "producer",
		Short: "Capture frames and send them to a receiver",
		Long: `Capture frames from the selected source and send one length-prefixed
message per frame to the receiver, paced to the requested frame rate.

By default the first camera (/dev/video0) is read through ffmpeg. Use
--source pattern to send a synthetic test pattern when no camera is present.

Sources: ` + strings.Join(capture.Kinds(), ", ") + `.`,
		Example: `  # Send the default camera to a local receiver
  framerelay producer --host 127.0.0.1 --port 9999

  # Send a synthetic test pattern at 15 fps
  framerelay producer --host 10.0.0.5 --port 9999 --source pattern --fps 15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProducer(cmd, v, configPath)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "optional producer config file")
	f.String("host", config.DefaultProducerHost, "receiver address")
	f.Int("port", config.DefaultPort, "receiver port")
	f.Int("fps", config.DefaultFPS, "target frame rate")
	f.String("source", config.DefaultSource, "capture source ("+strings.Join(capture.Kinds(), ", ")+")")
	f.String("device", config.DefaultDevice, "capture device, or X display for the x11 source")
	f.String("input-format", config.DefaultInputFormat, "ffmpeg input format for the device")
	f.Int("capture-width", config.DefaultCaptureWidth, "captured frame width")
	f.Int("capture-height", config.DefaultCaptureHeight, "captured frame height")
	f.Duration("write-timeout", 0, "per-frame write deadline (0 waits for the receiver)")

	for key, flag := range map[string]string{
		"host":           "host",
		"port":           "port",
		"fps":            "fps",
		"source":         "source",
		"device":         "device",
		"input_format":   "input-format",
		"capture_width":  "capture-width",
		"capture_height": "capture-height",
		"write_timeout":  "write-timeout",
	} {
		v.BindPFlag(key, f.Lookup(flag))
	}

	return cmd
}

func runProducer(cmd *cobra.Command, v *viper.Viper, configPath string) error {
	cfg, err := config.LoadProducer(v, configPath)
	if err != nil {
		return err
	}
	applyConfigLogLevel(cmd, cfg.LogLevel)

	src, err := capture.Open(cfg.Source, capture.Options{
		Device:      cfg.Device,
		InputFormat: cfg.InputFormat,
		Width:       cfg.CaptureWidth,
		Height:      cfg.CaptureHeight,
		FPS:         cfg.FPS,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer := stream.NewProducer(stream.ProducerConfig{
		Addr:           cfg.Addr(),
		Interval:       cfg.Interval(),
		DialTimeout:    dialTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
	}, src)
	return producer.Run(ctx)
}
