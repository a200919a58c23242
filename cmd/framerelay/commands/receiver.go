package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/framerelay/internal/api"
	"github.com/bryanchriswhite/framerelay/internal/config"
	"github.com/bryanchriswhite/framerelay/internal/logger"
	"github.com/bryanchriswhite/framerelay/internal/output"
	"github.com/bryanchriswhite/framerelay/internal/stream"
	"github.com/bryanchriswhite/framerelay/internal/transform"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newReceiverCmd() *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:   "receiver",
		Short: "Accept one producer and rotate-crop its frames",
		Long: `Listen for a single producer connection, decode its frames, apply the
rotate-and-crop transform from the config file and display the raw and
processed frames.

The session ends when the producer disconnects or on Ctrl+C.`,
		Example: `  # Listen on the default port with a transform config
  framerelay receiver --config transform.json

  # Listen on localhost only, without the browser viewer
  framerelay receiver --config transform.json --host 127.0.0.1 --display-port 0

  # Show both views in X11 windows as well
  framerelay receiver --config transform.json --window`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceiver(cmd, v, configPath)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "transform config file (JSON, or YAML/TOML by extension)")
	f.String("host", config.DefaultReceiverHost, "address to listen on")
	f.Int("port", config.DefaultPort, "port to listen on")
	f.Int("display-port", config.DefaultDisplayPort, "viewer and API port (0 disables)")
	f.Bool("window", false, "show raw and processed frames in X11 windows")
	f.String("interpolation", transform.DefaultInterpolation, "resampling kernel (nearest, approx-bilinear, bilinear, catmull-rom)")
	cmd.MarkFlagRequired("config")

	v.BindPFlag("host", f.Lookup("host"))
	v.BindPFlag("port", f.Lookup("port"))
	v.BindPFlag("display_port", f.Lookup("display-port"))
	v.BindPFlag("window", f.Lookup("window"))
	v.BindPFlag("interpolation", f.Lookup("interpolation"))

	return cmd
}

func runReceiver(cmd *cobra.Command, v *viper.Viper, configPath string) error {
	cfg, err := config.LoadReceiver(v, configPath)
	if err != nil {
		return err
	}
	applyConfigLogLevel(cmd, cfg.LogLevel)
	log := logger.WithComponent("receiver")

	engine, err := transform.NewEngine(cfg.Interpolation)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outputs := []output.Output{output.NewLogOutput()}
	var mjpeg *output.MJPEGOutput
	if cfg.DisplayPort > 0 {
		mjpeg = output.NewMJPEGOutput(output.DefaultConfig())
		outputs = append(outputs, mjpeg)
	}
	if cfg.Window {
		outputs = append(outputs, output.NewX11Output(""))
	}
	out := output.Multi(outputs...)
	if err := out.Start(); err != nil {
		return fmt.Errorf("failed to start output: %w", err)
	}
	defer out.Stop()

	rcv := stream.NewReceiver(stream.ReceiverConfig{
		Addr:           cfg.Addr(),
		MaxMessageSize: cfg.MaxMessageSize,
		Params:         cfg.Transform,
	}, engine, out)
	if err := rcv.Listen(); err != nil {
		return err
	}
	defer rcv.Close()

	displayDone := make(chan error, 1)
	displayCtx, stopDisplay := context.WithCancel(ctx)
	defer stopDisplay()
	if mjpeg != nil {
		server := api.NewServer(rcv, mjpeg)
		ln, err := server.Listen(fmt.Sprintf("%s:%d", cfg.Host, cfg.DisplayPort))
		if err != nil {
			return err
		}
		go func() {
			displayDone <- server.Serve(displayCtx, ln)
		}()
	} else {
		displayDone <- nil
	}

	log.Info().
		Str("addr", rcv.Addr().String()).
		Str("interpolation", engine.Interpolation()).
		Msg("Receiver ready, press Ctrl+C to stop")

	serveErr := rcv.Serve(ctx)

	// Release viewers before the display server waits on them
	out.Stop()
	stopDisplay()
	if err := <-displayDone; err != nil && serveErr == nil {
		serveErr = err
	}

	if serveErr == nil {
		log.Info().Msg("Shutting down gracefully")
	}
	return serveErr
}
