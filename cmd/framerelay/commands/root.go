package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/framerelay/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	logLevel  string
	logPretty bool
	rootCmd   = &cobra.Command{
		Use:   "framerelay",
		Short: "framerelay - stream camera frames over TCP and rotate-crop them on arrival",
		Long: `framerelay sends raw camera frames from a producer to a receiver over a
plain TCP connection, using a length-prefixed framing protocol.

The receiver reassembles each frame, rotates it about a configurable center,
crops a configurable rectangle that never samples outside the source frame,
and shows the raw and processed frames side by side in a browser.

Features:
  • Length-prefixed framing with strict corruption limits
  • Rotate-and-crop with automatic shrink to stay in bounds
  • Capture from a test pattern, ffmpeg, GStreamer or an X11 screen
  • MJPEG viewer and JSON stats API`,
		SilenceUsage:     true,
		PersistentPreRun: initLogging,
	}
)

func init() {
	addLogFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newReceiverCmd())
	rootCmd.AddCommand(newProducerCmd())
	rootCmd.AddCommand(newConfigCmd())
}

func addLogFlags(f *pflag.FlagSet) {
	f.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.BoolVar(&logPretty, "log-pretty", true, "human-readable console logs instead of JSON")
}

func initLogging(cmd *cobra.Command, args []string) {
	logger.Init(logLevel, logPretty)
}

// applyConfigLogLevel switches to the config file's log level unless one
// was given on the command line
func applyConfigLogLevel(cmd *cobra.Command, level string) {
	if level == "" || cmd.Flags().Changed("log-level") {
		return
	}
	logLevel = level
	logger.Init(logLevel, logPretty)
}

// Execute runs the root command
func Execute() {
	execute(rootCmd)
}

// ExecuteReceiver runs the receiver command as a standalone program
func ExecuteReceiver() {
	execute(standalone(newReceiverCmd()))
}

// ExecuteProducer runs the producer command as a standalone program
func ExecuteProducer() {
	execute(standalone(newProducerCmd()))
}

func standalone(cmd *cobra.Command) *cobra.Command {
	addLogFlags(cmd.PersistentFlags())
	cmd.SilenceUsage = true
	cmd.PersistentPreRun = initLogging
	return cmd
}

func execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
