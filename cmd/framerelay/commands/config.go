package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bryanchriswhite/framerelay/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect framerelay configuration",
		Long:  `View the configuration the receiver or producer would run with.`,
	}

	var (
		configPath string
		format     string
		role       string
	)
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Load a config file the same way the receiver or producer does, apply
defaults and range fallbacks, and print the result.`,
		Example: `  # Show the receiver config as YAML (default)
  framerelay config show --config transform.json

  # Show the producer defaults as JSON
  framerelay config show --role producer --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout(), configPath, role, format)
		},
	}
	showCmd.Flags().StringVar(&configPath, "config", "", "config file to load")
	showCmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format (yaml or json)")
	showCmd.Flags().StringVar(&role, "role", "receiver", "which side's config to show (receiver or producer)")

	configCmd.AddCommand(showCmd)
	return configCmd
}

func runConfigShow(w io.Writer, configPath, role, format string) error {
	var cfg interface{}
	var err error
	switch role {
	case "receiver":
		cfg, err = config.LoadReceiver(viper.New(), configPath)
	case "producer":
		cfg, err = config.LoadProducer(viper.New(), configPath)
	default:
		return fmt.Errorf("unsupported role: %s (use 'receiver' or 'producer')", role)
	}
	if err != nil {
		return err
	}

	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}
