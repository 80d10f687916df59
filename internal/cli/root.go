// Package cli implements the xihe command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/zeusync/xihe/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the root command for the xihe CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "xihe",
		Short: "Xihe - mobile lighting estimation",
		Long: `Xihe estimates environment lighting as degree 2 spherical harmonics
from sparse point clouds captured on mobile devices.

Run the service, generate SH labels from environment maps, and inspect
anchor tables and coefficient files.`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewLabelsCommand(opts))
	cmd.AddCommand(NewAnchorsCommand(opts))
	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewSplatCommand(opts))

	return cmd
}

// loadConfig reads the configured file, or the defaults, and applies the
// global overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Provide(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, cfg.Validate()
}
