package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeusync/xihe/internal/injector"
	"github.com/zeusync/xihe/internal/labels"
)

type labelsOptions struct {
	output     string
	workers    int
	downsample int
	noFlip     bool
}

// NewLabelsCommand creates the labels command.
func NewLabelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &labelsOptions{}

	cmd := &cobra.Command{
		Use:   "labels <maps-dir>",
		Short: "Generate SH labels from environment maps",
		Long: `Project every LDR environment map in a directory, and its optional
<name>_r/_g/_b 16-bit HDR channels, onto degree 2 spherical harmonics.

Each map <name>.png produces <output>/<name>/shc_ldr.json and, when the
HDR channels exist, shc_hdr.json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLabels(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "override labels.output_dir")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "override labels.workers")
	cmd.Flags().IntVar(&opts.downsample, "downsample", 0, "override labels.downsample")
	cmd.Flags().BoolVar(&opts.noFlip, "no-flip", false, "do not mirror LDR maps")

	return cmd
}

func runLabels(cmd *cobra.Command, rootOpts *RootOptions, opts *labelsOptions, dir string) error {
	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	if opts.output != "" {
		cfg.Labels.OutputDir = opts.output
	}
	if opts.workers > 0 {
		cfg.Labels.Workers = opts.workers
	}
	if opts.downsample > 0 {
		cfg.Labels.Downsample = opts.downsample
	}
	if opts.noFlip {
		cfg.Labels.Flip = false
	}

	items, err := labels.Discover(dir)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no environment maps in %s", dir)
	}

	gen, err := injector.InitializeGenerator(cfg)
	if err != nil {
		return err
	}
	if err := gen.Run(cmd.Context(), items); err != nil {
		return err
	}

	cmd.Printf("wrote %d labels to %s\n", len(items), cfg.Labels.OutputDir)
	return nil
}
