package cli

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zeusync/xihe/internal/core/anchor"
)

// NewAnchorsCommand creates the anchors command.
func NewAnchorsCommand(_ *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "anchors <size>",
		Short: "Print a Fibonacci anchor table as JSON",
		Long: `Print the unit anchor directions of a table as a JSON array of
[x, y, z] triples, in the index order used by the sparse uplink formats.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			table, err := anchor.Generate(n)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writeAnchors(w, table)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")

	return cmd
}

func writeAnchors(w io.Writer, table *anchor.Table) error {
	rows := make([][3]float32, table.Len())
	for i, d := range table.Directions() {
		rows[i] = [3]float32{d.X, d.Y, d.Z}
	}
	return json.NewEncoder(w).Encode(rows)
}
