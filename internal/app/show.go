package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/tapkeeper/internal/output"
)

var (
	showFormat string

	showCmd = &cobra.Command{
		Use:   "show <formula>",
		Short: "Show a formula's release descriptor",
		Long: `Show the release descriptor of a formula.

A package name shows its current release; a versioned name such as
outlyer@0.1.0 shows that file.`,
		Example: `  tapkeeper show outlyer
  tapkeeper show outlyer@0.1.0 --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	}
)

func init() {
	showCmd.Flags().StringVar(&showFormat, "format", "table", "output format: table, json or yaml")
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := loadTap(cfg)
	if err != nil {
		return err
	}
	d, err := t.Lookup(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showFormat == "table" {
		fmt.Fprint(out, output.RenderDescriptor(d))
		return nil
	}
	return writeFormatted(out, showFormat, d)
}

// writeFormatted encodes v as json or yaml.
func writeFormatted(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}
