package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/output"
)

var (
	releasesFormat string

	releasesCmd = &cobra.Command{
		Use:   "releases <package>",
		Short: "List a package's recorded releases",
		Long: `List every release of a package recorded in the ledger, oldest first,
with the release that superseded each one.`,
		Example: `  tapkeeper releases outlyer
  tapkeeper releases outlyer --format json`,
		Args: cobra.ExactArgs(1),
		RunE: runReleases,
	}
)

func init() {
	releasesCmd.Flags().StringVar(&releasesFormat, "format", "table", "output format: table, json or yaml")
}

func runReleases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	led, err := openLedger(cfg, false)
	if err != nil {
		return err
	}
	defer led.Close()

	releases, err := led.Releases(formula.BaseName(args[0]))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if releasesFormat == "table" {
		fmt.Fprint(out, output.RenderReleaseTable(releases))
		return nil
	}
	return writeFormatted(out, releasesFormat, releases)
}
