package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/ledger"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/logging"
	"github.com/blackwell-systems/tapkeeper/internal/output"
)

var (
	lintLedger    bool
	lintNoHistory bool
	lintFormat    string

	lintCmd = &cobra.Command{
		Use:   "lint [formula...]",
		Short: "Check formulae for authoring and publication errors",
		Long: `Check every formula in the tap, or only the named ones.

Each formula is checked on its own:
  • name, url, version and sha256 are present
  • the url carries the declared version
  • the sha256 is 64 lowercase hex characters
  • exactly one binary is installed

Each package is then checked across its releases in publication order:
  • no version is published twice with different content
  • versions only ever increase
  • every release installs the same binary

Publication order comes from the tap's git history when it is a git
repository, otherwise from the files themselves (name@version.rb before
name.rb). With --ledger the releases recorded by 'tapkeeper publish' come
first.

Exits with status 1 when any error is found.`,
		Example: `  # Check the whole tap
  tapkeeper lint

  # Check one package against the ledger, ignoring git history
  tapkeeper lint outlyer --ledger --no-history`,
		RunE: runLint,
	}
)

func init() {
	lintCmd.Flags().BoolVar(&lintLedger, "ledger", false, "check against releases recorded in the ledger")
	lintCmd.Flags().BoolVar(&lintNoHistory, "no-history", false, "ignore git history; order releases by file name")
	lintCmd.Flags().StringVar(&lintFormat, "format", "table", "output format: table, json or yaml")
}

func runLint(cmd *cobra.Command, args []string) error {
	defer logging.Duration(logging.For("lint"), "lint")()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := loadTap(cfg)
	if err != nil {
		return err
	}
	heads, err := t.Select(args)
	if err != nil {
		return err
	}

	var led *ledger.Ledger
	if lintLedger {
		led, err = openLedger(cfg, false)
		if err != nil {
			return err
		}
		defer led.Close()
	}

	order, source, err := publicationOrder(cmdContext(cmd), t, !lintNoHistory, led)
	if err != nil {
		return err
	}
	order = restrictOrder(order, heads)

	report := lint.New(logging.For("lint")).Run(heads, order)
	if len(args) == 0 {
		report.Add(loadErrorIssues(t.Errors)...)
		report.Sort()
	}
	logger := logging.For("lint")
	logger.Info().Str("order", source).Msg("publication order")

	out := cmd.OutOrStdout()
	if lintFormat == "table" {
		fmt.Fprint(out, output.RenderIssueTable(report))
	} else if err := writeFormatted(out, lintFormat, report); err != nil {
		return err
	}

	if report.HasErrors() {
		return &ExitError{Code: 1, Msg: fmt.Sprintf("lint failed with %d error(s)", len(report.Errors()))}
	}
	return nil
}

// restrictOrder keeps only the packages that heads belong to.
func restrictOrder(order map[string][]*formula.Descriptor, heads []*formula.Descriptor) map[string][]*formula.Descriptor {
	keep := make(map[string][]*formula.Descriptor)
	for _, d := range heads {
		if seq, ok := order[d.Package()]; ok {
			keep[d.Package()] = seq
		}
	}
	return keep
}
