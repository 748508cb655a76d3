package app

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/ledger"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/logging"
	"github.com/blackwell-systems/tapkeeper/internal/output"
)

var (
	publishForce bool

	publishCmd = &cobra.Command{
		Use:   "publish [formula...]",
		Short: "Record the tap's releases in the ledger",
		Long: `Record every formula in the tap, or only the named ones, in the release
ledger (~/.tapkeeper/ledger.db unless --db or the config says otherwise).

The ledger is append-only. A release that is already recorded is left
alone; a recorded version can never be recorded again with a different
URL or checksum, and a new version must be greater than the package's
latest. Releases of a package are recorded oldest first
(name@version.rb before name.rb).

The formulae are linted against the ledger first and nothing is recorded
when lint finds errors, unless --force is given.`,
		Example: `  tapkeeper publish
  tapkeeper publish outlyer --db ./ledger.db`,
		RunE: runPublish,
	}
)

func init() {
	publishCmd.Flags().BoolVar(&publishForce, "force", false, "publish even when lint finds errors")
}

func runPublish(cmd *cobra.Command, args []string) error {
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

	led, err := openLedger(cfg, true)
	if err != nil {
		return err
	}
	defer led.Close()

	out := cmd.OutOrStdout()
	order, _, err := publicationOrder(cmdContext(cmd), t, true, led)
	if err != nil {
		return err
	}
	report := lint.New(logging.For("lint")).Run(heads, restrictOrder(order, heads))
	if report.HasErrors() && !publishForce {
		fmt.Fprint(out, output.RenderIssueTable(report))
		return &ExitError{Code: 1, Msg: "not publishing: lint found errors (use --force to override)"}
	}

	seqs := lint.HeadOrder(heads)
	pkgs := make([]string, 0, len(seqs))
	for pkg := range seqs {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	now := time.Now()
	published, unchanged, failed := 0, 0, 0
	for _, pkg := range pkgs {
		for _, d := range seqs[pkg] {
			result, err := led.Publish(d, now)
			if err != nil {
				fmt.Fprintf(out, "✗ %s %s: %v\n", d.Name, d.Version, err)
				failed++
				continue
			}
			if result == ledger.ResultPublished {
				fmt.Fprintf(out, "✓ %s %s published\n", d.Name, d.Version)
				published++
			} else {
				unchanged++
			}
		}
	}

	fmt.Fprintf(out, "\n%d published, %d unchanged, %d failed\n", published, unchanged, failed)
	if failed > 0 {
		return &ExitError{Code: 1, Msg: fmt.Sprintf("%d release(s) could not be published", failed)}
	}
	return nil
}
