package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/output"
	"github.com/blackwell-systems/tapkeeper/internal/release"
)

var (
	bumpURL          string
	bumpSHA256       string
	bumpKeepPrevious bool
	bumpPublish      bool
	bumpDryRun       bool
	bumpYes          bool
	bumpOffline      bool

	bumpCmd = &cobra.Command{
		Use:   "bump <formula> <version>",
		Short: "Cut a new release of a formula",
		Long: `Replace a formula's release with a newer version.

The new URL is the old one with every occurrence of the old version
replaced, unless --url is given. The artifact is downloaded to compute its
sha256 and to check that it still contains the installed binary; a
--sha256 given on the command line must match it. With --offline nothing
is downloaded and --sha256 is required.

--keep-previous writes the old release as name@version.rb so it stays
installable. --publish records the new release in the ledger once it is
written.

The formula is only written after confirmation unless --yes is given.`,
		Example: `  # Cut 0.3.0, keeping 0.2.0 installable as outlyer@0.2.0
  tapkeeper bump outlyer 0.3.0 --keep-previous

  # Show the new formula without writing it
  tapkeeper bump outlyer 0.3.0 --dry-run

  # Non-interactive release with a known checksum
  tapkeeper bump outlyer 0.3.0 --sha256 <sum> --offline --yes --publish`,
		Args: cobra.ExactArgs(2),
		RunE: runBump,
	}
)

func init() {
	bumpCmd.Flags().StringVar(&bumpURL, "url", "", "artifact URL (default: previous URL with the version replaced)")
	bumpCmd.Flags().StringVar(&bumpSHA256, "sha256", "", "expected artifact checksum")
	bumpCmd.Flags().BoolVar(&bumpKeepPrevious, "keep-previous", false, "keep the previous release as name@version")
	bumpCmd.Flags().BoolVar(&bumpPublish, "publish", false, "record the new release in the ledger")
	bumpCmd.Flags().BoolVar(&bumpDryRun, "dry-run", false, "print the new formula without writing it")
	bumpCmd.Flags().BoolVarP(&bumpYes, "yes", "y", false, "do not ask for confirmation")
	bumpCmd.Flags().BoolVar(&bumpOffline, "offline", false, "do not download the artifact")
}

func runBump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := loadTap(cfg)
	if err != nil {
		return err
	}
	cutter, err := newCutter(cfg, t, bumpOffline, output.ProgressWriter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	res, err := cutter.Cut(cmdContext(cmd), args[0], args[1], release.Options{
		URL:          bumpURL,
		SHA256:       bumpSHA256,
		KeepPrevious: bumpKeepPrevious,
		DryRun:       true,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printPlan(cmd, res)
	if bumpDryRun {
		fmt.Fprintln(out)
		_, err := out.Write(formula.Render(res.Descriptor))
		return err
	}

	if !bumpYes {
		ok, err := confirm(cmd.InOrStdin(), out, "Write release?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if _, err := cutter.Apply(res); err != nil {
		return err
	}
	for _, path := range res.Paths {
		fmt.Fprintf(out, "✓ Wrote %s\n", t.RelPath(path))
	}

	if bumpPublish {
		led, err := openLedger(cfg, true)
		if err != nil {
			return err
		}
		defer led.Close()
		result, err := led.Publish(res.Descriptor, time.Now())
		if err != nil {
			return fmt.Errorf("release written but not published: %w", err)
		}
		fmt.Fprintf(out, "✓ %s %s %s\n", res.Descriptor.Name, res.Descriptor.Version, result)
	}
	return nil
}

func printPlan(cmd *cobra.Command, res *release.Result) {
	out := cmd.OutOrStdout()
	d := res.Descriptor
	fmt.Fprintf(out, "%s %s → %s\n", d.Name, res.Previous.Version, d.Version)
	fmt.Fprintf(out, "  url:    %s\n", d.URL)
	fmt.Fprintf(out, "  sha256: %s\n", d.SHA256)
	if res.Kept != nil {
		fmt.Fprintf(out, "  keeps:  %s\n", res.Kept.Name)
	}
}
