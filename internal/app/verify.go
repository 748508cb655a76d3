package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/output"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [formula...]",
	Short: "Download artifacts and check their checksums and contents",
	Long: `Download the artifact of every formula, or only the named ones, and check:
  • its sha256 matches the formula
  • it contains every binary the formula installs

Downloads run concurrently (download.workers in the config). Results are
listed in tap order. Exits with status 1 when any check fails.`,
	Example: `  tapkeeper verify
  tapkeeper verify outlyer outlyer@0.1.0`,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := loadTap(cfg)
	if err != nil {
		return err
	}
	ds, err := t.Select(args)
	if err != nil {
		return err
	}

	client, err := newFetchClient(cfg, nil)
	if err != nil {
		return err
	}

	spinner := output.NewSpinner(fmt.Sprintf("Verifying %d artifact(s)", len(ds)))
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()
	results := client.VerifyAll(cmdContext(cmd), ds)
	spinner.Stop()

	fmt.Fprint(cmd.OutOrStdout(), output.RenderVerificationTable(results))

	failed := 0
	for _, v := range results {
		if !v.OK() {
			failed++
		}
	}
	if failed > 0 {
		return &ExitError{Code: 1, Msg: fmt.Sprintf("%d of %d artifact(s) failed verification", failed, len(results))}
	}
	return nil
}
