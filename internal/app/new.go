package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/output"
	"github.com/blackwell-systems/tapkeeper/internal/release"
)

var (
	newFields  release.Fields
	newOffline bool
	newDryRun  bool

	newCmd = &cobra.Command{
		Use:   "new <name>",
		Short: "Create the first formula of a package",
		Long: `Create a formula for a package that is not in the tap yet.

The artifact is downloaded to compute its sha256 and to check that it
contains the binary to install. With --offline nothing is downloaded and
--sha256 is required.

The version defaults to the single version found in --url. --binary
defaults to the formula name; "path/in/archive=>name" installs under a
different name.`,
		Example: `  tapkeeper new outlyer \
    --url https://github.com/outlyerapp/outlyer-cli/releases/download/0.1.0/outlyer_0.1.0_Darwin_x86_64.tar.gz \
    --desc "Outlyer CLI" --homepage https://www.outlyer.com/`,
		Args: cobra.ExactArgs(1),
		RunE: runNew,
	}
)

func init() {
	newCmd.Flags().StringVar(&newFields.URL, "url", "", "artifact URL (required)")
	newCmd.Flags().StringVar(&newFields.Version, "version", "", "release version (default: taken from the URL)")
	newCmd.Flags().StringVar(&newFields.SHA256, "sha256", "", "artifact checksum (default: computed by downloading)")
	newCmd.Flags().StringVar(&newFields.Binary, "binary", "", "binary to install (default: formula name)")
	newCmd.Flags().StringVar(&newFields.Description, "desc", "", "one-line description")
	newCmd.Flags().StringVar(&newFields.Homepage, "homepage", "", "project homepage")
	newCmd.Flags().BoolVar(&newOffline, "offline", false, "do not download the artifact")
	newCmd.Flags().BoolVar(&newDryRun, "dry-run", false, "print the formula instead of writing it")
	newCmd.MarkFlagRequired("url")
}

func runNew(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := loadTap(cfg)
	if err != nil {
		return err
	}

	d, err := release.New(args[0], newFields)
	if err != nil {
		return err
	}

	cutter, err := newCutter(cfg, t, newOffline, output.ProgressWriter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	res, err := cutter.Create(cmdContext(cmd), d, newDryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if newDryRun {
		_, err := out.Write(formula.Render(res.Descriptor))
		return err
	}
	for _, path := range res.Paths {
		fmt.Fprintf(out, "✓ Wrote %s\n", t.RelPath(path))
	}
	fmt.Fprintf(out, "\nNext: tapkeeper lint %s && tapkeeper publish %s\n", d.Name, d.Name)
	return nil
}
