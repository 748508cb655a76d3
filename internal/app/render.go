package app

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
)

var (
	renderCheck bool

	renderCmd = &cobra.Command{
		Use:   "render <file>",
		Short: "Print a formula in canonical form",
		Long: `Parse a formula file and print it the way tapkeeper writes formulae.

With --check nothing is printed; the command exits with status 1 when the
file is not already in canonical form.`,
		Example: `  tapkeeper render Formula/outlyer.rb
  tapkeeper render --check Formula/outlyer.rb`,
		Args: cobra.ExactArgs(1),
		RunE: runRender,
	}
)

func init() {
	renderCmd.Flags().BoolVar(&renderCheck, "check", false, "exit 1 if the file differs from its canonical form")
}

func runRender(cmd *cobra.Command, args []string) error {
	path := args[0]
	d, err := formula.ParseFile(path)
	if err != nil {
		return err
	}
	rendered := formula.Render(d)

	if !renderCheck {
		_, err := cmd.OutOrStdout().Write(rendered)
		return err
	}

	current, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !bytes.Equal(current, rendered) {
		return &ExitError{Code: 1, Msg: fmt.Sprintf("%s is not in canonical form", path)}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is in canonical form\n", path)
	return nil
}
