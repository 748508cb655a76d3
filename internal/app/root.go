package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/logging"
)

var (
	tapFlag    string
	dbPath     string
	configPath string
	verbosity  int

	// version is set at build time with -ldflags "-X .../internal/app.version=..."
	version = "dev"

	// RootCmd is the root command for tapkeeper
	RootCmd = &cobra.Command{
		Use:   "tapkeeper",
		Short: "Maintain a Homebrew tap of prebuilt-binary formulae",
		Long: `tapkeeper keeps the release descriptors of a Homebrew tap consistent.

Each formula in the tap describes one release of a prebuilt binary: where
to download it, which version it is, the sha256 it must hash to and the
binary it installs. tapkeeper parses those formulae, checks them against
each other and against their published history, cuts new releases and
verifies that every artifact matches its checksum before users install it.

The tap is the current directory unless --tap names a directory or an
installed tap such as outlyerapp/outlyer.

Examples:
  # Check every formula in the tap
  tapkeeper lint

  # Cut a new release, keeping the old one as outlyer@0.2.0
  tapkeeper bump outlyer 0.3.0 --keep-previous

  # Download every artifact and compare checksums
  tapkeeper verify

  # Record the current formulae in the release ledger
  tapkeeper publish`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(verbosity, nil)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "tapkeeper: release descriptor tooling for Homebrew taps")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'tapkeeper lint' to check the tap in the current directory.")
			fmt.Fprintln(out, "Run 'tapkeeper --help' for all commands.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&tapFlag, "tap", "", "tap directory or user/repo name (default: config, then current directory)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "ledger database path (default: ~/.tapkeeper/ledger.db)")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/tapkeeper/config.yaml)")
	RootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	// Register subcommands
	RootCmd.AddCommand(lintCmd)
	RootCmd.AddCommand(showCmd)
	RootCmd.AddCommand(renderCmd)
	RootCmd.AddCommand(newCmd)
	RootCmd.AddCommand(bumpCmd)
	RootCmd.AddCommand(verifyCmd)
	RootCmd.AddCommand(publishCmd)
	RootCmd.AddCommand(releasesCmd)
	RootCmd.AddCommand(watchCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(doctorCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}
