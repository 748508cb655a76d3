package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/brew"
	"github.com/blackwell-systems/tapkeeper/internal/config"
	"github.com/blackwell-systems/tapkeeper/internal/history"
	"github.com/blackwell-systems/tapkeeper/internal/ledger"
	"github.com/blackwell-systems/tapkeeper/internal/logging"
	"github.com/blackwell-systems/tapkeeper/internal/watcher"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues with the tap and environment",
	Long: `Runs diagnostic checks on the tap and the tools around it.

Checks:
  • Config file parses
  • Tap directory exists and every formula parses
  • Tap is a git repository (publication order comes from history)
  • Ledger exists and is readable
  • Homebrew is installed and knows the tap
  • Watch daemon status

Exits with status 1 on critical issues and 2 when there are only warnings.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Running tapkeeper diagnostics...")
	fmt.Fprintln(out)

	criticalIssues := 0
	warningIssues := 0

	// Check 1: config
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(out, "✗ Config error:", err)
		fmt.Fprintln(out, "  Action: Fix or remove the config file")
		criticalIssues++
		cfg = config.Default()
	} else if configPath != "" {
		fmt.Fprintln(out, "✓ Config loaded:", configPath)
	} else {
		fmt.Fprintln(out, "✓ Config loaded (defaults apply for missing keys)")
	}

	// Check 2: tap loads
	t, err := loadTap(cfg)
	switch {
	case err != nil:
		fmt.Fprintln(out, "✗ Tap not readable:", err)
		fmt.Fprintln(out, "  Action: Run from the tap directory or pass --tap")
		criticalIssues++
	case len(t.Errors) > 0:
		fmt.Fprintf(out, "✗ %d of %d formula file(s) do not parse\n", len(t.Errors), len(t.Errors)+len(t.Descriptors))
		for _, le := range t.Errors {
			fmt.Fprintf(out, "    %s\n", le.Error())
		}
		fmt.Fprintln(out, "  Action: Run 'tapkeeper lint' for details")
		criticalIssues++
	case len(t.Descriptors) == 0:
		fmt.Fprintln(out, "⚠ No formulae found in", t.Dir)
		warningIssues++
	default:
		fmt.Fprintf(out, "✓ %d formulae in %s\n", len(t.Descriptors), t.Dir)
	}

	// Check 3: git history, warning only
	if t != nil {
		repo, err := history.Open(t.Root, logging.For("history"))
		switch {
		case errors.Is(err, history.ErrNotRepository):
			fmt.Fprintln(out, "⚠ Tap is not a git repository")
			fmt.Fprintln(out, "  Publication order falls back to file names (name@version.rb before name.rb)")
			warningIssues++
		case err != nil:
			fmt.Fprintln(out, "⚠ Cannot open git repository:", err)
			warningIssues++
		default:
			fmt.Fprintln(out, "✓ Git repository:", repo.Root())
		}
	}

	// Check 4: ledger, warning only
	led, err := openLedger(cfg, false)
	if err == nil {
		defer led.Close()
		var pkgs []string
		pkgs, err = led.Packages()
		if err == nil {
			fmt.Fprintf(out, "✓ Ledger %s records %d package(s)\n", cfg.Database, len(pkgs))
		}
	}
	switch {
	case errors.Is(err, ledger.ErrNotInitialized):
		fmt.Fprintln(out, "⚠ No ledger at", cfg.Database)
		fmt.Fprintln(out, "  Action: Run 'tapkeeper publish'")
		warningIssues++
	case err != nil:
		fmt.Fprintln(out, "✗ Ledger not readable:", err)
		criticalIssues++
	}

	// Check 5: brew, warning only
	if v, err := brew.Version(); err != nil {
		fmt.Fprintln(out, "⚠ Homebrew not available:", err)
		warningIssues++
	} else {
		fmt.Fprintln(out, "✓", v)
		if t != nil {
			root, _ := filepath.Abs(t.Root)
			if name := brew.TapName(root); name != "" {
				if ok, err := brew.TapExists(name); err == nil && ok {
					fmt.Fprintf(out, "✓ Tapped as %s\n", name)
				} else {
					fmt.Fprintf(out, "⚠ %s is not tapped\n", name)
					fmt.Fprintf(out, "  Action: Run 'brew tap %s'\n", name)
					warningIssues++
				}
			}
		}
	}

	// Check 6: watch daemon, informational
	if pidFile, err := getDefaultPIDFile(); err == nil {
		if _, err := os.Stat(pidFile); err == nil {
			if running, _ := watcher.IsDaemonRunning(pidFile); running {
				fmt.Fprintln(out, "✓ Watch daemon running")
			} else {
				fmt.Fprintln(out, "⚠ Watch daemon not running (stale PID file removed)")
				warningIssues++
			}
		}
	}

	fmt.Fprintln(out)
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Fprintln(out, "✓ All checks passed!")
		return nil
	}
	if criticalIssues > 0 {
		fmt.Fprintf(out, "Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	}

	fmt.Fprintf(out, "Found %d warning(s). The tap is usable but not fully set up.\n", warningIssues)
	return &ExitError{Code: 2}
}
