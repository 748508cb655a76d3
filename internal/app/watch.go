package app

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/logging"
	"github.com/blackwell-systems/tapkeeper/internal/output"
	"github.com/blackwell-systems/tapkeeper/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-lint formulae as they change",
		Long: `Watch the tap's formula directory and re-lint each formula when it is
written, renamed or removed.

Watch modes:
  • Foreground (default): print results in the current terminal, Ctrl+C to stop
  • Daemon: run in the background and write results to the log file
  • Stop: stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  tapkeeper watch

  # Run as background daemon
  tapkeeper watch --daemon

  # Stop running daemon
  tapkeeper watch --stop`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.tapkeeper/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.tapkeeper/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchDaemon && watchStop {
		return fmt.Errorf("--daemon and --stop are mutually exclusive")
	}

	// Get default paths if not specified
	if watchPIDFile == "" {
		defaultPID, err := getDefaultPIDFile()
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		watchPIDFile = defaultPID
	}
	if watchLogFile == "" {
		defaultLog, err := getDefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		watchLogFile = defaultLog
	}

	if watchStop {
		return stopWatchDaemon(cmd.OutOrStdout())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := loadTap(cfg)
	if err != nil {
		return err
	}

	if watchDaemon {
		root, err := filepath.Abs(t.Root)
		if err != nil {
			return fmt.Errorf("failed to resolve tap path: %w", err)
		}
		return startWatchDaemon(cmd.OutOrStdout(), root)
	}

	w, err := watcher.New(t.Dir, lint.New(logging.For("lint")), printEvent(cmd.OutOrStdout(), t.RelPath), logging.For("watch"))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// This runs as the daemon child process; stdout is the log file.
	if watchDaemonChild {
		return w.RunDaemon(watchPIDFile)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (press Ctrl+C to stop)...\n\n", t.RelPath(t.Dir))
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return w.Run(ctx)
}

// printEvent returns a watcher handler that reports each re-linted file.
func printEvent(out io.Writer, rel func(string) string) watcher.Handler {
	return func(ev watcher.Event) {
		path := rel(ev.Path)
		switch {
		case ev.Removed:
			fmt.Fprintf(out, "- %s removed\n", path)
		case ev.Err != nil:
			fmt.Fprintf(out, "✗ %s: %v\n", path, ev.Err)
		case len(ev.Issues) == 0:
			fmt.Fprintf(out, "✓ %s %s\n", ev.Descriptor.Name, ev.Descriptor.Version)
		default:
			fmt.Fprint(out, output.RenderIssueTable(&lint.Report{Issues: ev.Issues, Checked: 1}))
		}
	}
}

func stopWatchDaemon(out io.Writer) error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("cannot read watch daemon state: %w", err)
	}
	if !running {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon")
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(out io.Writer, tapRoot string) error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("cannot read watch daemon state: %w", err)
	}
	if running {
		fmt.Fprintf(out, "Daemon already running (PID file: %s)\n", watchPIDFile)
		fmt.Fprintln(out, "To restart: tapkeeper watch --stop && tapkeeper watch --daemon")
		return nil
	}

	childArgs := []string{"watch", "--daemon-child",
		"--tap", tapRoot,
		"--pid-file", watchPIDFile,
		"--log-file", watchLogFile,
	}
	if configPath != "" {
		childArgs = append(childArgs, "--config", configPath)
	}

	spinner := output.NewSpinner("Starting daemon")
	spinner.Start()
	pid, err := watcher.StartDaemon(watchPIDFile, watchLogFile, childArgs...)
	if err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Fprintf(out, "\nFormula watcher started (PID %d)\n", pid)
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: tapkeeper watch --stop\n")
	return nil
}
