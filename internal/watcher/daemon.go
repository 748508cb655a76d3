package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

// ErrNotRunning is returned by StopDaemon when no watch daemon is recorded.
var ErrNotRunning = errors.New("watch daemon is not running")

// StartDaemon spawns the tapkeeper binary with args as a detached watch
// daemon. The child's output is appended to logFile and its PID is
// recorded in pidFile.
func StartDaemon(pidFile, logFile string, args ...string) (int, error) {
	if pid, ok := livePID(pidFile); ok {
		return 0, fmt.Errorf("watch daemon already running as PID %d", pid)
	}

	log, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("cannot open watch log %s: %w", logFile, err)
	}
	defer log.Close()

	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("cannot locate tapkeeper binary: %w", err)
	}

	child := exec.Command(self, args...)
	child.Stdout, child.Stderr = log, log
	// New session: the daemon outlives the terminal that started it.
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return 0, fmt.Errorf("spawn watch daemon: %w", err)
	}

	pid := child.Process.Pid
	if err := writePID(pidFile, pid); err != nil {
		child.Process.Kill()
		return 0, err
	}
	if err := child.Process.Release(); err != nil {
		return 0, fmt.Errorf("detach watch daemon: %w", err)
	}
	return pid, nil
}

// RunDaemon runs w until SIGTERM or SIGINT. On exit the PID file is removed
// if it still names this process.
func (w *Watcher) RunDaemon(pidFile string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	runErr := w.Run(ctx)
	w.logger.Info().Err(runErr).Msg("watch daemon exiting")

	if pid, err := readPID(pidFile); err == nil && pid == os.Getpid() {
		if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear %s: %w", pidFile, err)
		}
	}
	return runErr
}

// StopDaemon asks the recorded watch daemon to exit.
func StopDaemon(pidFile string) error {
	pid, err := readPID(pidFile)
	if os.IsNotExist(err) {
		return ErrNotRunning
	}
	if err != nil {
		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("watch daemon PID %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal watch daemon PID %d: %w", pid, err)
	}
	return nil
}

// IsDaemonRunning reports whether pidFile names a live process. A PID file
// left behind by a dead daemon is deleted.
func IsDaemonRunning(pidFile string) (bool, error) {
	_, err := readPID(pidFile)
	switch {
	case os.IsNotExist(err), errors.Is(err, strconv.ErrSyntax):
		return false, nil
	case err != nil:
		return false, err
	}

	if _, ok := livePID(pidFile); ok {
		return true, nil
	}
	os.Remove(pidFile)
	return false, nil
}

// livePID returns the PID in pidFile when that process accepts signal 0.
func livePID(pidFile string) (int, bool) {
	pid, err := readPID(pidFile)
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil || proc.Signal(syscall.Signal(0)) != nil {
		return pid, false
	}
	return pid, true
}

func writePID(pidFile string, pid int) error {
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("record watch daemon PID: %w", err)
	}
	return nil
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%s does not hold a PID: %w", pidFile, err)
	}
	return pid, nil
}
