package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapkeeper/internal/lint"
)

const goodFormula = `class Outlyer < Formula
  url "https://github.com/outlyerapp/outlyer-cli/releases/download/0.1.0/outlyer_0.1.0_Darwin_x86_64.tar.gz"
  version "0.1.0"
  sha256 "519bd7271c53c05abb86cb21058c29890ca7cde495df0eb8c830473a17121fd3"

  def install
    bin.install "outlyer"
  end
end
`

func startWatcher(t *testing.T, dir string) (*Watcher, <-chan Event) {
	t.Helper()
	events := make(chan Event, 16)
	w, err := New(dir, lint.New(zerolog.Nop()), func(ev Event) { events <- ev }, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w.Debounce = 50 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w, events
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(t.TempDir(), nil, func(Event) {}, zerolog.Nop()); err == nil {
		t.Error("New() with nil linter should fail")
	}
	if _, err := New(t.TempDir(), lint.New(zerolog.Nop()), nil, zerolog.Nop()); err == nil {
		t.Error("New() with nil handler should fail")
	}
}

func TestStartMissingDir(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), lint.New(zerolog.Nop()), func(Event) {}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("Start() on missing dir should fail")
	}
}

func TestWatcherRelintsChangedFile(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, dir)

	path := filepath.Join(dir, "outlyer.rb")
	if err := os.WriteFile(path, []byte(goodFormula), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ev := waitEvent(t, events)
	if ev.Path != path || ev.Err != nil || ev.Descriptor == nil {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.Issues) != 0 {
		t.Errorf("expected clean lint, got %v", ev.Issues)
	}
	if ev.Descriptor.Version != "0.1.0" {
		t.Errorf("Version = %s", ev.Descriptor.Version)
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, dir)

	path := filepath.Join(dir, "outlyer.rb")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(goodFormula), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	waitEvent(t, events)
	select {
	case ev := <-events:
		t.Errorf("expected a single event for a burst, got another: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherReportsIssuesAndRemoval(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, dir)

	path := filepath.Join(dir, "outlyer.rb")
	bad := []byte(`class Outlyer < Formula
  url "https://example.com/latest/outlyer.tar.gz"
  version "0.1.0"
  sha256 "deadbeef"

  def install
    bin.install "outlyer"
  end
end
`)
	if err := os.WriteFile(path, bad, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ev := waitEvent(t, events)
	if len(ev.Issues) != 2 {
		t.Errorf("expected 2 issues, got %d: %v", len(ev.Issues), ev.Issues)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ev = waitEvent(t, events)
	if !ev.Removed {
		t.Errorf("expected removal event, got %+v", ev)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	_, events := startWatcher(t, dir)

	for _, name := range []string{"README.md", ".outlyer-1.rb.tmp", ".hidden.rb"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected event: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRunStopsWithContext(t *testing.T) {
	w, err := New(t.TempDir(), lint.New(zerolog.Nop()), func(Event) {}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestIsDaemonRunning(t *testing.T) {
	dir := t.TempDir()

	running, err := IsDaemonRunning(filepath.Join(dir, "missing.pid"))
	if err != nil || running {
		t.Errorf("missing PID file: running=%v err=%v", running, err)
	}

	garbage := filepath.Join(dir, "garbage.pid")
	os.WriteFile(garbage, []byte("not-a-pid\n"), 0644)
	running, err = IsDaemonRunning(garbage)
	if err != nil || running {
		t.Errorf("garbage PID file: running=%v err=%v", running, err)
	}

	self := filepath.Join(dir, "self.pid")
	os.WriteFile(self, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
	running, err = IsDaemonRunning(self)
	if err != nil || !running {
		t.Errorf("own PID: running=%v err=%v", running, err)
	}
}

func TestStopDaemonMissingPIDFile(t *testing.T) {
	if err := StopDaemon(filepath.Join(t.TempDir(), "missing.pid")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("StopDaemon() without PID file = %v, want ErrNotRunning", err)
	}
}

func TestStartDaemonRefusesSecondDaemon(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "watch.pid")
	os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)

	_, err := StartDaemon(pidFile, filepath.Join(dir, "watch.log"), "watch")
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("StartDaemon() error = %v, want already running", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "watch.log")); !os.IsNotExist(err) {
		t.Error("StartDaemon() should not touch the log file when a daemon is running")
	}
}
