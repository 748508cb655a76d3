package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/brew"
	"github.com/blackwell-systems/tapkeeper/internal/config"
	"github.com/blackwell-systems/tapkeeper/internal/fetch"
	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/history"
	"github.com/blackwell-systems/tapkeeper/internal/ledger"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/logging"
	"github.com/blackwell-systems/tapkeeper/internal/release"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
)

// ExitError carries a process exit code for findings that are not failures
// of the command itself, such as lint errors.
type ExitError struct {
	Code int
	Msg  string
}

func (e *ExitError) Error() string {
	return e.Msg
}

// loadConfig reads --config, or the default config file when the flag is
// unset. --db overrides the configured database.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database = dbPath
	}
	if tapFlag != "" {
		cfg.Tap = tapFlag
	}
	return cfg, nil
}

// resolveTapDir turns the configured tap into a directory. A "user/repo"
// name that is not an existing directory is looked up through brew.
func resolveTapDir(name string) (string, error) {
	if name == "" {
		name = "."
	}
	if info, err := os.Stat(name); err == nil && info.IsDir() {
		return name, nil
	}
	if brew.IsTapName(name) {
		dir, err := brew.Repository(name)
		if err != nil {
			return "", fmt.Errorf("failed to locate tap %s: %w", name, err)
		}
		return dir, nil
	}
	return "", fmt.Errorf("tap directory %s does not exist", name)
}

// loadTap loads the configured tap.
func loadTap(cfg *config.Config) (*tap.Tap, error) {
	dir, err := resolveTapDir(cfg.Tap)
	if err != nil {
		return nil, err
	}
	t, err := tap.Load(dir)
	if err != nil {
		return nil, err
	}
	logger := logging.For("app")
	logger.Debug().
		Str("dir", t.Dir).
		Int("formulae", len(t.Descriptors)).
		Int("errors", len(t.Errors)).
		Msg("tap loaded")
	return t, nil
}

// openLedger opens the configured ledger. With create the schema is
// created when missing; otherwise a ledger that was never published to
// yields ledger.ErrNotInitialized from its queries.
func openLedger(cfg *config.Config, create bool) (*ledger.Ledger, error) {
	if dir := filepath.Dir(cfg.Database); create && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	if !create {
		if _, err := os.Stat(cfg.Database); os.IsNotExist(err) {
			return nil, ledger.ErrNotInitialized
		}
	}

	led, err := ledger.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	if create {
		if err := led.CreateSchema(); err != nil {
			led.Close()
			return nil, err
		}
	}
	return led, nil
}

// newFetchClient builds a download client from the config. Progress bars
// go to progress when it is non-nil.
func newFetchClient(cfg *config.Config, progress io.Writer) (*fetch.Client, error) {
	return fetch.New(fetch.Config{
		Timeout:   cfg.Download.Timeout,
		Retries:   cfg.Download.Retries,
		Workers:   cfg.Download.Workers,
		CacheSize: cfg.Download.CacheSize,
		Progress:  progress,
	}, logging.For("fetch"))
}

// newCutter returns a release cutter for t. Offline cutters never
// download and need an explicit checksum.
func newCutter(cfg *config.Config, t *tap.Tap, offline bool, progress io.Writer) (*release.Cutter, error) {
	var verifier release.Verifier
	if !offline {
		client, err := newFetchClient(cfg, progress)
		if err != nil {
			return nil, err
		}
		verifier = client
	}
	c := release.NewCutter(t, verifier, logging.For("release"))
	c.Linter = lint.New(logging.For("lint"))
	return c, nil
}

// publicationOrder returns the order in which each package's releases were
// published: git history when the tap is a repository and useHistory is
// set, otherwise the files at HEAD. When led is non-nil its recorded
// releases come first and anything not yet recorded follows.
func publicationOrder(ctx context.Context, t *tap.Tap, useHistory bool, led *ledger.Ledger) (map[string][]*formula.Descriptor, string, error) {
	order := lint.HeadOrder(t.Descriptors)
	source := "files"
	if useHistory {
		var err error
		order, source, err = history.Order(ctx, t, logging.For("history"))
		if err != nil {
			return nil, "", err
		}
	}

	if led == nil {
		return order, source, nil
	}
	recorded, err := led.Order()
	if err != nil {
		return nil, "", err
	}
	return mergeOrder(recorded, order), source + "+ledger", nil
}

// mergeOrder appends to each recorded sequence the releases from current
// that it does not already contain. Each recorded release accounts for one
// occurrence in current, so a revert to a recorded release is appended
// again. Kept name@version copies are never appended twice.
func mergeOrder(recorded, current map[string][]*formula.Descriptor) map[string][]*formula.Descriptor {
	merged := make(map[string][]*formula.Descriptor, len(recorded)+len(current))
	for pkg, seq := range recorded {
		merged[pkg] = append([]*formula.Descriptor(nil), seq...)
	}
	for pkg, seq := range current {
		matched := make([]bool, len(recorded[pkg]))
	next:
		for _, d := range seq {
			if formula.IsVersioned(d.Name) {
				for _, seen := range merged[pkg] {
					if seen.SameRelease(d) {
						continue next
					}
				}
			}
			for i, rec := range recorded[pkg] {
				if !matched[i] && rec.SameRelease(d) {
					matched[i] = true
					continue next
				}
			}
			merged[pkg] = append(merged[pkg], d)
		}
	}
	return merged
}

// loadErrorIssues reports unreadable formula files as lint errors.
func loadErrorIssues(errs []*tap.LoadError) []lint.Issue {
	issues := make([]lint.Issue, 0, len(errs))
	for _, le := range errs {
		name := strings.TrimSuffix(filepath.Base(le.Path), ".rb")
		issues = append(issues, lint.Issue{
			Package:  formula.BaseName(name),
			Formula:  name,
			Path:     le.Path,
			Rule:     lint.RuleParse,
			Severity: lint.SeverityError,
			Message:  le.Err.Error(),
		})
	}
	return issues
}

// confirm asks a yes/no question on out and reads the answer from in.
// Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	return dataFile("watch.pid")
}

// getDefaultLogFile returns the default log file path
func getDefaultLogFile() (string, error) {
	return dataFile("watch.log")
}

func dataFile(name string) (string, error) {
	dir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create tapkeeper directory: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// cmdContext returns the command's context, or a background context when
// the command is run outside Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
