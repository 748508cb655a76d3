// Package brew queries the local Homebrew installation.
package brew

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotInstalled is returned when no brew executable is on PATH.
var ErrNotInstalled = errors.New("brew not found on PATH")

// run executes brew and returns stdout. Replaced in tests.
var run = func(args ...string) ([]byte, error) {
	if _, err := exec.LookPath("brew"); err != nil {
		return nil, ErrNotInstalled
	}
	output, err := exec.Command("brew", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("brew %s failed: %w (stderr: %s)",
				strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("brew %s failed: %w", strings.Join(args, " "), err)
	}
	return output, nil
}

// Version returns the first line of `brew --version`, e.g. "Homebrew 4.3.1".
func Version() (string, error) {
	output, err := run("--version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	return line, nil
}

// Taps lists the installed taps.
func Taps() ([]string, error) {
	output, err := run("tap")
	if err != nil {
		return nil, err
	}
	var taps []string
	for _, t := range strings.Split(string(output), "\n") {
		if t = strings.TrimSpace(t); t != "" {
			taps = append(taps, t)
		}
	}
	return taps, nil
}

// TapExists checks if a tap is already added.
func TapExists(tap string) (bool, error) {
	taps, err := Taps()
	if err != nil {
		return false, err
	}
	for _, t := range taps {
		if t == tap {
			return true, nil
		}
	}
	return false, nil
}

// Repository returns the local checkout directory of tap ("user/repo").
func Repository(tap string) (string, error) {
	output, err := run("--repository", tap)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// IsTapName reports whether s looks like "user/repo" rather than a path.
func IsTapName(s string) bool {
	parts := strings.Split(s, "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != "" &&
		parts[0] != "." && parts[0] != ".." && !filepath.IsAbs(s)
}

// TapName derives "user/repo" from a tap checkout such as
// .../Library/Taps/outlyerapp/homebrew-outlyer. It returns "" when dir
// does not follow the homebrew-<repo> naming.
func TapName(dir string) string {
	repo := filepath.Base(dir)
	user := filepath.Base(filepath.Dir(dir))
	name, ok := strings.CutPrefix(repo, "homebrew-")
	if !ok || name == "" || user == "." || user == string(filepath.Separator) {
		return ""
	}
	return user + "/" + name
}
