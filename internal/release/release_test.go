package release

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapkeeper/internal/fetch"
	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
)

const (
	sumA = "519bd7271c53c05abb86cb21058c29890ca7cde495df0eb8c830473a17121fd3"
	sumB = "4bbb0307d3a96144fa3e0572d98de3aafb382c6bb407be20cee91d3652a6a803"
)

const outlyerFormula = `class Outlyer < Formula
  desc "Outlyer CLI allows to easily manage your Outlyer account via command line."
  homepage "https://www.outlyer.com/"
  url "https://github.com/outlyerapp/outlyer-cli/releases/download/0.1.0/outlyer_0.1.0_Darwin_x86_64.tar.gz"
  version "0.1.0"
  sha256 "519bd7271c53c05abb86cb21058c29890ca7cde495df0eb8c830473a17121fd3"

  def install
    bin.install "outlyer"
  end
end
`

type fakeVerifier struct {
	digest  string
	missing []string
	err     error
	calls   int
}

func (f *fakeVerifier) Verify(ctx context.Context, d *formula.Descriptor) *fetch.Verification {
	f.calls++
	return &fetch.Verification{
		Descriptor:      d,
		Digest:          f.digest,
		ChecksumOK:      strings.EqualFold(d.SHA256, f.digest),
		MissingBinaries: f.missing,
		Err:             f.err,
	}
}

func loadTap(t *testing.T) *tap.Tap {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, tap.FormulaDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "outlyer.rb"), []byte(outlyerFormula), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	tp, err := tap.Load(root)
	if err != nil {
		t.Fatalf("tap.Load() error = %v", err)
	}
	return tp
}

func current(t *testing.T, tp *tap.Tap) *formula.Descriptor {
	t.Helper()
	d, err := tp.Lookup("outlyer")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	return d
}

func TestNext(t *testing.T) {
	prev := current(t, loadTap(t))

	next, err := Next(prev, "v0.2.0", Options{SHA256: strings.ToUpper(sumB)})
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	wantURL := "https://github.com/outlyerapp/outlyer-cli/releases/download/0.2.0/outlyer_0.2.0_Darwin_x86_64.tar.gz"
	if next.URL != wantURL {
		t.Errorf("URL = %s, want %s", next.URL, wantURL)
	}
	if next.Version != "0.2.0" || next.SHA256 != sumB {
		t.Errorf("Version/SHA256 = %s/%s", next.Version, next.SHA256)
	}
	if next.ClassName != "Outlyer" || next.Description != prev.Description {
		t.Errorf("metadata not carried over: %+v", next)
	}

	next.Binaries[0].Name = "changed"
	if prev.Binaries[0].Name != "outlyer" {
		t.Error("Next() must not share binaries with prev")
	}
}

func TestNextErrors(t *testing.T) {
	prev := current(t, loadTap(t))

	if _, err := Next(prev, "0.1.0", Options{}); !errors.Is(err, ErrNotNewer) {
		t.Errorf("Next(same) error = %v, want ErrNotNewer", err)
	}
	if _, err := Next(prev, "0.0.9", Options{}); !errors.Is(err, ErrNotNewer) {
		t.Errorf("Next(older) error = %v, want ErrNotNewer", err)
	}

	latest := *prev
	latest.URL = "https://example.com/outlyer/latest.tar.gz"
	if _, err := Next(&latest, "0.2.0", Options{}); !errors.Is(err, ErrURLUnchanged) {
		t.Errorf("Next(unversioned url) error = %v, want ErrURLUnchanged", err)
	}
	if _, err := Next(&latest, "0.2.0", Options{URL: "https://example.com/outlyer/0.2.0.tar.gz"}); err != nil {
		t.Errorf("Next() with explicit URL error = %v", err)
	}
}

func TestKept(t *testing.T) {
	prev := current(t, loadTap(t))
	k := Kept(prev)
	if k.Name != "outlyer@0.1.0" || k.ClassName != "OutlyerAT010" {
		t.Errorf("Kept() = %s / %s", k.Name, k.ClassName)
	}
	if !k.SameRelease(prev) {
		t.Error("Kept() must describe the same release")
	}
}

func TestCutComputesChecksum(t *testing.T) {
	tp := loadTap(t)
	v := &fakeVerifier{digest: sumB}
	c := NewCutter(tp, v, zerolog.Nop())

	res, err := c.Cut(context.Background(), "outlyer", "0.2.0", Options{})
	if err != nil {
		t.Fatalf("Cut() error = %v", err)
	}
	if res.Descriptor.SHA256 != sumB {
		t.Errorf("SHA256 = %s, want digest from download", res.Descriptor.SHA256)
	}
	if v.calls != 1 {
		t.Errorf("expected 1 verification, got %d", v.calls)
	}

	written, err := formula.ParseFile(filepath.Join(tp.Dir, "outlyer.rb"))
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if written.Version != "0.2.0" || written.SHA256 != sumB {
		t.Errorf("written formula = %s %s", written.Version, written.SHA256)
	}
	if len(res.Paths) != 1 {
		t.Errorf("Paths = %v", res.Paths)
	}
}

func TestCutKeepPrevious(t *testing.T) {
	tp := loadTap(t)
	c := NewCutter(tp, &fakeVerifier{digest: sumB}, zerolog.Nop())

	res, err := c.Cut(context.Background(), "outlyer", "0.2.0", Options{KeepPrevious: true})
	if err != nil {
		t.Fatalf("Cut() error = %v", err)
	}
	if res.Kept == nil || len(res.Paths) != 2 {
		t.Fatalf("expected kept formula and 2 paths, got %+v", res)
	}

	kept, err := formula.ParseFile(filepath.Join(tp.Dir, "outlyer@0.1.0.rb"))
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if kept.ClassName != "OutlyerAT010" || kept.Version != "0.1.0" || kept.SHA256 != sumA {
		t.Errorf("kept formula = %+v", kept)
	}
}

func TestCutDryRun(t *testing.T) {
	tp := loadTap(t)
	c := NewCutter(tp, &fakeVerifier{digest: sumB}, zerolog.Nop())

	res, err := c.Cut(context.Background(), "outlyer", "0.2.0", Options{DryRun: true, KeepPrevious: true})
	if err != nil {
		t.Fatalf("Cut() error = %v", err)
	}
	if len(res.Paths) != 0 {
		t.Errorf("dry run wrote %v", res.Paths)
	}
	d, err := formula.ParseFile(filepath.Join(tp.Dir, "outlyer.rb"))
	if err != nil || d.Version != "0.1.0" {
		t.Errorf("dry run modified formula: %v, %v", d, err)
	}
	if _, err := os.Stat(filepath.Join(tp.Dir, "outlyer@0.1.0.rb")); !os.IsNotExist(err) {
		t.Error("dry run created versioned formula")
	}
}

func TestCutFailures(t *testing.T) {
	tests := []struct {
		name     string
		verifier Verifier
		opts     Options
		want     error
	}{
		{
			name:     "checksum mismatch",
			verifier: &fakeVerifier{digest: sumA},
			opts:     Options{SHA256: sumB},
			want:     ErrChecksumMismatch,
		},
		{
			name:     "missing binary",
			verifier: &fakeVerifier{digest: sumB, missing: []string{"outlyer"}},
			want:     ErrMissingBinary,
		},
		{
			name:     "download failed",
			verifier: &fakeVerifier{err: &fetch.StatusError{URL: "x", Code: 404}},
		},
		{
			name: "offline without checksum",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := loadTap(t)
			c := NewCutter(tp, tt.verifier, zerolog.Nop())
			_, err := c.Cut(context.Background(), "outlyer", "0.2.0", tt.opts)
			if err == nil {
				t.Fatal("Cut() should fail")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Cut() error = %v, want %v", err, tt.want)
			}
			d, _ := formula.ParseFile(filepath.Join(tp.Dir, "outlyer.rb"))
			if d.Version != "0.1.0" {
				t.Error("failed cut must leave the formula untouched")
			}
		})
	}
}

func TestCutOfflineWithChecksum(t *testing.T) {
	tp := loadTap(t)
	c := NewCutter(tp, nil, zerolog.Nop())
	res, err := c.Cut(context.Background(), "outlyer", "0.2.0", Options{SHA256: sumB})
	if err != nil {
		t.Fatalf("Cut() error = %v", err)
	}
	if res.Descriptor.SHA256 != sumB {
		t.Errorf("SHA256 = %s", res.Descriptor.SHA256)
	}
}

func TestNew(t *testing.T) {
	d, err := New("outlyer-cli", Fields{
		Description: "Outlyer CLI",
		Homepage:    "https://www.outlyer.com/",
		URL:         "https://github.com/outlyerapp/outlyer-cli/releases/download/0.2.0/outlyer-cli_0.2.0_Darwin_x86_64.tar.gz",
		SHA256:      sumB,
		Binary:      "outlyer",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if d.ClassName != "OutlyerCli" || d.Version != "0.2.0" {
		t.Errorf("New() = %s %s", d.ClassName, d.Version)
	}
	if len(d.Binaries) != 1 || d.Binaries[0].Name != "outlyer" {
		t.Errorf("Binaries = %+v", d.Binaries)
	}
}

func TestNewBinaryRename(t *testing.T) {
	d, err := New("tool", Fields{
		URL:    "https://example.com/tool/1.2.3/tool_1.2.3.tar.gz",
		Binary: "bin/tool-darwin => tool",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := formula.InstallTarget{Source: "bin/tool-darwin", Name: "tool"}
	if d.Binaries[0] != want {
		t.Errorf("Binaries[0] = %+v, want %+v", d.Binaries[0], want)
	}
	if d.Version != "1.2.3" {
		t.Errorf("Version = %s, want 1.2.3", d.Version)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New("", Fields{URL: "https://example.com/1.0.0/x.tar.gz"}); err == nil {
		t.Error("New() without name should fail")
	}
	if _, err := New("tool", Fields{}); err == nil {
		t.Error("New() without url should fail")
	}
	if _, err := New("tool", Fields{URL: "https://example.com/latest/tool.tar.gz"}); err == nil {
		t.Error("New() without inferable version should fail")
	}
}

func TestCreate(t *testing.T) {
	tp := loadTap(t)
	v := &fakeVerifier{digest: sumB}
	c := NewCutter(tp, v, zerolog.Nop())

	d, err := New("outlyer-cli", Fields{
		URL:    "https://github.com/outlyerapp/outlyer-cli/releases/download/0.2.0/outlyer-cli_0.2.0_Darwin_x86_64.tar.gz",
		Binary: "outlyer",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := c.Create(context.Background(), d, false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if res.Descriptor.SHA256 != sumB {
		t.Errorf("SHA256 = %s, want %s", res.Descriptor.SHA256, sumB)
	}
	if len(res.Paths) != 1 || filepath.Base(res.Paths[0]) != "outlyer-cli.rb" {
		t.Errorf("Paths = %v", res.Paths)
	}

	written, err := formula.ParseFile(res.Paths[0])
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if written.Version != "0.2.0" || written.ClassName != "OutlyerCli" {
		t.Errorf("written = %s %s", written.ClassName, written.Version)
	}

	if _, err := c.Create(context.Background(), d, false); !errors.Is(err, ErrExists) {
		t.Errorf("second Create() error = %v, want ErrExists", err)
	}
}

func TestCreateDryRunWritesNothing(t *testing.T) {
	tp := loadTap(t)
	c := NewCutter(tp, &fakeVerifier{digest: sumB}, zerolog.Nop())

	d, err := New("tool", Fields{URL: "https://example.com/tool/1.0.0/tool_1.0.0.tar.gz"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.Create(context.Background(), d, true); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := os.Stat(tp.FormulaPath("tool")); !os.IsNotExist(err) {
		t.Errorf("dry run wrote %s", tp.FormulaPath("tool"))
	}
}

func TestCutRejectsLintErrors(t *testing.T) {
	tp := loadTap(t)
	c := NewCutter(tp, nil, zerolog.Nop())
	c.Linter = lint.New(zerolog.Nop())

	// The override URL carries no version, so version-in-url fails.
	_, err := c.Cut(context.Background(), "outlyer", "0.2.0", Options{
		URL:    "https://example.com/outlyer/latest.tar.gz",
		SHA256: sumB,
	})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Cut() error = %v, want ErrInvalid", err)
	}
	if !strings.Contains(err.Error(), lint.RuleVersionInURL) {
		t.Errorf("error %q does not name the failing rule", err)
	}
	if d := current(t, tp); d.Version != "0.1.0" {
		t.Errorf("formula rewritten to %s", d.Version)
	}
}

func TestApplyDryRunResult(t *testing.T) {
	tp := loadTap(t)
	v := &fakeVerifier{digest: sumB}
	c := NewCutter(tp, v, zerolog.Nop())

	res, err := c.Cut(context.Background(), "outlyer", "0.2.0", Options{KeepPrevious: true, DryRun: true})
	if err != nil {
		t.Fatalf("Cut() error = %v", err)
	}
	if _, err := c.Apply(res); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if v.calls != 1 {
		t.Errorf("artifact verified %d times, want 1", v.calls)
	}
	if len(res.Paths) != 2 {
		t.Fatalf("Paths = %v, want kept and new", res.Paths)
	}
	if filepath.Base(res.Paths[0]) != "outlyer@0.1.0.rb" || filepath.Base(res.Paths[1]) != "outlyer.rb" {
		t.Errorf("Paths = %v", res.Paths)
	}
	if _, err := c.Apply(res); err == nil {
		t.Error("applying a result twice should fail")
	}
}
