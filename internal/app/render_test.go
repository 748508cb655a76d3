package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
)

func setRenderCheck(t *testing.T, check bool) {
	t.Helper()
	old := renderCheck
	renderCheck = check
	t.Cleanup(func() { renderCheck = old })
}

func TestRunRender(t *testing.T) {
	root := writeTap(t, map[string]string{
		"outlyer.rb": formulaText("outlyer", "https://github.com", "0.2.0", sumB),
	})
	path := filepath.Join(root, tap.FormulaDir, "outlyer.rb")
	setRenderCheck(t, false)

	out, err := runCommand(t, runRender, "", path)
	if err != nil {
		t.Fatalf("runRender() error = %v", err)
	}
	d, err := formula.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if out != string(formula.Render(d)) {
		t.Errorf("render output differs from formula.Render:\n%s", out)
	}
}

func TestRunRenderCheck(t *testing.T) {
	root := writeTap(t, nil)
	path := filepath.Join(root, tap.FormulaDir, "outlyer.rb")
	setRenderCheck(t, true)

	d, err := formula.Parse(strings.NewReader(formulaText("outlyer", "https://github.com", "0.2.0", sumB)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := os.WriteFile(path, formula.Render(d), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := runCommand(t, runRender, "", path); err != nil {
		t.Errorf("canonical file: runRender(--check) error = %v", err)
	}

	// Extra indentation is not canonical.
	messy := strings.ReplaceAll(string(formula.Render(d)), "  url", "    url")
	if err := os.WriteFile(path, []byte(messy), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err = runCommand(t, runRender, "", path)
	exitErr, ok := err.(*ExitError)
	if !ok || exitErr.Code != 1 {
		t.Errorf("non-canonical file: runRender(--check) error = %v, want ExitError code 1", err)
	}
}
