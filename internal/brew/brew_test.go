package brew

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// fakeBrew replaces run for the duration of a test.
func fakeBrew(t *testing.T, outputs map[string]string) *[]string {
	t.Helper()
	var calls []string
	orig := run
	run = func(args ...string) ([]byte, error) {
		key := strings.Join(args, " ")
		calls = append(calls, key)
		out, ok := outputs[key]
		if !ok {
			return nil, errors.New("unexpected brew " + key)
		}
		return []byte(out), nil
	}
	t.Cleanup(func() { run = orig })
	return &calls
}

func TestVersion(t *testing.T) {
	fakeBrew(t, map[string]string{
		"--version": "Homebrew 4.3.1\nHomebrew/homebrew-core (git revision 1a2b)\n",
	})
	v, err := Version()
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != "Homebrew 4.3.1" {
		t.Errorf("Version() = %q", v)
	}
}

func TestTaps(t *testing.T) {
	fakeBrew(t, map[string]string{
		"tap": "homebrew/core\noutlyerapp/outlyer\n\n",
	})

	taps, err := Taps()
	if err != nil {
		t.Fatalf("Taps() error = %v", err)
	}
	if !reflect.DeepEqual(taps, []string{"homebrew/core", "outlyerapp/outlyer"}) {
		t.Errorf("Taps() = %v", taps)
	}

	ok, err := TapExists("outlyerapp/outlyer")
	if err != nil || !ok {
		t.Errorf("TapExists(outlyerapp/outlyer) = %v, %v", ok, err)
	}
	ok, _ = TapExists("outlyerapp/other")
	if ok {
		t.Error("TapExists(outlyerapp/other) = true")
	}
}

func TestRepository(t *testing.T) {
	calls := fakeBrew(t, map[string]string{
		"--repository outlyerapp/outlyer": "/opt/homebrew/Library/Taps/outlyerapp/homebrew-outlyer\n",
	})
	dir, err := Repository("outlyerapp/outlyer")
	if err != nil {
		t.Fatalf("Repository() error = %v", err)
	}
	if dir != "/opt/homebrew/Library/Taps/outlyerapp/homebrew-outlyer" {
		t.Errorf("Repository() = %q", dir)
	}
	if len(*calls) != 1 {
		t.Errorf("expected 1 brew call, got %v", *calls)
	}
}

func TestRunError(t *testing.T) {
	fakeBrew(t, map[string]string{})
	if _, err := Version(); err == nil {
		t.Error("Version() should propagate brew failure")
	}
}

func TestIsTapName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"outlyerapp/outlyer", true},
		{"outlyer", false},
		{"./outlyer", false},
		{"../outlyer", false},
		{"/srv/taps", false},
		{"a/b/c", false},
		{"outlyerapp/", false},
	}
	for _, tt := range tests {
		if got := IsTapName(tt.in); got != tt.want {
			t.Errorf("IsTapName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTapName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/opt/homebrew/Library/Taps/outlyerapp/homebrew-outlyer", "outlyerapp/outlyer"},
		{"/home/dev/src/homebrew-outlyer", "src/outlyer"},
		{"/home/dev/src/outlyer-tap", ""},
		{"homebrew-outlyer", ""},
	}
	for _, tt := range tests {
		if got := TapName(tt.in); got != tt.want {
			t.Errorf("TapName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
