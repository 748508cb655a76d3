package app

import (
	"errors"
	"strings"
	"testing"
)

func TestRunVerify(t *testing.T) {
	body, sum := tarball(t, "#!/bin/sh\necho outlyer\n")
	srv := releaseServer(t, map[string][]byte{"0.2.0": body})
	useTap(t, writeTap(t, map[string]string{
		"outlyer.rb": formulaText("outlyer", srv.URL, "0.2.0", sum),
	}))

	out, err := runCommand(t, runVerify, "")
	if err != nil {
		t.Fatalf("runVerify() error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 verified, 0 failed") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRunVerifyFailures(t *testing.T) {
	body, _ := tarball(t, "#!/bin/sh\necho outlyer\n")
	srv := releaseServer(t, map[string][]byte{"0.2.0": body})
	useTap(t, writeTap(t, map[string]string{
		// Wrong checksum for an artifact that exists.
		"outlyer.rb": formulaText("outlyer", srv.URL, "0.2.0", sumB),
		// Artifact that is gone.
		"outlyer@0.1.0.rb": formulaText("outlyer@0.1.0", srv.URL, "0.1.0", sumA),
	}))

	out, err := runCommand(t, runVerify, "")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("runVerify() error = %v, want ExitError code 1", err)
	}
	if !strings.Contains(out, "0 verified, 2 failed") {
		t.Errorf("output:\n%s", out)
	}

	// Only the named formula is checked.
	out, err = runCommand(t, runVerify, "", "outlyer@0.1.0")
	if err == nil {
		t.Fatal("runVerify(outlyer@0.1.0) should fail")
	}
	if !strings.Contains(out, "0 verified, 1 failed") {
		t.Errorf("output:\n%s", out)
	}
}
