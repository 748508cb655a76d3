// Package output renders tapkeeper results for the terminal.
//
// Tables are plain ASCII with ANSI colors for severities and verification
// status when stdout is a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/tapkeeper/internal/fetch"
	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/ledger"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderDescriptorTable renders one row per formula.
func RenderDescriptorTable(ds []*formula.Descriptor) string {
	if len(ds) == 0 {
		return "No formulae found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-12s %-12s %s\n", "Formula", "Version", "Binary", "SHA256"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, d := range ds {
		sb.WriteString(fmt.Sprintf("%-24s %-12s %-12s %s\n",
			truncate(d.Name, 24),
			truncate(d.Version, 12),
			truncate(strings.Join(d.BinaryNames(), ","), 12),
			shortSum(d.SHA256)))
	}
	return sb.String()
}

// RenderDescriptor renders the full detail of a single formula.
func RenderDescriptor(d *formula.Descriptor) string {
	var sb strings.Builder
	row := func(label, value string) {
		if value != "" {
			sb.WriteString(fmt.Sprintf("%-10s %s\n", label+":", value))
		}
	}

	row("Formula", d.Name)
	row("Class", d.ClassName)
	row("Package", d.Package())
	row("Desc", d.Description)
	row("Homepage", d.Homepage)
	row("Version", d.Version)
	row("URL", d.URL)
	row("SHA256", d.SHA256)
	for _, b := range d.Binaries {
		if b.Name != b.Source {
			row("Installs", fmt.Sprintf("%s (from %s)", b.Name, b.Source))
		} else {
			row("Installs", b.Name)
		}
	}
	row("File", d.Path)
	return sb.String()
}

// RenderIssueTable renders lint issues, errors first within each formula.
func RenderIssueTable(report *lint.Report) string {
	if len(report.Issues) == 0 {
		return fmt.Sprintf("No issues found in %d formulae.\n", report.Checked)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-10s %-8s %-22s %s\n", "Formula", "Version", "Level", "Rule", "Message"))
	sb.WriteString(strings.Repeat("─", 96))
	sb.WriteString("\n")

	for _, is := range report.Issues {
		sb.WriteString(fmt.Sprintf("%-24s %-10s %s %-22s %s\n",
			truncate(is.Formula, 24),
			truncate(is.Version, 10),
			severityLabel(is.Severity),
			is.Rule,
			is.Message))
	}

	sb.WriteString("\n")
	sb.WriteString(RenderLintSummary(report))
	return sb.String()
}

// RenderLintSummary renders the one-line error/warning count.
func RenderLintSummary(report *lint.Report) string {
	errs, warns := len(report.Errors()), len(report.Warnings())
	summary := fmt.Sprintf("%d formulae checked: %s, %s\n",
		report.Checked,
		plural(errs, "error"),
		plural(warns, "warning"))
	if errs > 0 {
		return colorize(colorRed, summary)
	}
	return summary
}

// RenderLoadErrors lists formula files that could not be parsed.
func RenderLoadErrors(errs []*tap.LoadError) string {
	if len(errs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(colorize(colorRed, fmt.Sprintf("%s could not be read:\n", plural(len(errs), "file"))))
	for _, le := range errs {
		sb.WriteString(fmt.Sprintf("  %s\n", le.Error()))
	}
	return sb.String()
}

// RenderReleaseTable renders a package's ledger history.
func RenderReleaseTable(releases []*ledger.Release) string {
	if len(releases) == 0 {
		return "No releases recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-12s %-24s %-18s %-14s %s\n", "Version", "Formula", "Published", "SHA256", "Status"))
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, r := range releases {
		status := colorize(colorGreen, "current")
		if !r.Current() {
			status = colorize(colorGray, "superseded by "+r.SupersededBy)
		}
		sb.WriteString(fmt.Sprintf("%-12s %-24s %-18s %-14s %s\n",
			truncate(r.Version, 12),
			truncate(r.Formula, 24),
			formatRelativeTime(r.PublishedAt),
			shortSum(r.SHA256),
			status))
	}
	return sb.String()
}

// RenderVerificationTable renders download check results in input order.
func RenderVerificationTable(vs []*fetch.Verification) string {
	if len(vs) == 0 {
		return "Nothing to verify.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-12s %-10s %s\n", "Formula", "Version", "Size", "Result"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	failed := 0
	for _, v := range vs {
		size := "-"
		if v.Size > 0 {
			size = formatSize(v.Size)
		}
		result := colorize(colorGreen, "ok")
		if !v.OK() {
			failed++
			result = colorize(colorRed, verificationProblem(v))
		}
		sb.WriteString(fmt.Sprintf("%-24s %-12s %-10s %s\n",
			truncate(v.Descriptor.Name, 24),
			truncate(v.Descriptor.Version, 12),
			size,
			result))
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%d verified, %d failed\n", len(vs)-failed, failed))
	return sb.String()
}

func verificationProblem(v *fetch.Verification) string {
	switch {
	case v.Err != nil:
		return "error: " + v.Err.Error()
	case !v.ChecksumOK:
		return fmt.Sprintf("checksum mismatch: got %s", v.Digest)
	default:
		return "missing: " + strings.Join(v.MissingBinaries, ", ")
	}
}

func severityLabel(s lint.Severity) string {
	label := fmt.Sprintf("%-8s", s.String())
	if s == lint.SeverityError {
		return colorize(colorRed, label)
	}
	return colorize(colorYellow, label)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// shortSum abbreviates a digest for table display.
func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

// formatSize converts bytes to human-readable format (e.g., "1.2 MB").
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.Bytes(uint64(bytes))
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// truncate truncates a string to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
