// Package lint checks release descriptors for the consistency properties a
// tap must hold before users install from it: the URL carries the declared
// version, the checksum is a well-formed digest, each package installs one
// binary, and versions only move forward in publication order.
package lint

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
)

// semverRe matches a full semantic version without a leading "v".
var semverRe = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

// Linter runs descriptor and sequence rules.
type Linter struct {
	validate *validator.Validate
	logger   zerolog.Logger
}

// New creates a Linter.
func New(logger zerolog.Logger) *Linter {
	v := validator.New()
	_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		return semverRe.MatchString(fl.Field().String())
	})
	return &Linter{validate: v, logger: logger}
}

// Run lints every head descriptor on its own and every package sequence in
// publication order. order may be nil, in which case only per-descriptor
// rules run.
func (l *Linter) Run(heads []*formula.Descriptor, order map[string][]*formula.Descriptor) *Report {
	report := &Report{}
	for _, d := range heads {
		report.Add(l.Descriptor(d)...)
		report.Checked++
	}
	for pkg, seq := range order {
		report.Add(l.Sequence(pkg, seq)...)
	}
	report.Sort()

	l.logger.Debug().
		Int("checked", report.Checked).
		Int("errors", len(report.Errors())).
		Int("warnings", len(report.Warnings())).
		Msg("lint finished")
	return report
}

// Descriptor applies the single-descriptor rules.
func (l *Linter) Descriptor(d *formula.Descriptor) []Issue {
	var issues []Issue

	issues = append(issues, l.structIssues(d)...)

	if d.URL != "" && d.Version != "" {
		found := formula.URLVersions(d.URL)
		switch {
		case len(found) == 0:
			issues = append(issues, newIssue(d, RuleVersionInURL, SeverityError,
				"no version embedded in URL %s", d.URL))
		case !formula.URLHasVersion(d.URL, d.Version):
			issues = append(issues, newIssue(d, RuleVersionInURL, SeverityError,
				"declared version %s does not match URL version %s", d.Version, strings.Join(found, ", ")))
		}
	}

	if d.SHA256 != "" {
		if err := l.validate.Var(d.SHA256, "len=64,hexadecimal"); err != nil || strings.HasPrefix(strings.ToLower(d.SHA256), "0x") {
			issues = append(issues, newIssue(d, RuleChecksumFormat, SeverityError,
				"sha256 must be 64 hex characters, got %d", len(d.SHA256)))
		} else if d.SHA256 != strings.ToLower(d.SHA256) {
			issues = append(issues, newIssue(d, RuleChecksumFormat, SeverityError,
				"sha256 must be lowercase"))
		}
	}

	switch n := len(d.Binaries); {
	case n == 0:
		issues = append(issues, newIssue(d, RuleInstallTarget, SeverityError,
			"install block does not install a binary"))
	case n > 1:
		issues = append(issues, newIssue(d, RuleInstallTarget, SeverityError,
			"install block installs %d binaries (%s), expected exactly one", n, strings.Join(d.BinaryNames(), ", ")))
	}

	if d.Version != "" {
		if err := l.validate.Var(strings.TrimPrefix(d.Version, "v"), "semver"); err != nil {
			issues = append(issues, newIssue(d, RuleVersionFormat, SeverityWarning,
				"version %s is not a semantic version", d.Version))
		}
	}

	for _, line := range d.Unrecognized {
		issues = append(issues, newIssue(d, RuleUnrecognizedStanza, SeverityWarning,
			"line %d not understood: %s", line.Number, line.Text))
	}

	return issues
}

func (l *Linter) structIssues(d *formula.Descriptor) []Issue {
	err := l.validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		l.logger.Warn().Err(err).Str("formula", d.Name).Msg("struct validation failed")
		return nil
	}

	var issues []Issue
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch {
		case fe.Tag() == "required":
			issues = append(issues, newIssue(d, RuleRequiredFields, SeverityError, "missing %s", field))
		case fe.Field() == "Homepage":
			issues = append(issues, newIssue(d, RuleHomepageFormat, SeverityError,
				"homepage %q is not an http(s) URL", d.Homepage))
		case fe.Field() == "URL":
			issues = append(issues, newIssue(d, RuleURLFormat, SeverityError,
				"url %q is not an http(s) URL", d.URL))
		default:
			issues = append(issues, newIssue(d, RuleRequiredFields, SeverityError,
				"%s failed %s", field, fe.Tag()))
		}
	}
	return issues
}

// Sequence applies the cross-descriptor rules to the descriptors of one
// package, given oldest first.
func (l *Linter) Sequence(pkg string, seq []*formula.Descriptor) []Issue {
	var issues []Issue

	seen := make(map[string]*formula.Descriptor)
	var prev *formula.Descriptor
	var binaries string
	var binarySource *formula.Descriptor

	for _, d := range seq {
		if d.Version == "" {
			continue
		}

		if first, ok := seen[d.Version]; ok {
			switch {
			case !first.SameRelease(d):
				issues = append(issues, newIssue(d, RuleDescriptorImmutable, SeverityError,
					"version %s was re-published with a different url or sha256", d.Version))
			case prev != nil && formula.CompareVersions(d.Version, prev.Version) < 0:
				// A revert to an older release.
				issues = append(issues, newIssue(d, RuleVersionMonotonic, SeverityError,
					"version %s was published after %s", d.Version, prev.Version))
			default:
				issues = append(issues, newIssue(d, RuleVersionUnique, SeverityError,
					"version %s is published more than once", d.Version))
			}
		} else {
			seen[d.Version] = d
			if prev != nil && formula.CompareVersions(d.Version, prev.Version) <= 0 {
				issues = append(issues, newIssue(d, RuleVersionMonotonic, SeverityError,
					"version %s was published after %s", d.Version, prev.Version))
			}
		}
		prev = d

		names := strings.Join(d.BinaryNames(), ",")
		if binarySource == nil {
			binaries, binarySource = names, d
		} else if names != binaries {
			issues = append(issues, newIssue(d, RuleBinaryConsistent, SeverityError,
				"installs %q but %s %s installs %q", names, binarySource.Name, binarySource.Version, binaries))
		}
	}

	for i := range issues {
		issues[i].Package = pkg
	}
	return issues
}
