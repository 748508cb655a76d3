package lint

import (
	"fmt"
	"sort"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
)

// Severity classifies an issue.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// MarshalText renders the severity by name in JSON and YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Rule names.
const (
	RuleRequiredFields      = "required-fields"
	RuleURLFormat           = "url-format"
	RuleHomepageFormat      = "homepage-format"
	RuleVersionInURL        = "version-in-url"
	RuleChecksumFormat      = "checksum-format"
	RuleInstallTarget       = "install-target"
	RuleVersionFormat       = "version-format"
	RuleUnrecognizedStanza  = "unrecognized-stanza"
	RuleVersionUnique       = "version-unique"
	RuleVersionMonotonic    = "version-monotonic"
	RuleDescriptorImmutable = "descriptor-immutable"
	RuleBinaryConsistent    = "binary-consistent"
	RuleParse               = "parse"
)

// Issue is a single finding against a descriptor.
type Issue struct {
	Package  string   `json:"package" yaml:"package"`
	Formula  string   `json:"formula" yaml:"formula"`
	Version  string   `json:"version,omitempty" yaml:"version,omitempty"`
	Path     string   `json:"path,omitempty" yaml:"path,omitempty"`
	Rule     string   `json:"rule" yaml:"rule"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s [%s] %s", i.Formula, i.Severity, i.Rule, i.Message)
}

func newIssue(d *formula.Descriptor, rule string, sev Severity, format string, args ...interface{}) Issue {
	return Issue{
		Package:  d.Package(),
		Formula:  d.Name,
		Version:  d.Version,
		Path:     d.Path,
		Rule:     rule,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Report collects issues from a lint run.
type Report struct {
	Issues  []Issue `json:"issues" yaml:"issues"`
	Checked int     `json:"checked" yaml:"checked"`
}

// Add appends issues to the report.
func (r *Report) Add(issues ...Issue) {
	r.Issues = append(r.Issues, issues...)
}

// Errors returns the error-level issues.
func (r *Report) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the warning-level issues.
func (r *Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

// HasErrors reports whether any error-level issue was found.
func (r *Report) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Sort orders issues by package, formula, version and rule.
func (r *Report) Sort() {
	sort.SliceStable(r.Issues, func(a, b int) bool {
		x, y := r.Issues[a], r.Issues[b]
		if x.Package != y.Package {
			return x.Package < y.Package
		}
		if x.Formula != y.Formula {
			return x.Formula < y.Formula
		}
		if x.Version != y.Version {
			// "1.0" and "1.0.0" compare equal; fall back to the text.
			if c := formula.CompareVersions(x.Version, y.Version); c != 0 {
				return c < 0
			}
			return x.Version < y.Version
		}
		return x.Rule < y.Rule
	})
}

func (r *Report) filter(sev Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}
