package ledger

import (
	"time"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
)

// Result describes what Publish did.
type Result int

const (
	// ResultUnchanged means the identical release was already recorded.
	ResultUnchanged Result = iota
	// ResultPublished means a new release row was written.
	ResultPublished
)

func (r Result) String() string {
	if r == ResultPublished {
		return "published"
	}
	return "unchanged"
}

// Release is one recorded publication.
type Release struct {
	ID           int64                   `json:"id" yaml:"id"`
	Package      string                  `json:"package" yaml:"package"`
	Formula      string                  `json:"formula" yaml:"formula"`
	Version      string                  `json:"version" yaml:"version"`
	URL          string                  `json:"url" yaml:"url"`
	SHA256       string                  `json:"sha256" yaml:"sha256"`
	Binaries     []formula.InstallTarget `json:"binaries" yaml:"binaries"`
	PublishedAt  time.Time               `json:"published_at" yaml:"published_at"`
	SupersededBy string                  `json:"superseded_by,omitempty" yaml:"superseded_by,omitempty"`
}

// Current reports whether no later release has replaced r.
func (r *Release) Current() bool {
	return r.SupersededBy == ""
}

// Descriptor rebuilds the descriptor that was published.
func (r *Release) Descriptor() *formula.Descriptor {
	return &formula.Descriptor{
		Name:      r.Formula,
		ClassName: formula.ClassName(r.Formula),
		URL:       r.URL,
		Version:   r.Version,
		SHA256:    r.SHA256,
		Binaries:  r.Binaries,
	}
}
