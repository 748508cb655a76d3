// Package formula reads and writes Homebrew formula files describing a
// prebuilt binary release.
//
// Only the declarative subset used by binary-release taps is understood:
//
//	class OutlyerCli < Formula
//	  desc "..."
//	  homepage "..."
//	  url "..."
//	  version "0.2.0"
//	  sha256 "..."
//
//	  def install
//	    bin.install "outlyer"
//	  end
//	end
//
// Anything else is preserved as an unrecognized line so that lint can
// report it; it is never evaluated.
package formula

import (
	"errors"
	"fmt"
)

// ErrNotFormula is returned when a file has no "class X < Formula" header.
var ErrNotFormula = errors.New("not a formula: missing \"class ... < Formula\" declaration")

// Descriptor is one releasable version of a package: where to download it,
// which version it is, the digest it must hash to and which binary it installs.
// Descriptors are values; a new release produces a new Descriptor.
type Descriptor struct {
	Name         string          `json:"name" yaml:"name" validate:"required"`
	ClassName    string          `json:"class" yaml:"class" validate:"required"`
	Description  string          `json:"desc,omitempty" yaml:"desc,omitempty"`
	Homepage     string          `json:"homepage,omitempty" yaml:"homepage,omitempty" validate:"omitempty,http_url"`
	URL          string          `json:"url" yaml:"url" validate:"required,http_url"`
	Version      string          `json:"version" yaml:"version" validate:"required"`
	SHA256       string          `json:"sha256" yaml:"sha256" validate:"required"`
	Binaries     []InstallTarget `json:"binaries" yaml:"binaries"`
	Unrecognized []Line          `json:"-" yaml:"-"`
	Path         string          `json:"-" yaml:"-"`
}

// InstallTarget is a single bin.install instruction.
type InstallTarget struct {
	Source string `json:"source" yaml:"source"`
	Name   string `json:"name" yaml:"name"`
}

// Line is a source line the parser kept but did not interpret.
type Line struct {
	Number int
	Text   string
}

// ParseError reports a malformed formula at a given line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// BinaryNames returns the installed binary names in declaration order.
func (d *Descriptor) BinaryNames() []string {
	names := make([]string, 0, len(d.Binaries))
	for _, b := range d.Binaries {
		names = append(names, b.Name)
	}
	return names
}

// Package returns the package identity the descriptor belongs to.
func (d *Descriptor) Package() string {
	return BaseName(d.Name)
}

// SameRelease reports whether two descriptors describe the same artifact.
func (d *Descriptor) SameRelease(o *Descriptor) bool {
	if d.Version != o.Version || d.URL != o.URL || d.SHA256 != o.SHA256 {
		return false
	}
	if len(d.Binaries) != len(o.Binaries) {
		return false
	}
	for i := range d.Binaries {
		if d.Binaries[i] != o.Binaries[i] {
			return false
		}
	}
	return true
}
