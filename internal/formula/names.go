package formula

import (
	"regexp"
	"strings"
)

var (
	classSepRe = regexp.MustCompile(`[-_.\s]([a-zA-Z0-9])`)
	classAtRe  = regexp.MustCompile(`(.)@(\d)`)
)

// ClassName derives the Ruby class name Homebrew expects for a formula name:
// "outlyer-cli" -> "OutlyerCli", "outlyer@0.1.0" -> "OutlyerAT010".
func ClassName(name string) string {
	if name == "" {
		return ""
	}
	s := strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
	s = classSepRe.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ToUpper(m[1:])
	})
	s = strings.ReplaceAll(s, "+", "x")
	if loc := classAtRe.FindStringSubmatchIndex(s); loc != nil {
		s = s[:loc[3]] + "AT" + s[loc[4]:]
	}
	return s
}

// BaseName strips a versioned-formula suffix: "outlyer@0.1.0" -> "outlyer".
func BaseName(name string) string {
	if i := strings.IndexByte(name, '@'); i > 0 {
		return name[:i]
	}
	return name
}

// IsVersioned reports whether name carries an "@version" suffix.
func IsVersioned(name string) bool {
	return BaseName(name) != name
}

// VersionedName returns the formula name used to keep an older release
// next to the current one.
func VersionedName(name, version string) string {
	return BaseName(name) + "@" + version
}

// FileName returns the formula file name for name.
func FileName(name string) string {
	return name + ".rb"
}
