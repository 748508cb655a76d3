package formula

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

var urlVersionRe = regexp.MustCompile(`v?(\d+(?:\.\d+)+(?:-(?:alpha|beta|rc|pre|preview|dev)(?:\.?\d+)*)?)`)

// URLVersions returns the version-like tokens embedded in the path of rawURL,
// in order of appearance and without a leading "v".
func URLVersions(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var versions []string
	for _, segment := range strings.Split(u.Path, "/") {
		for _, loc := range urlVersionRe.FindAllStringSubmatchIndex(segment, -1) {
			// Reject tokens glued to a word, e.g. "python3.11".
			if loc[0] > 0 && isAlnum(segment[loc[0]-1]) {
				continue
			}
			v := segment[loc[2]:loc[3]]
			if !seen[v] {
				seen[v] = true
				versions = append(versions, v)
			}
		}
	}
	return versions
}

// URLHasVersion reports whether version is one of the tokens in rawURL.
func URLHasVersion(rawURL, version string) bool {
	version = strings.TrimPrefix(version, "v")
	for _, v := range URLVersions(rawURL) {
		if v == version {
			return true
		}
	}
	return false
}

// CompareVersions orders two version strings. Semantic versions compare by
// semver precedence; anything else falls back to dot-segment comparison.
func CompareVersions(a, b string) int {
	va, vb := canonical(a), canonical(b)
	if semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	return compareSegments(strings.TrimPrefix(a, "v"), strings.TrimPrefix(b, "v"))
}

func canonical(v string) string {
	return "v" + strings.TrimPrefix(v, "v")
}

func compareSegments(a, b string) int {
	split := func(s string) []string {
		return strings.FieldsFunc(s, func(r rune) bool {
			return r == '.' || r == '-' || r == '_'
		})
	}
	pa, pb := split(a), split(b)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		if errA == nil && errB == nil {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
