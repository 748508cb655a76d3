package formula

import (
	"fmt"
	"path"
	"strings"
)

// Render produces the canonical formula text for d.
func Render(d *Descriptor) []byte {
	className := d.ClassName
	if className == "" {
		className = ClassName(d.Name)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("class %s < Formula\n", className))
	if d.Description != "" {
		sb.WriteString(fmt.Sprintf("  desc %s\n", quote(d.Description)))
	}
	if d.Homepage != "" {
		sb.WriteString(fmt.Sprintf("  homepage %s\n", quote(d.Homepage)))
	}
	sb.WriteString(fmt.Sprintf("  url %s\n", quote(d.URL)))
	sb.WriteString(fmt.Sprintf("  version %s\n", quote(d.Version)))
	sb.WriteString(fmt.Sprintf("  sha256 %s\n", quote(d.SHA256)))
	sb.WriteString("\n  def install\n")
	for _, b := range d.Binaries {
		if b.Name == "" || b.Name == path.Base(b.Source) {
			sb.WriteString(fmt.Sprintf("    bin.install %s\n", quote(b.Source)))
		} else {
			sb.WriteString(fmt.Sprintf("    bin.install %s => %s\n", quote(b.Source), quote(b.Name)))
		}
	}
	sb.WriteString("  end\nend\n")

	return []byte(sb.String())
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `#{`, `\#{`)
	return `"` + r.Replace(s) + `"`
}
