package formula

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	classRe = regexp.MustCompile(`^class\s+([A-Z][A-Za-z0-9_]*)\s*<\s*Formula$`)

	// Lines that open a Ruby block closed by a matching "end".
	blockOpenRe = regexp.MustCompile(`^(def|if|unless|case|begin|while|until|module|class)\b|\bdo(\s*\|[^|]*\|)?$`)

	keywordRe = regexp.MustCompile(`^([a-z_][A-Za-z0-9_]*(?:\.[a-z_][A-Za-z0-9_]*)*)\s*(.*)$`)
)

const (
	stateTop = iota
	stateClass
	stateInstall
	stateDone
)

// ParseFile parses the formula at path. The descriptor name is the file
// name without its .rb extension.
func ParseFile(filePath string) (*Descriptor, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open formula: %w", err)
	}
	defer f.Close()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	d.Name = strings.TrimSuffix(filepath.Base(filePath), ".rb")
	d.Path = filePath
	return d, nil
}

// Parse reads a formula from r. The returned descriptor has no Name or Path;
// those come from the file (see ParseFile).
func Parse(r io.Reader) (*Descriptor, error) {
	d := &Descriptor{}
	state := stateTop
	skipDepth := 0
	lineNo := 0

	unrecognized := func(text string) {
		d.Unrecognized = append(d.Unrecognized, Line{Number: lineNo, Text: text})
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(stripComment(sc.Text()))
		if line == "" {
			continue
		}

		// Inside a block we do not interpret: only track nesting.
		if skipDepth > 0 {
			if line == "end" {
				skipDepth--
			} else if blockOpenRe.MatchString(line) {
				skipDepth++
			}
			continue
		}

		switch state {
		case stateTop:
			m := classRe.FindStringSubmatch(line)
			if m == nil {
				unrecognized(line)
				continue
			}
			d.ClassName = m[1]
			state = stateClass

		case stateClass:
			if line == "end" {
				state = stateDone
				continue
			}
			if line == "def install" {
				state = stateInstall
				continue
			}
			if blockOpenRe.MatchString(line) {
				unrecognized(line)
				skipDepth = 1
				continue
			}
			if err := parseStanza(d, line, lineNo, unrecognized); err != nil {
				return nil, err
			}

		case stateInstall:
			if line == "end" {
				state = stateClass
				continue
			}
			if blockOpenRe.MatchString(line) {
				unrecognized(line)
				skipDepth = 1
				continue
			}
			kw, rest := splitKeyword(line)
			if kw != "bin.install" || !startsWithQuote(rest) {
				unrecognized(line)
				continue
			}
			targets, err := parseInstall(rest)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: fmt.Sprintf("bin.install: %v", err)}
			}
			d.Binaries = append(d.Binaries, targets...)

		case stateDone:
			unrecognized(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read formula: %w", err)
	}

	switch {
	case state == stateTop:
		return nil, ErrNotFormula
	case skipDepth > 0:
		return nil, &ParseError{Line: lineNo, Msg: "unterminated block"}
	case state == stateInstall:
		return nil, &ParseError{Line: lineNo, Msg: `unterminated "def install" block`}
	case state == stateClass:
		return nil, &ParseError{Line: lineNo, Msg: "unterminated class"}
	}

	// #{version} is the only interpolation binary-release formulae rely on.
	if d.Version != "" {
		d.URL = strings.ReplaceAll(d.URL, "#{version}", d.Version)
	}
	return d, nil
}

func parseStanza(d *Descriptor, line string, lineNo int, unrecognized func(string)) error {
	kw, rest := splitKeyword(line)

	var field *string
	switch kw {
	case "desc":
		field = &d.Description
	case "homepage":
		field = &d.Homepage
	case "url":
		field = &d.URL
	case "version":
		field = &d.Version
	case "sha256":
		field = &d.SHA256
	default:
		unrecognized(line)
		return nil
	}

	// url may carry trailing options (", using: :nounzip"); only the
	// literal is part of the descriptor.
	val, _, err := readString(rest)
	if err != nil {
		return &ParseError{Line: lineNo, Msg: fmt.Sprintf("%s: %v", kw, err)}
	}
	*field = val
	return nil
}

// parseInstall handles `"a"`, `"a", "b"` and `"a" => "b"`.
func parseInstall(rest string) ([]InstallTarget, error) {
	var targets []InstallTarget
	for {
		src, tail, err := readString(rest)
		if err != nil {
			return nil, err
		}
		target := InstallTarget{Source: src, Name: path.Base(src)}
		tail = strings.TrimSpace(tail)

		if strings.HasPrefix(tail, "=>") {
			dst, after, err := readString(strings.TrimSpace(tail[2:]))
			if err != nil {
				return nil, err
			}
			target.Name = dst
			tail = strings.TrimSpace(after)
		}
		targets = append(targets, target)

		if tail == "" {
			return targets, nil
		}
		if tail[0] != ',' {
			return nil, fmt.Errorf("unexpected %q", tail)
		}
		rest = strings.TrimSpace(tail[1:])
	}
}

func splitKeyword(line string) (string, string) {
	m := keywordRe.FindStringSubmatch(line)
	if m == nil {
		return "", line
	}
	return m[1], strings.TrimSpace(m[2])
}

func startsWithQuote(s string) bool {
	return s != "" && (s[0] == '"' || s[0] == '\'')
}

// readString reads one Ruby string literal from the start of s and returns
// its value and whatever follows the closing quote.
func readString(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("expected string literal")
	}
	quote := s[0]
	if quote != '"' && quote != '\'' {
		return "", "", fmt.Errorf("expected string literal, got %q", s)
	}

	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if next == quote || next == '\\' || (quote == '"' && next == '#') {
				sb.WriteByte(next)
			} else {
				sb.WriteByte(c)
				sb.WriteByte(next)
			}
			i++
		case c == quote:
			return sb.String(), s[i+1:], nil
		default:
			sb.WriteByte(c)
		}
	}
	return "", "", fmt.Errorf("unterminated string literal")
}

// stripComment drops a trailing "# ..." comment that is not inside a string.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			quote = 0
		case quote == 0 && (c == '"' || c == '\''):
			quote = c
		case quote == 0 && c == '#':
			return line[:i]
		}
	}
	return line
}
