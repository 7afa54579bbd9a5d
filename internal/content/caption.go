package content

import (
	"fmt"
	"regexp"
	"strings"
)

type ParseErrorKind int

const (
	EmptyCaption ParseErrorKind = iota + 1
	MalformedHeader
)

func (k ParseErrorKind) String() string {
	switch k {
	case EmptyCaption:
		return "empty caption"
	case MalformedHeader:
		return "malformed header"
	default:
		return "unknown"
	}
}

// ParseError describes why a caption was rejected.
type ParseError struct {
	Kind   ParseErrorKind
	Header string // offending first line, MalformedHeader only
}

func (e *ParseError) Error() string {
	if e.Header != "" {
		return fmt.Sprintf("caption: %s: %q", e.Kind, e.Header)
	}
	return "caption: " + e.Kind.String()
}

// Fragment is the caption-derived part of a Record. Category and
// Description are empty when absent.
type Fragment struct {
	Code        string
	Title       string
	Category    string
	Description string
}

var (
	headerRe      = regexp.MustCompile(`^#?(\d+)\s*[-:–]+\s*(.*)$`)
	categoryRe    = regexp.MustCompile(`(?i)^category:(.*)$`)
	descriptionRe = regexp.MustCompile(`(?i)^description:(.*)$`)
)

// ParseCaption parses a channel post caption. Failures are always a
// *ParseError.
func ParseCaption(raw string) (Fragment, error) {
	lines := splitLines(raw)
	if len(lines) == 0 {
		return Fragment{}, &ParseError{Kind: EmptyCaption}
	}

	m := headerRe.FindStringSubmatch(lines[0])
	if m == nil || strings.TrimSpace(m[2]) == "" {
		return Fragment{}, &ParseError{Kind: MalformedHeader, Header: lines[0]}
	}
	f := Fragment{Code: m[1], Title: strings.TrimSpace(m[2])}

	seenCategory := false
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if dm := descriptionRe.FindStringSubmatch(line); dm != nil {
			block := append([]string{dm[1]}, lines[i+1:]...)
			f.Description = strings.TrimSpace(strings.Join(block, "\n"))
			break
		}
		if seenCategory {
			continue
		}
		if cm := categoryRe.FindStringSubmatch(line); cm != nil {
			f.Category = strings.TrimSpace(cm[1])
			seenCategory = true
		}
	}
	return f, nil
}

// splitLines returns the trimmed, non-empty lines of s.
func splitLines(s string) []string {
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
