// Package title guesses a document title from loosely structured text.
package title

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Strategy is one title heuristic. Match reports ok=false when the text
// carries no usable signal for this strategy.
type Strategy struct {
	Name  string
	Match func(text string) (string, bool)
}

// Strategies run in order; the first match wins.
var Strategies = []Strategy{
	{Name: "meta-block", Match: MetaBlock},
	{Name: "meta-line", Match: MetaLine},
	{Name: "meta-html", Match: MetaHTML},
	{Name: "labelled", Match: Labelled},
	{Name: "heading", Match: Heading},
	{Name: "first-line", Match: FirstLine},
}

// Extract returns the first title any strategy accepts.
func Extract(text string) (string, bool) {
	for _, s := range Strategies {
		if t, ok := s.Match(text); ok {
			return t, true
		}
	}
	return "", false
}

const (
	minTitleRunes = 5
	maxTitleRunes = 200

	minLineRunes = 10
	maxLineRunes = 100
)

// nbsp matches a run of separators as they appear in text copied out of
// HTML editors.
const nbsp = `(?:\s|&nbsp;|\x{00a0})`

var (
	metaBlockRe = regexp.MustCompile(`(?is)meta[ \t]*title[ \t]*:(.*?)meta[ \t]*description[ \t]*:`)
	metaLineRe  = regexp.MustCompile(`(?i)meta[ \t]*title[ \t]*:[ \t]*([^\n.!?]+)`)
	metaHTMLRe  = regexp.MustCompile(`(?i)meta` + nbsp + `*title` + nbsp + `*:?` + nbsp + `*([^<\n]+)`)
	labelledRe  = regexp.MustCompile(`(?i)\b(?:meta|page|post)[ \t]+title[ \t]*[:\-]?[ \t]*([^\n]+)`)
	headingRe   = regexp.MustCompile(`(?m)^[ \t]*(?:#{1,6}[ \t]+(.+?)[ \t#]*|={2,}[ \t]*(.+?)[ \t]*=*)[ \t]*$`)
	nbspRe      = regexp.MustCompile(`(?:&nbsp;|\x{00a0})+`)
	descTailRe  = regexp.MustCompile(`(?i)` + nbsp + `*meta` + nbsp + `*description.*$`)
)

// MetaBlock captures everything between "Meta Title:" and the following
// "Meta Description:" label.
func MetaBlock(text string) (string, bool) {
	m := metaBlockRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return accept(m[1])
}

// MetaLine captures "Meta Title:" up to the end of the sentence or line.
func MetaLine(text string) (string, bool) {
	m := metaLineRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return accept(m[1])
}

// MetaHTML tolerates &nbsp; entities and non-breaking spaces between the
// label and the value, and a missing colon.
func MetaHTML(text string) (string, bool) {
	m := metaHTMLRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	v := descTailRe.ReplaceAllString(m[1], "")
	v = nbspRe.ReplaceAllString(v, " ")
	return accept(v)
}

// Labelled matches "meta title", "page title" or "post title" phrases.
func Labelled(text string) (string, bool) {
	m := labelledRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return accept(m[1])
}

// Heading returns the first markdown "#" heading or "== x ==" heading whose
// text fits the title window.
func Heading(text string) (string, bool) {
	for _, m := range headingRe.FindAllStringSubmatch(text, -1) {
		v := m[1]
		if v == "" {
			v = m[2]
		}
		if t, ok := accept(v); ok {
			return t, true
		}
	}
	return "", false
}

// FirstLine returns the first non-empty line verbatim when it is between 10
// and 100 characters long.
func FirstLine(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n := utf8.RuneCountInString(line)
		if n < minLineRunes || n > maxLineRunes {
			return "", false
		}
		return line, true
	}
	return "", false
}

// accept trims label remnants and applies the exclusive 5..200 rune window.
func accept(raw string) (string, bool) {
	v := strings.Join(strings.Fields(raw), " ")
	v = strings.Trim(v, " \"'`*_“”‘’")
	n := utf8.RuneCountInString(v)
	if n <= minTitleRunes || n >= maxTitleRunes {
		return "", false
	}
	return v, true
}
