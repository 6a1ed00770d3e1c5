// Package links pulls hyperlinks out of free-form text, markdown and HTML.
//
// Extraction is a fixed, ordered list of independent pattern families. Each
// family contributes candidates; the combined list is cleaned of trailing
// punctuation and deduplicated case-sensitively in first-seen order.
package links

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Family is one independent link pattern. Match returns raw candidates in the
// order they appear in the content.
type Family struct {
	Name  string
	Match func(content string) []string
}

var (
	anchorDouble = regexp.MustCompile(`(?is)<a\b[^>]*?\bhref\s*=\s*"([^"]*)"[^>]*>.*?</a\s*>`)
	anchorSingle = regexp.MustCompile(`(?is)<a\b[^>]*?\bhref\s*=\s*'([^']*)'[^>]*>.*?</a\s*>`)
	// One level of balanced parentheses is allowed inside the URL.
	bareURL  = regexp.MustCompile(`https?://(?:[^\s<>"'()\[\]{}]+|\([^\s<>"'()\[\]{}]*\))+`)
	wwwURL   = regexp.MustCompile(`(?:^|[^/\w.@-])(www\.(?:[^\s<>"'()\[\]{}]+|\([^\s<>"'()\[\]{}]*\))+)`)
	mdLink   = regexp.MustCompile(`\[[^\]]*\]\(\s*([^)\s]+)\s*\)`)
	relative = regexp.MustCompile(`(?:^|[\s(\["'=])(/[^/\s<>"'()\[\]{}][^\s<>"'()\[\]{}]*)`)
)

// Families is the extraction order. Earlier families win the position of a
// URL found by several of them.
var Families = []Family{
	{Name: "anchor", Match: matchAnchors},
	{Name: "bare", Match: matchBare},
	{Name: "www", Match: matchWWW},
	{Name: "markdown", Match: matchMarkdown},
	{Name: "relative", Match: matchRelative},
}

// Extract returns the cleaned, deduplicated links found in content.
// It never fails; content that matches nothing yields an empty slice.
func Extract(content string) []string {
	var found []string
	for _, f := range Families {
		found = append(found, f.Match(content)...)
	}
	return Normalize(found)
}

// Normalize cleans every candidate, drops empties and removes duplicates
// while keeping the first occurrence.
func Normalize(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		u := Clean(c)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

const trailingPunct = `,.!?;:'"`

// Clean trims whitespace and strips trailing sentence punctuation. A closing
// ")" or "]" is stripped only when it has no opening partner inside the URL.
// Clean is idempotent.
func Clean(raw string) string {
	u := raw
	for {
		u = strings.TrimSpace(u)
		if u == "" {
			return ""
		}
		last := u[len(u)-1]
		switch {
		case strings.IndexByte(trailingPunct, last) >= 0:
		case last == ')' && strings.Count(u, "(") < strings.Count(u, ")"):
		case last == ']' && strings.Count(u, "[") < strings.Count(u, "]"):
		default:
			return u
		}
		u = u[:len(u)-1]
	}
}

func matchAnchors(content string) []string {
	type hit struct {
		pos  int
		href string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{anchorDouble, anchorSingle} {
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			hits = append(hits, hit{pos: m[0], href: content[m[2]:m[3]]})
		}
	}
	// Keep document order across both quote styles.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		href := html.UnescapeString(strings.TrimSpace(h.href))
		if IsPseudoLink(href) {
			continue
		}
		out = append(out, href)
	}
	return out
}

// IsPseudoLink reports hrefs that never point at a fetchable resource.
func IsPseudoLink(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	for _, p := range []string{"javascript:", "mailto:", "tel:", "data:", "sms:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func matchBare(content string) []string {
	var out []string
	for _, m := range bareURL.FindAllString(content, -1) {
		out = append(out, decodeEntities(m))
	}
	return out
}

// decodeEntities resolves HTML entities in a URL lifted from markup and cuts
// it at the first whitespace an entity such as &nbsp; may have produced.
func decodeEntities(u string) string {
	if !strings.Contains(u, "&") {
		return u
	}
	u = html.UnescapeString(u)
	if i := strings.IndexFunc(u, unicode.IsSpace); i >= 0 {
		u = u[:i]
	}
	return u
}

func matchWWW(content string) []string {
	var out []string
	for _, m := range wwwURL.FindAllStringSubmatch(content, -1) {
		out = append(out, "http://"+decodeEntities(m[1]))
	}
	return out
}

func matchMarkdown(content string) []string {
	var out []string
	for _, m := range mdLink.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1])
	}
	return out
}

// matchRelative skips paths written as a unit after a number, as in
// "5 /month".
func matchRelative(content string) []string {
	var out []string
	for _, m := range relative.FindAllStringSubmatchIndex(content, -1) {
		before := strings.TrimRight(content[:m[2]], " \t")
		if before != "" {
			if r, _ := utf8.DecodeLastRuneInString(before); unicode.IsDigit(r) {
				continue
			}
		}
		out = append(out, content[m[2]:m[3]])
	}
	return out
}
