package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Document is the readable part of an HTML page.
type Document struct {
	Title string
	Text  string
}

// Options control how much of the page counts as content.
type Options struct {
	// PreferArticle narrows to <main> or <article> when present and drops
	// navigation chrome. Off means the whole <body> is kept.
	PreferArticle bool
}

// FromHTML extracts readable text from the <body> of an HTML document.
// Script, style and other non-content blocks are removed; headings,
// paragraphs, list items and pre blocks keep their line structure.
func FromHTML(input []byte) Document {
	return FromHTMLWith(input, Options{})
}

// FromHTMLWith is FromHTML with explicit options.
func FromHTMLWith(input []byte, opts Options) Document {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return Document{}
	}

	title := strings.TrimSpace(findTitle(node))
	var content *html.Node
	if opts.PreferArticle {
		content = findFirst(node, "main")
		if content == nil {
			content = findFirst(node, "article")
		}
	}
	if content == nil {
		content = findFirst(node, "body")
	}
	if content == nil {
		content = node
	}
	var b strings.Builder
	collectText(&b, content, false, opts.PreferArticle)
	return Document{Title: title, Text: normalizeWhitespace(b.String())}
}

// NodeText returns the visible text under n with block elements on their
// own lines, so words from adjacent paragraphs or list items never touch.
func NodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	collectText(&b, n, false, false)
	return normalizeWhitespace(b.String())
}

func findTitle(n *html.Node) string {
	head := findFirst(n, "head")
	if head == nil {
		return ""
	}
	t := findFirst(head, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
	var res *html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if res != nil {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = cur
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	dfs(n)
	return res
}

// skipAlways never carry readable content.
var skipAlways = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"iframe": true, "svg": true, "head": true,
}

// skipChrome is page chrome dropped only in article mode.
var skipChrome = map[string]bool{"nav": true, "footer": true, "aside": true}

func collectText(b *strings.Builder, n *html.Node, inPre bool, dropChrome bool) {
	if n.Type == html.ElementNode {
		name := strings.ToLower(n.Data)
		if skipAlways[name] {
			return
		}
		if dropChrome && (skipChrome[name] || isConsentBanner(n)) {
			return
		}
		switch name {
		case "pre":
			inPre = true
			b.WriteString("\n")
		case "br", "hr":
			b.WriteString("\n")
		case "p", "div", "section", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "tr", "blockquote",
			"article", "main", "header", "footer", "nav", "aside", "table", "dl", "dt", "dd", "figure", "figcaption", "address":
			b.WriteString("\n")
		case "td", "th":
			b.WriteString(" ")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre, dropChrome)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote":
			b.WriteString("\n\n")
		case "li", "tr", "div", "section", "article", "main", "header", "footer", "nav", "aside",
			"table", "dl", "dt", "dd", "figure", "figcaption", "address":
			b.WriteString("\n")
		case "pre":
			b.WriteString("\n")
		}
	}
}

// isConsentBanner reports elements that look like cookie or consent banners.
func isConsentBanner(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && key != "role" && key != "aria-label" {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, marker := range []string{"cookie", "consent", "gdpr"} {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}

// normalizeWhitespace collapses runs of spaces and keeps at most one blank
// line between blocks.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\u00a0' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}
