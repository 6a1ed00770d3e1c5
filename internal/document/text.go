package document

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperifyio/contentgrade/internal/extract"
	"github.com/hyperifyio/contentgrade/internal/links"
	"github.com/hyperifyio/contentgrade/internal/title"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFirstLineTitle = 200

func (p *Parser) parseHTML(data []byte) Document {
	raw := extract.DecodeHTML(data, "text/html")
	page := p.htmlExtractor().Extract(raw)
	text := norm.NFC.String(page.Text)
	doc := Document{Text: text, Links: links.ExtractHTML(string(raw))}
	if t, ok := title.FromHTML(string(raw)); ok {
		doc.Title = &t
	} else if t, ok := title.Extract(text); ok {
		doc.Title = &t
	}
	return doc
}

func parseText(data []byte) Document {
	text := norm.NFC.String(decodeText(data))
	doc := Document{Text: text, Links: links.Extract(text)}
	if t, ok := title.Extract(text); ok {
		doc.Title = &t
	} else if t := firstLine(text); t != "" {
		doc.Title = &t
	}
	return doc
}

// decodeText honours a UTF-8 or UTF-16 byte order mark and replaces any
// remaining invalid sequences.
func decodeText(data []byte) string {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		out = data
	}
	s := string(out)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncateRunes(line, maxFirstLineTitle)
		}
	}
	return ""
}
