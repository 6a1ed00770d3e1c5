package title

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/contentgrade/internal/extract"
)

// emphasisWindow bounds how many runes into the visible body text a bold
// line may start and still count as the page title.
const emphasisWindow = 300

// FromHTML picks a title from HTML structure in order of precedence:
// <title>, og:title, the first <h1>, the first <h2>, then a short bold line
// near the top of the body. Entities are decoded and whitespace collapsed.
func FromHTML(doc string) (string, bool) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", false
	}
	candidates := []func() string{
		func() string { return d.Find("title").First().Text() },
		func() string {
			return d.Find(`meta[property="og:title"], meta[name="og:title"]`).First().AttrOr("content", "")
		},
		func() string { return d.Find("h1").First().Text() },
		func() string { return d.Find("h2").First().Text() },
		func() string { return leadingEmphasis(d) },
	}
	for _, c := range candidates {
		if t := collapse(c()); t != "" {
			return t, true
		}
	}
	return "", false
}

func leadingEmphasis(d *goquery.Document) string {
	body := d.Find("body")
	if body.Length() == 0 {
		return ""
	}
	bodyText := collapse(extract.NodeText(body.Get(0)))
	var found string
	body.Find("strong, b").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := collapse(s.Text())
		n := utf8.RuneCountInString(t)
		if n < minTitleRunes || n > maxLineRunes {
			return true
		}
		if i := strings.Index(bodyText, t); i >= 0 && utf8.RuneCountInString(bodyText[:i]) <= emphasisWindow {
			found = t
		}
		return false
	})
	return found
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
