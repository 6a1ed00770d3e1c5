package links

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/contentgrade/internal/extract"
)

// linkRels are <link rel=...> values that point at other documents rather
// than page assets such as stylesheets or icons.
var linkRels = map[string]struct{}{
	"canonical": {}, "alternate": {}, "amphtml": {}, "author": {},
	"next": {}, "prev": {}, "shortlink": {}, "license": {},
}

// metaURLKeys are <meta property|name> keys whose content is a URL.
var metaURLKeys = map[string]struct{}{
	"og:url": {}, "og:see_also": {}, "twitter:url": {},
	"article:author": {}, "article:publisher": {},
}

// ExtractHTML collects links from an HTML document: anchor hrefs, document
// <link> tags and URL-valued <meta> tags first, then any links written out
// in the visible body text. Markup that cannot be parsed falls back to
// Extract over the raw input.
func ExtractHTML(doc string) []string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return Extract(doc)
	}
	var found []string
	d.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if IsPseudoLink(href) {
			return
		}
		found = append(found, href)
	})
	d.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(strings.TrimSpace(s.AttrOr("rel", "")))
		if _, ok := linkRels[rel]; !ok {
			return
		}
		found = append(found, s.AttrOr("href", ""))
	})
	d.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		key := strings.ToLower(s.AttrOr("property", s.AttrOr("name", "")))
		if _, ok := metaURLKeys[key]; !ok {
			return
		}
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://") {
			found = append(found, content)
		}
	})

	root := d.Find("body")
	if root.Length() == 0 {
		root = d.Selection
	}
	text := extract.NodeText(root.Get(0))
	for _, f := range Families {
		if f.Name == "anchor" {
			continue
		}
		found = append(found, f.Match(text)...)
	}
	return Normalize(found)
}
