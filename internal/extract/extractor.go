package extract

// Extractor turns raw HTML into a Document.
type Extractor interface {
	Extract(input []byte) Document
}

// BodyExtractor keeps everything inside <body>. Used for uploaded files,
// where the author controls the whole page.
type BodyExtractor struct{}

func (BodyExtractor) Extract(input []byte) Document {
	return FromHTML(input)
}

// ArticleExtractor prefers <main>/<article> and drops navigation, footers and
// consent banners. Used for pages fetched from the web.
type ArticleExtractor struct{}

func (ArticleExtractor) Extract(input []byte) Document {
	return FromHTMLWith(input, Options{PreferArticle: true})
}
