// Package document turns uploaded files into plain text, a title and the
// links they contain.
//
// Parsing is best-effort: content the decoders cannot read yields a Document
// flagged Degraded with diagnostic text instead of an error. Only invalid
// input and local resource failures are reported as errors.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperifyio/contentgrade/internal/extract"
	"github.com/hyperifyio/contentgrade/internal/links"
	"github.com/hyperifyio/contentgrade/internal/title"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// Format identifies which decoder handled a document.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatDOC  Format = "doc"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// Sentinel titles used when a binary decoder gives up.
const (
	PDFFailedTitle      = "PDF Parsing Failed"
	DocumentFailedTitle = "Document Parsing Failed"
)

// DefaultFallbackChars bounds the diagnostic text of a degraded document.
const DefaultFallbackChars = 2000

// Document is the result of parsing one file. It is not modified after Parse
// returns.
type Document struct {
	Text  string   `json:"text"`
	Title *string  `json:"title"`
	Links []string `json:"links"`

	Format     Format `json:"format"`
	Degraded   bool   `json:"degraded"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// TitleOr returns the title, or def when none was found.
func (d Document) TitleOr(def string) string {
	if d.Title == nil {
		return def
	}
	return *d.Title
}

var (
	ErrEmpty           = errors.New("document is empty")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("document exceeds size limit")
)

// ResourceError reports a local I/O failure while parsing, such as a temp
// file that could not be written. It is not a content problem.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string { return fmt.Sprintf("document: %s: %v", e.Op, e.Err) }
func (e *ResourceError) Unwrap() error { return e.Err }

// Parser converts raw file bytes into a Document. The zero value is usable.
type Parser struct {
	// TempDir hosts the PDF retry file. Empty means os.TempDir().
	TempDir string
	// FallbackChars bounds degraded text. Zero means DefaultFallbackChars.
	FallbackChars int
	// HTML picks the readable part of HTML pages. Nil means the whole body.
	HTML extract.Extractor
}

// FormatOf maps a filename to the decoder that will handle it.
func FormatOf(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".doc":
		return FormatDOC
	case ".html", ".htm", ".xhtml":
		return FormatHTML
	default:
		return FormatText
	}
}

// Parse decodes data according to the extension of filename.
func (p *Parser) Parse(ctx context.Context, data []byte, filename string) (Document, error) {
	if len(data) == 0 {
		return Document{}, ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	format := FormatOf(filename)
	var (
		doc Document
		err error
	)
	switch format {
	case FormatPDF:
		doc, err = p.parsePDF(ctx, data)
	case FormatDOCX:
		doc = p.parseDOCX(data)
	case FormatDOC:
		doc = p.parseDOC(data)
	case FormatHTML:
		doc = p.parseHTML(data)
	default:
		doc = parseText(data)
	}
	if err != nil {
		return Document{}, err
	}
	doc.Format = format
	if doc.Links == nil {
		doc.Links = []string{}
	}
	if doc.Degraded {
		log.Warn().Str("file", filename).Str("format", string(format)).Str("reason", doc.Diagnostic).Msg("document parsed in degraded mode")
	} else {
		log.Debug().Str("file", filename).Str("format", string(format)).Int("chars", len(doc.Text)).Int("links", len(doc.Links)).Msg("document parsed")
	}
	return doc, nil
}

func (p *Parser) fallbackChars() int {
	if p.FallbackChars > 0 {
		return p.FallbackChars
	}
	return DefaultFallbackChars
}

func (p *Parser) tempDir() string {
	if p.TempDir != "" {
		return p.TempDir
	}
	return os.TempDir()
}

func (p *Parser) htmlExtractor() extract.Extractor {
	if p.HTML != nil {
		return p.HTML
	}
	return extract.BodyExtractor{}
}

// finish normalises text and fills title and links from it when the format
// specific decoder found none.
func finish(text string, formatTitle string) Document {
	text = norm.NFC.String(strings.TrimSpace(text))
	doc := Document{Text: text, Links: links.Extract(text)}
	if t := strings.TrimSpace(formatTitle); t != "" {
		doc.Title = &t
	} else if t, ok := title.Extract(text); ok {
		doc.Title = &t
	}
	return doc
}

// degraded builds the diagnostic document for a decoder failure.
func degraded(salvage string, sentinel string, cause error, limit int) Document {
	text := truncateRunes(strings.TrimSpace(stripControl(salvage)), limit)
	t := sentinel
	return Document{
		Text:       norm.NFC.String(text),
		Title:      &t,
		Links:      links.Extract(text),
		Degraded:   true,
		Diagnostic: cause.Error(),
	}
}

// stripControl drops invalid UTF-8 and control characters other than line
// breaks and tabs.
func stripControl(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
