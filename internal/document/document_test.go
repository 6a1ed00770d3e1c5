package document

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperifyio/contentgrade/internal/extract"
	"github.com/jung-kurt/gofpdf"
)

func TestParse_HTMLScenario(t *testing.T) {
	var p Parser
	html := `<html><head><title>  My   Guide </title></head><body><a href="https://x.com/a">here</a> and http://y.com/b.</body></html>`
	doc, err := p.Parse(context.Background(), []byte(html), "doc.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title == nil || *doc.Title != "My Guide" {
		t.Fatalf("title = %v, want My Guide", doc.Title)
	}
	want := []string{"https://x.com/a", "http://y.com/b"}
	if !reflect.DeepEqual(doc.Links, want) {
		t.Fatalf("links = %#v, want %#v", doc.Links, want)
	}
	if doc.Format != FormatHTML || doc.Degraded {
		t.Fatalf("format=%s degraded=%v", doc.Format, doc.Degraded)
	}
	if strings.Contains(doc.Text, "My Guide") || !strings.Contains(doc.Text, "here and http://y.com/b.") {
		t.Fatalf("unexpected body text %q", doc.Text)
	}
}

func TestParse_HTMLLinksRespectParagraphs(t *testing.T) {
	var p Parser
	html := `<html><body><h3>Intro</h3><p>Visit http://a.com</p><p>Second para</p><ul><li>www.b.com</li><li>www.c.com</li></ul></body></html>`
	doc, err := p.Parse(context.Background(), []byte(html), "x.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"http://a.com", "http://www.b.com", "http://www.c.com"}
	if !reflect.DeepEqual(doc.Links, want) {
		t.Fatalf("links = %#v, want %#v", doc.Links, want)
	}
}

func TestParse_HTMLFallsBackToTextCascade(t *testing.T) {
	var p Parser
	html := `<html><body><p>Meta Title: Sourdough Starter Guide</p><p>Meta Description: feed it daily</p><script>var t="Ignored Title Here"</script></body></html>`
	doc, err := p.Parse(context.Background(), []byte(html), "PAGE.HTM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.TitleOr(""); got != "Sourdough Starter Guide" {
		t.Fatalf("title = %q", got)
	}
	if strings.Contains(doc.Text, "Ignored") {
		t.Fatalf("script leaked into text: %q", doc.Text)
	}
}

func TestParse_HTMLArticleExtractor(t *testing.T) {
	p := Parser{HTML: extract.ArticleExtractor{}}
	html := `<html><body><nav>Menu Home About</nav><article><h1>Fermenting Cabbage</h1><p>Salt it well.</p></article></body></html>`
	doc, err := p.Parse(context.Background(), []byte(html), "x.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(doc.Text, "Menu") {
		t.Fatalf("nav not dropped: %q", doc.Text)
	}
	if doc.TitleOr("") != "Fermenting Cabbage" {
		t.Fatalf("title = %q", doc.TitleOr(""))
	}
}

func TestParse_PlainText(t *testing.T) {
	var p Parser
	doc, err := p.Parse(context.Background(), []byte("Meta Title: Best Widgets Ever\nMeta Description: buy now at www.widgets.example"), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.TitleOr("") != "Best Widgets Ever" {
		t.Fatalf("title = %q", doc.TitleOr(""))
	}
	if !reflect.DeepEqual(doc.Links, []string{"http://www.widgets.example"}) {
		t.Fatalf("links = %#v", doc.Links)
	}

	doc, err = p.Parse(context.Background(), []byte("\n\nShort\nbody"), "a.unknownext")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.TitleOr("") != "Short" || doc.Format != FormatText {
		t.Fatalf("title = %q format=%s", doc.TitleOr(""), doc.Format)
	}
	if doc.Links == nil || len(doc.Links) != 0 {
		t.Fatalf("expected empty non-nil links, got %#v", doc.Links)
	}
}

func TestParse_UTF16Text(t *testing.T) {
	var p Parser
	src := "Café opening hours list\nsee https://cafe.example/hours"
	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xFE})
	for _, r := range src {
		b.WriteByte(byte(r))
		b.WriteByte(byte(r >> 8))
	}
	doc, err := p.Parse(context.Background(), b.Bytes(), "hours.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.TitleOr("") != "Café opening hours list" {
		t.Fatalf("title = %q", doc.TitleOr(""))
	}
	if !reflect.DeepEqual(doc.Links, []string{"https://cafe.example/hours"}) {
		t.Fatalf("links = %#v", doc.Links)
	}
}

func TestParse_Empty(t *testing.T) {
	var p Parser
	if _, err := p.Parse(context.Background(), nil, "a.pdf"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestParse_PDF(t *testing.T) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Quarterly Widget Report", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(40, 10, "Widgets sold well this quarter")
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("render pdf: %v", err)
	}

	dir := t.TempDir()
	p := Parser{TempDir: dir}
	doc, err := p.Parse(context.Background(), buf.Bytes(), "report.PDF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Degraded {
		t.Fatalf("expected clean decode, got diagnostic %q", doc.Diagnostic)
	}
	if doc.TitleOr("") != "Quarterly Widget Report" {
		t.Fatalf("title = %q", doc.TitleOr(""))
	}
	if !strings.Contains(doc.Text, "Widgets") {
		t.Fatalf("text = %q", doc.Text)
	}
}

func TestParse_CorruptPDFDegrades(t *testing.T) {
	dir := t.TempDir()
	p := Parser{TempDir: dir, FallbackChars: 40}
	data := []byte("%PDF-1.4\n1 0 obj garbage\nBT (Salvaged words from a broken file) Tj ET\n\x00\x01\x02")
	doc, err := p.Parse(context.Background(), data, "broken.pdf")
	if err != nil {
		t.Fatalf("corrupt content must not be an error: %v", err)
	}
	if !doc.Degraded {
		t.Fatalf("expected degraded document")
	}
	if doc.TitleOr("") != PDFFailedTitle {
		t.Fatalf("title = %q", doc.TitleOr(""))
	}
	if doc.Diagnostic == "" {
		t.Fatalf("expected diagnostic")
	}
	if len([]rune(doc.Text)) > 40 {
		t.Fatalf("fallback text not bounded: %d runes", len([]rune(doc.Text)))
	}
	if !strings.HasPrefix(doc.Text, "Salvaged words") {
		t.Fatalf("text = %q", doc.Text)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestParsePDF_CancelledBeforeRetryDegrades(t *testing.T) {
	dir := t.TempDir()
	p := Parser{TempDir: dir}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := []byte("%PDF-1.4\nBT (Partial notes survive) Tj ET\n\x00\x01")
	doc, err := p.parsePDF(ctx, data)
	if err != nil {
		t.Fatalf("cancellation must not fail the parse: %v", err)
	}
	if !doc.Degraded || doc.TitleOr("") != PDFFailedTitle {
		t.Fatalf("expected degraded document, got %+v", doc)
	}
	if !strings.Contains(doc.Diagnostic, "retry skipped") || !strings.HasPrefix(doc.Text, "Partial notes survive") {
		t.Fatalf("diagnostic=%q text=%q", doc.Diagnostic, doc.Text)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("no retry file expected, found %v", entries)
	}
}

func TestParse_PDFTempFailureIsResourceError(t *testing.T) {
	p := Parser{TempDir: filepath.Join(t.TempDir(), "missing", "deeper")}
	_, err := p.Parse(context.Background(), []byte("not a pdf at all"), "x.pdf")
	var rerr *ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
}

func buildDOCX(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Choosing</w:t></w:r><w:r><w:t xml:space="preserve"> Hiking Boots</w:t></w:r></w:p>
<w:p><w:r><w:t>Fit matters most.</w:t><w:tab/><w:t>See https://boots.example/fit.</w:t></w:r></w:p>
</w:body>
</w:document>`

func TestParse_DOCX(t *testing.T) {
	data := buildDOCX(t, map[string]string{
		"word/document.xml": sampleDocumentXML,
		"docProps/core.xml": `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Boot Buying Guide</dc:title></cp:coreProperties>`,
		"word/_rels/document.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://trails.example/" TargetMode="External"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`,
	})
	var p Parser
	doc, err := p.Parse(context.Background(), data, "boots.docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Degraded {
		t.Fatalf("unexpected degraded: %s", doc.Diagnostic)
	}
	if doc.TitleOr("") != "Boot Buying Guide" {
		t.Fatalf("title = %q", doc.TitleOr(""))
	}
	for _, want := range []string{"Choosing", "Hiking Boots", "Fit matters most."} {
		if !strings.Contains(doc.Text, want) {
			t.Fatalf("text %q missing %q", doc.Text, want)
		}
	}
	want := []string{"https://trails.example/", "https://boots.example/fit"}
	if !reflect.DeepEqual(doc.Links, want) {
		t.Fatalf("links = %#v, want %#v", doc.Links, want)
	}
}

func TestParse_DOCXWithoutBodyDegrades(t *testing.T) {
	data := buildDOCX(t, map[string]string{"word/styles.xml": "<styles/>"})
	var p Parser
	doc, err := p.Parse(context.Background(), data, "empty.docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !doc.Degraded || doc.TitleOr("") != DocumentFailedTitle {
		t.Fatalf("expected degraded document, got %+v", doc)
	}
}

func TestParse_LegacyDOC(t *testing.T) {
	var raw bytes.Buffer
	raw.Write([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0, 0})
	for _, r := range "Legacy memo about budgets" {
		raw.WriteByte(byte(r))
		raw.WriteByte(0)
	}
	raw.Write([]byte{0, 0, 0x01, 0x02})
	var p Parser
	doc, err := p.Parse(context.Background(), raw.Bytes(), "memo.doc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !doc.Degraded || doc.TitleOr("") != DocumentFailedTitle {
		t.Fatalf("expected degraded doc, got %+v", doc)
	}
	if !strings.Contains(doc.Text, "Legacy memo about budgets") {
		t.Fatalf("text = %q", doc.Text)
	}

	ooxml := buildDOCX(t, map[string]string{"word/document.xml": sampleDocumentXML})
	doc, err = p.Parse(context.Background(), ooxml, "renamed.doc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Degraded || doc.Format != FormatDOC {
		t.Fatalf("expected OOXML .doc to decode, got %+v", doc)
	}
}

func TestValidateUpload(t *testing.T) {
	cases := []struct {
		name string
		size int64
		lim  Limits
		want error
	}{
		{"ok.pdf", 10, Limits{}, nil},
		{"ok.MD", 10, Limits{}, nil},
		{"empty.pdf", 0, Limits{}, ErrEmpty},
		{"big.pdf", 11, Limits{MaxBytes: 10}, ErrTooLarge},
		{"tool.exe", 10, Limits{}, ErrUnsupportedType},
		{"page.html", 10, Limits{Extensions: []string{".pdf"}}, ErrUnsupportedType},
	}
	for _, tc := range cases {
		err := ValidateUpload(tc.name, tc.size, tc.lim)
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestFilenameFor(t *testing.T) {
	cases := map[string]Format{
		"text/html; charset=utf-8": FormatHTML,
		"application/pdf":          FormatPDF,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDOCX,
		"text/plain": FormatText,
		"":           FormatText,
	}
	for ct, want := range cases {
		if got := FormatOf(FilenameFor(ct)); got != want {
			t.Fatalf("%q: got %s want %s", ct, got, want)
		}
	}
}
