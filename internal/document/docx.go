package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lu4p/cat/docxtxt"

	"github.com/hyperifyio/contentgrade/internal/links"
)

// maxPartBytes caps how much of a single package part is inflated.
const maxPartBytes = 64 << 20

var errNoDocumentPart = errors.New("word/document.xml not found")

func (p *Parser) parseDOCX(data []byte) Document {
	text, meta, hyperlinks, err := readDOCX(data)
	if err != nil {
		return degraded(printableRuns(data, 4), DocumentFailedTitle, err, p.fallbackChars())
	}
	doc := finish(text, meta)
	if len(hyperlinks) > 0 {
		doc.Links = links.Normalize(append(hyperlinks, doc.Links...))
	}
	return doc
}

// readDOCX returns body text, the core-properties title and external
// hyperlink targets of an OOXML word package. The text comes from docxtxt;
// the package parts it ignores are read here.
func readDOCX(data []byte) (text string, docTitle string, hyperlinks []string, err error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", nil, fmt.Errorf("open docx: %w", err)
	}
	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}
	if _, ok := parts["word/document.xml"]; !ok {
		return "", "", nil, errNoDocumentPart
	}
	text, err = docxText(data)
	if err != nil {
		return "", "", nil, err
	}
	if core, ok := parts["docProps/core.xml"]; ok {
		if b, err := readPart(core); err == nil {
			docTitle = coreTitle(b)
		}
	}
	if rels, ok := parts["word/_rels/document.xml.rels"]; ok {
		if b, err := readPart(rels); err == nil {
			hyperlinks = externalTargets(b)
		}
	}
	return text, docTitle, hyperlinks, nil
}

// docxText recovers from decoder panics on malformed packages.
func docxText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docx decoder: %v", r)
		}
	}()
	text, err = docxtxt.BytesToStr(data)
	if err != nil {
		return "", fmt.Errorf("decode docx text: %w", err)
	}
	return text, nil
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxPartBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return b, nil
}

func coreTitle(raw []byte) string {
	var props struct {
		Title string `xml:"title"`
	}
	if err := xml.Unmarshal(raw, &props); err != nil {
		return ""
	}
	return strings.TrimSpace(props.Title)
}

func externalTargets(raw []byte) []string {
	var rels struct {
		Items []struct {
			Type       string `xml:"Type,attr"`
			Target     string `xml:"Target,attr"`
			TargetMode string `xml:"TargetMode,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(raw, &rels); err != nil {
		return nil
	}
	var out []string
	for _, r := range rels.Items {
		if !strings.HasSuffix(r.Type, "/hyperlink") || !strings.EqualFold(r.TargetMode, "External") {
			continue
		}
		if links.IsPseudoLink(r.Target) {
			continue
		}
		out = append(out, r.Target)
	}
	return out
}
