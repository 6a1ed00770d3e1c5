package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

func (p *Parser) parsePDF(ctx context.Context, data []byte) (Document, error) {
	text, info, err := readPDF(bytes.NewReader(data), int64(len(data)))
	if err == nil {
		return finish(text, info), nil
	}
	log.Debug().Err(err).Msg("pdf decode from memory failed; retrying from temp file")
	if cerr := ctx.Err(); cerr != nil {
		return degraded(salvagePDFText(data), PDFFailedTitle, fmt.Errorf("%v; retry skipped: %w", err, cerr), p.fallbackChars()), nil
	}

	text, info, retryErr := p.readPDFFromTemp(data)
	var rerr *ResourceError
	if errors.As(retryErr, &rerr) {
		return Document{}, rerr
	}
	if retryErr == nil {
		return finish(text, info), nil
	}
	return degraded(salvagePDFText(data), PDFFailedTitle, retryErr, p.fallbackChars()), nil
}

// readPDFFromTemp writes data to a uniquely named file and decodes it from
// disk. The file is removed on every path.
func (p *Parser) readPDFFromTemp(data []byte) (string, string, error) {
	path := filepath.Join(p.tempDir(), "contentgrade-"+uuid.NewString()+".pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", "", &ResourceError{Op: "write temp pdf", Err: err}
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("remove temp pdf")
		}
	}()
	return openPDF(path)
}

func openPDF(path string) (text string, info string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf decoder: %v", r)
		}
	}()
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return pdfText(reader)
}

// readPDF recovers from decoder panics, which malformed cross-reference
// tables can trigger.
func readPDF(r io.ReaderAt, size int64) (text string, info string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf decoder: %v", rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", "", fmt.Errorf("read pdf: %w", err)
	}
	return pdfText(reader)
}

func pdfText(reader *pdf.Reader) (string, string, error) {
	var b strings.Builder
	var firstErr error
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", i, err)
			}
			continue
		}
		b.WriteString(t)
		b.WriteString("\n")
	}
	if b.Len() == 0 && firstErr != nil {
		return "", "", firstErr
	}
	info := reader.Trailer().Key("Info").Key("Title").Text()
	return b.String(), info, nil
}

var (
	showText  = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*T[jJ']`)
	showArray = regexp.MustCompile(`\[((?:\\.|[^\]])*)\]\s*TJ`)
	arrayStr  = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)
)

// salvagePDFText pulls literal strings out of uncompressed text-showing
// operators. When there are none it keeps printable runs of the raw bytes.
func salvagePDFText(data []byte) string {
	var parts []string
	for _, m := range showArray.FindAllSubmatch(data, -1) {
		var line strings.Builder
		for _, s := range arrayStr.FindAllSubmatch(m[1], -1) {
			line.WriteString(unescapePDFString(s[1]))
		}
		parts = append(parts, line.String())
	}
	for _, m := range showText.FindAllSubmatch(data, -1) {
		parts = append(parts, unescapePDFString(m[1]))
	}
	if text := strings.TrimSpace(strings.Join(parts, " ")); text != "" {
		return text
	}
	return printableRuns(data, 4)
}

func unescapePDFString(b []byte) string {
	var out strings.Builder
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != '\\' || i+1 == len(b) {
			out.WriteByte(c)
			continue
		}
		i++
		switch b[i] {
		case 'n':
			out.WriteByte('\n')
		case 'r', 't':
			out.WriteByte(' ')
		default:
			out.WriteByte(b[i])
		}
	}
	return out.String()
}

// printableRuns keeps runs of printable ASCII at least minLen bytes long.
func printableRuns(data []byte, minLen int) string {
	var out strings.Builder
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minLen {
			if out.Len() > 0 {
				out.WriteByte(' ')
			}
			out.Write(data[start:end])
		}
		start = -1
	}
	for i, c := range data {
		if c >= 0x20 && c < 0x7f {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))
	return out.String()
}
