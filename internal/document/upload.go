package document

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultExtensions are the upload types accepted when no allowlist is
// configured.
var DefaultExtensions = []string{
	".pdf", ".docx", ".doc", ".html", ".htm", ".txt", ".md", ".markdown", ".text", ".csv",
}

// DefaultMaxBytes is the upload size limit when none is configured.
const DefaultMaxBytes int64 = 10 << 20

// Limits bound what an upload may be.
type Limits struct {
	MaxBytes   int64
	Extensions []string
}

// ValidateUpload checks an upload's name and size before any bytes are
// decoded. The returned errors wrap ErrEmpty, ErrTooLarge or
// ErrUnsupportedType.
func ValidateUpload(filename string, size int64, lim Limits) error {
	if size <= 0 {
		return ErrEmpty
	}
	limit := lim.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if size > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, limit)
	}
	allowed := lim.Extensions
	if len(allowed) == 0 {
		allowed = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == strings.ToLower(a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
}

// FilenameFor synthesises a filename for content that arrived without one,
// such as a fetched URL, so Parse picks the right decoder.
func FilenameFor(contentType string) string {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "application/pdf":
		return "remote.pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "remote.docx"
	case "application/msword":
		return "remote.doc"
	case "text/html", "application/xhtml+xml":
		return "remote.html"
	default:
		return "remote.txt"
	}
}
