package document

import (
	"bytes"
	"errors"
	"unicode/utf16"
)

var (
	zipMagic = []byte("PK\x03\x04")
	errDOC   = errors.New("legacy .doc binary format is not decoded; showing salvaged text")
)

// parseDOC handles the pre-2007 Word format. Files that are really OOXML
// packages with a .doc name are decoded as DOCX; true binary documents are
// salvaged and flagged degraded.
func (p *Parser) parseDOC(data []byte) Document {
	if bytes.HasPrefix(data, zipMagic) {
		return p.parseDOCX(data)
	}
	salvage := utf16Runs(data, 4)
	if ascii := printableRuns(data, 4); len(ascii) > len(salvage) {
		salvage = ascii
	}
	return degraded(salvage, DocumentFailedTitle, errDOC, p.fallbackChars())
}

// utf16Runs collects little-endian UTF-16 runs of printable characters,
// which is how Word 97 stores most body text.
func utf16Runs(data []byte, minLen int) string {
	var out []rune
	var run []uint16
	flush := func() {
		if len(run) >= minLen {
			if len(out) > 0 {
				out = append(out, ' ')
			}
			out = append(out, utf16.Decode(run)...)
		}
		run = run[:0]
	}
	for i := 0; i+1 < len(data); i += 2 {
		u := uint16(data[i]) | uint16(data[i+1])<<8
		if (u >= 0x20 && u < 0x7f) || (u >= 0xa0 && u < 0x2000) {
			run = append(run, u)
			continue
		}
		flush()
	}
	flush()
	return string(out)
}
