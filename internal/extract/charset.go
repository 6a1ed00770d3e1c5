package extract

import (
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// DecodeHTML returns input converted to UTF-8. Valid UTF-8 is returned
// unchanged; otherwise the encoding is sniffed from the content type, a BOM
// or a <meta charset> declaration. Undecodable bytes are passed through.
func DecodeHTML(input []byte, contentType string) []byte {
	if utf8.Valid(input) {
		return input
	}
	enc, _, _ := charset.DetermineEncoding(input, contentType)
	if enc == nil {
		return input
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), input)
	if err != nil {
		return input
	}
	return out
}
