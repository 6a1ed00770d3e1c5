// Package report renders evaluations and comparisons for export.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/hyperifyio/contentgrade/internal/evaluate"
)

// Format is an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

var ErrUnknownFormat = errors.New("unknown export format")

// Meta describes how a result was produced. It goes into the
// reproducibility footer.
type Meta struct {
	BaseURL   string
	LLMCache  bool
	HTTPCache bool
}

// ParseFormat accepts json, markdown (or md) and pdf.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Extension is the file extension for f, with the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatPDF:
		return ".pdf"
	default:
		return ".json"
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Filename suggests a download name for ev in format f.
func Filename(ev evaluate.Evaluation, f Format) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(ev.Title), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = "evaluation"
	}
	return "contentgrade-" + slug + f.Extension()
}

// Write renders ev in format f.
func Write(w io.Writer, f Format, ev evaluate.Evaluation, meta Meta) error {
	switch f {
	case FormatJSON:
		return JSON(w, ev)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(ev, meta))
		return err
	case FormatPDF:
		return PDF(w, ev, meta)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Rating names a score band.
func Rating(score int) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 75:
		return "Good"
	case score >= 50:
		return "Needs work"
	default:
		return "Poor"
	}
}

// criterionLabels are display names for the known criterion keys.
var criterionLabels = map[string]string{
	"experience":        "Experience",
	"expertise":         "Expertise",
	"authoritativeness": "Authoritativeness",
	"trustworthiness":   "Trustworthiness",
	"peopleFirst":       "People-first",
	"depth":             "Depth and value",
	"satisfaction":      "Satisfaction",
	"originality":       "Originality",
}

func labelOf(key string) string {
	if l, ok := criterionLabels[key]; ok {
		return l
	}
	return key
}

type namedCriterion struct {
	Name string
	evaluate.Criterion
}

// ordered lists the known criteria first, in order, then any extra keys.
func ordered(m map[string]evaluate.Criterion, known []string) []namedCriterion {
	out := make([]namedCriterion, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range known {
		if c, ok := m[k]; ok {
			out = append(out, namedCriterion{Name: labelOf(k), Criterion: c})
			seen[k] = true
		}
	}
	var extra []string
	for k := range m {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, namedCriterion{Name: labelOf(k), Criterion: m[k]})
	}
	return out
}
