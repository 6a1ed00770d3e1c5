package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/contentgrade/internal/evaluate"
)

const (
	barWidth   = 90.0
	barHeight  = 5.0
	labelWidth = 55.0
	lineHeight = 5.0
)

// PDF renders ev as an A4 report with score bars and a clickable list of
// broken links.
func PDF(w io.Writer, ev evaluate.Evaluation, meta Meta) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	heading := ev.Title
	if heading == "" {
		heading = "Content evaluation"
	}
	pdf.SetTitle(heading, true)
	pdf.SetCreator("contentgrade", true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 4, tr(footerLine(ev, meta)), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 4, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(heading), "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	if ev.URL != "" {
		pdf.WriteLinkString(lineHeight, tr(ev.URL), ev.URL)
		pdf.Ln(lineHeight + 1)
	}
	if ev.Keyword != "" {
		pdf.MultiCell(0, lineHeight, tr("Target keyword: "+ev.Keyword), "", "L", false)
	}
	pdf.Ln(3)

	section(pdf, "Scores")
	scoreBar(pdf, tr, "Overall", ev.OverallScore)
	scoreBar(pdf, tr, "E-E-A-T", ev.EEATScore())
	scoreBar(pdf, tr, "Helpful Content", ev.HelpfulContentScore())
	pdf.Ln(2)

	if ev.Summary != "" {
		section(pdf, "Summary")
		pdf.MultiCell(0, lineHeight, tr(ev.Summary), "", "L", false)
		pdf.Ln(2)
	}
	criteriaBlock(pdf, tr, "E-E-A-T", ordered(ev.EEAT, evaluate.EEATCriteria))
	criteriaBlock(pdf, tr, "Helpful Content", ordered(ev.HelpfulContent, evaluate.HelpfulContentCriteria))

	if len(ev.Recommendations) > 0 {
		section(pdf, "Recommendations")
		for i, r := range ev.Recommendations {
			pdf.MultiCell(0, lineHeight, tr(fmt.Sprintf("%d. %s", i+1, r)), "", "L", false)
		}
		pdf.Ln(2)
	}

	if lc := ev.LinkCheck; lc != nil {
		section(pdf, "Link audit")
		pdf.MultiCell(0, lineHeight, fmt.Sprintf("%d links checked: %d working, %d broken.",
			lc.TotalLinks, lc.WorkingLinks, lc.BrokenLinks), "", "L", false)
		for _, st := range lc.Broken() {
			pdf.SetTextColor(0, 0, 180)
			pdf.WriteLinkString(lineHeight, tr(st.URL), st.URL)
			pdf.SetTextColor(0, 0, 0)
			pdf.Write(lineHeight, tr("  ("+statusText(st)+")"))
			pdf.Ln(lineHeight + 1)
		}
	}

	if pdf.Err() {
		return fmt.Errorf("render pdf: %w", pdf.Error())
	}
	return pdf.Output(w)
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func scoreBar(pdf *gofpdf.Fpdf, tr func(string) string, label string, score int) {
	x, y := pdf.GetXY()
	pdf.CellFormat(labelWidth, barHeight+1, tr(label), "", 0, "L", false, 0, "")
	pdf.SetFillColor(230, 230, 230)
	pdf.Rect(x+labelWidth, y+0.5, barWidth, barHeight, "F")
	r, g, b := bandColor(score)
	pdf.SetFillColor(r, g, b)
	if score > 0 {
		pdf.Rect(x+labelWidth, y+0.5, barWidth*float64(score)/100, barHeight, "F")
	}
	pdf.SetXY(x+labelWidth+barWidth+3, y)
	pdf.CellFormat(0, barHeight+1, fmt.Sprintf("%d  %s", score, Rating(score)), "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func bandColor(score int) (int, int, int) {
	switch {
	case score >= 75:
		return 46, 160, 67
	case score >= 50:
		return 230, 160, 30
	default:
		return 200, 50, 50
	}
}

func criteriaBlock(pdf *gofpdf.Fpdf, tr func(string) string, title string, items []namedCriterion) {
	if len(items) == 0 {
		return
	}
	section(pdf, title)
	for _, c := range items {
		scoreBar(pdf, tr, c.Name, c.Score)
		if c.Analysis != "" {
			pdf.MultiCell(0, lineHeight, tr(c.Analysis), "", "L", false)
		}
		for _, r := range c.Recommendations {
			pdf.MultiCell(0, lineHeight, tr("- "+r), "", "L", false)
		}
		pdf.Ln(2)
	}
}

func footerLine(ev evaluate.Evaluation, meta Meta) string {
	digest := ev.ContentDigest
	if len(digest) > 12 {
		digest = digest[:12]
	}
	parts := []string{"model " + ev.Model}
	if meta.BaseURL != "" {
		parts = append(parts, meta.BaseURL)
	}
	parts = append(parts, "sha256 "+digest, ev.GeneratedAt.UTC().Format(time.RFC3339))
	return strings.Join(parts, " | ")
}
