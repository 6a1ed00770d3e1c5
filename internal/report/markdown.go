package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/contentgrade/internal/evaluate"
	"github.com/hyperifyio/contentgrade/internal/linkcheck"
)

// Markdown renders ev as a Markdown report ending in a reproducibility
// footer.
func Markdown(ev evaluate.Evaluation, meta Meta) string {
	var b strings.Builder
	heading := ev.Title
	if heading == "" {
		heading = "Content evaluation"
	}
	fmt.Fprintf(&b, "# %s\n\n", heading)
	if ev.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n\n", ev.URL)
	}
	if ev.Keyword != "" {
		fmt.Fprintf(&b, "Target keyword: %s\n\n", ev.Keyword)
	}

	b.WriteString("## Scores\n\n")
	b.WriteString("| Area | Score | Rating |\n|---|---:|---|\n")
	fmt.Fprintf(&b, "| Overall | %d | %s |\n", ev.OverallScore, Rating(ev.OverallScore))
	fmt.Fprintf(&b, "| E-E-A-T | %d | %s |\n", ev.EEATScore(), Rating(ev.EEATScore()))
	fmt.Fprintf(&b, "| Helpful Content | %d | %s |\n\n", ev.HelpfulContentScore(), Rating(ev.HelpfulContentScore()))

	if ev.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(ev.Summary)
		b.WriteString("\n\n")
	}
	writeCriteria(&b, "E-E-A-T", ordered(ev.EEAT, evaluate.EEATCriteria))
	writeCriteria(&b, "Helpful Content", ordered(ev.HelpfulContent, evaluate.HelpfulContentCriteria))

	if len(ev.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for i, r := range ev.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
		b.WriteString("\n")
	}
	if ev.LinkCheck != nil {
		writeLinkAudit(&b, *ev.LinkCheck)
	}
	return appendFooter(b.String(), ev, meta)
}

func writeCriteria(b *strings.Builder, section string, items []namedCriterion) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", section)
	for _, c := range items {
		fmt.Fprintf(b, "### %s: %d/100\n\n", c.Name, c.Score)
		if c.Analysis != "" {
			b.WriteString(c.Analysis)
			b.WriteString("\n\n")
		}
		for _, r := range c.Recommendations {
			fmt.Fprintf(b, "- %s\n", r)
		}
		if len(c.Recommendations) > 0 {
			b.WriteString("\n")
		}
	}
}

func writeLinkAudit(b *strings.Builder, lc linkcheck.Result) {
	b.WriteString("## Link audit\n\n")
	fmt.Fprintf(b, "%d links checked: %d working, %d broken.\n\n", lc.TotalLinks, lc.WorkingLinks, lc.BrokenLinks)
	broken := lc.Broken()
	if len(broken) == 0 {
		return
	}
	b.WriteString("| Link | Status |\n|---|---|\n")
	for _, st := range broken {
		fmt.Fprintf(b, "| [%s](%s) | %s |\n", escapeCell(st.URL), st.URL, statusText(st))
	}
	b.WriteString("\n")
}

func statusText(st linkcheck.Status) string {
	if st.Status != nil {
		return fmt.Sprintf("HTTP %d", *st.Status)
	}
	if st.Error != "" {
		return escapeCell(st.Error)
	}
	return "unreachable"
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

// appendFooter records what produced the report so it can be reproduced.
func appendFooter(markdown string, ev evaluate.Evaluation, meta Meta) string {
	var b strings.Builder
	b.WriteString(markdown)
	b.WriteString("---\n")
	b.WriteString("Reproducibility: model=")
	b.WriteString(strings.TrimSpace(ev.Model))
	b.WriteString("; llm_base_url=")
	b.WriteString(strings.TrimSpace(meta.BaseURL))
	b.WriteString("; content_sha256=")
	b.WriteString(ev.ContentDigest)
	fmt.Fprintf(&b, "; truncated=%t; llm_cache=%t; generated=%s\n",
		ev.Truncated, meta.LLMCache, ev.GeneratedAt.UTC().Format(time.RFC3339))
	return b.String()
}

// ComparisonMarkdown renders cmp as a Markdown report.
func ComparisonMarkdown(cmp evaluate.Comparison) string {
	var b strings.Builder
	b.WriteString("# Competitive comparison\n\n")
	if cmp.Keyword != "" {
		fmt.Fprintf(&b, "Target keyword: %s\n\n", cmp.Keyword)
	}
	b.WriteString("| Article | Overall | E-E-A-T | Helpful Content |\n|---|---:|---:|---:|\n")
	for _, a := range cmp.Articles {
		name := a.Label
		if a.Title != "" {
			name += ": " + a.Title
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", escapeCell(name), a.OverallScore, a.EEATScore, a.HelpfulContentScore)
	}
	b.WriteString("\n")
	if cmp.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(cmp.Summary)
		b.WriteString("\n\n")
	}
	writeList(&b, "Content gaps", cmp.Gaps)
	writeList(&b, "Advantages", cmp.Advantages)
	writeList(&b, "Recommendations", cmp.Recommendations)
	for _, a := range cmp.Articles {
		if len(a.Strengths) == 0 && len(a.Weaknesses) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", a.Label)
		for _, s := range a.Strengths {
			fmt.Fprintf(&b, "- Strength: %s\n", s)
		}
		for _, s := range a.Weaknesses {
			fmt.Fprintf(&b, "- Weakness: %s\n", s)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "---\nReproducibility: model=%s; generated=%s\n", cmp.Model, cmp.GeneratedAt.UTC().Format(time.RFC3339))
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}
