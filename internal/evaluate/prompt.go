package evaluate

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/contentgrade/internal/linkcheck"
	"github.com/hyperifyio/contentgrade/internal/llm"
)

// maxBrokenInPrompt caps how many broken links are listed for the model.
const maxBrokenInPrompt = 20

var evaluationSystem = "You are a " + llm.EvaluationMarker + " for web articles. " +
	"Score the article against Google's E-E-A-T guidelines (experience, expertise, authoritativeness, trustworthiness) " +
	"and the Helpful Content guidelines (peopleFirst, depth, satisfaction, originality). " +
	"Respond with strict JSON only, no narration, using this schema: " +
	`{"overallScore": int 0-100, ` +
	`"eeat": {"experience": C, "expertise": C, "authoritativeness": C, "trustworthiness": C}, ` +
	`"helpfulContent": {"peopleFirst": C, "depth": C, "satisfaction": C, "originality": C}, ` +
	`"summary": string, "recommendations": string[]} ` +
	`where C is {"score": int 0-100, "analysis": string, "recommendations": string[]}. ` +
	"Base every judgement on the article text only. Recommendations must be concrete edits."

var comparisonSystem = "You are a " + llm.ComparisonMarker + ". " +
	"Compare the primary article with each competitor using E-E-A-T and Helpful Content guidelines. " +
	"Respond with strict JSON only, no narration, using this schema: " +
	`{"articles": [{"overallScore": int 0-100, "eeatScore": int 0-100, "helpfulContentScore": int 0-100, "strengths": string[], "weaknesses": string[]}], ` +
	`"gaps": string[], "advantages": string[], "recommendations": string[], "summary": string}. ` +
	"List articles in the order given, primary first. Gaps are topics competitors cover that the primary misses; " +
	"advantages are where the primary is stronger."

func buildEvaluationPrompt(content, title, keyword string, lc *linkcheck.Result) string {
	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", title)
	}
	if keyword != "" {
		fmt.Fprintf(&sb, "Target keyword: %s\n", keyword)
	}
	if lc != nil {
		writeLinkAudit(&sb, lc)
	}
	sb.WriteString("\nArticle:\n\n")
	sb.WriteString(content)
	return sb.String()
}

func writeLinkAudit(sb *strings.Builder, lc *linkcheck.Result) {
	fmt.Fprintf(sb, "Link audit: %d links, %d working, %d broken.\n", lc.TotalLinks, lc.WorkingLinks, lc.BrokenLinks)
	for i, st := range lc.Broken() {
		if i == maxBrokenInPrompt {
			fmt.Fprintf(sb, "- and %d more\n", lc.BrokenLinks-maxBrokenInPrompt)
			break
		}
		switch {
		case st.Status != nil:
			fmt.Fprintf(sb, "- %s (HTTP %d)\n", st.URL, *st.Status)
		default:
			fmt.Fprintf(sb, "- %s (%s)\n", st.URL, st.Error)
		}
	}
}

func buildComparisonPrompt(articles []resolvedArticle, keyword string) string {
	var sb strings.Builder
	if keyword != "" {
		fmt.Fprintf(&sb, "Target keyword: %s\n", keyword)
	}
	for i, a := range articles {
		fmt.Fprintf(&sb, "\n=== %s", labelFor(i))
		if a.Title != "" {
			fmt.Fprintf(&sb, ": %s", a.Title)
		}
		sb.WriteString(" ===\n")
		if a.URL != "" {
			fmt.Fprintf(&sb, "URL: %s\n", a.URL)
		}
		sb.WriteString(a.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func labelFor(i int) string {
	if i == 0 {
		return "Primary article"
	}
	return fmt.Sprintf("Competitor %d", i)
}
