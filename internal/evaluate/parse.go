package evaluate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// score accepts 72, 72.4 and "72" and rounds to an int in [0,100].
type score int

func (s *score) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	raw = strings.TrimSuffix(raw, "%")
	if i := strings.IndexByte(raw, '/'); i > 0 {
		raw = raw[:i]
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("score %s: %w", b, err)
	}
	*s = score(clamp(int(math.Round(f))))
	return nil
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

type wireCriterion struct {
	Score           score    `json:"score"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
}

type wireEvaluation struct {
	OverallScore    *score                   `json:"overallScore"`
	EEAT            map[string]wireCriterion `json:"eeat"`
	HelpfulContent  map[string]wireCriterion `json:"helpfulContent"`
	Summary         string                   `json:"summary"`
	Recommendations []string                 `json:"recommendations"`
}

type wireArticle struct {
	OverallScore        score    `json:"overallScore"`
	EEATScore           score    `json:"eeatScore"`
	HelpfulContentScore score    `json:"helpfulContentScore"`
	Strengths           []string `json:"strengths"`
	Weaknesses          []string `json:"weaknesses"`
}

type wireComparison struct {
	Articles        []wireArticle `json:"articles"`
	Gaps            []string      `json:"gaps"`
	Advantages      []string      `json:"advantages"`
	Recommendations []string      `json:"recommendations"`
	Summary         string        `json:"summary"`
}

// extractJSON returns the outermost JSON object in a model answer, tolerating
// code fences and leading prose.
func extractJSON(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object", ErrMalformedResponse)
	}
	return []byte(s[start : end+1]), nil
}

func decode(raw string, v any) error {
	b, err := extractJSON(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// parseEvaluation validates a model answer and fills the scored fields of ev.
func parseEvaluation(raw string, ev *Evaluation) error {
	var w wireEvaluation
	if err := decode(raw, &w); err != nil {
		return err
	}
	ev.EEAT = normalizeCriteria(w.EEAT)
	ev.HelpfulContent = normalizeCriteria(w.HelpfulContent)
	if len(ev.EEAT) == 0 || len(ev.HelpfulContent) == 0 {
		return fmt.Errorf("%w: missing criteria", ErrMalformedResponse)
	}
	if w.OverallScore != nil {
		ev.OverallScore = int(*w.OverallScore)
	} else {
		all := make(map[string]Criterion, len(ev.EEAT)+len(ev.HelpfulContent))
		for k, c := range ev.EEAT {
			all["e:"+k] = c
		}
		for k, c := range ev.HelpfulContent {
			all["h:"+k] = c
		}
		ev.OverallScore = meanScore(all)
	}
	ev.Summary = strings.TrimSpace(w.Summary)
	ev.Recommendations = cleanList(w.Recommendations)
	return nil
}

// parseComparison validates a model answer for want articles.
func parseComparison(raw string, want int, cmp *Comparison) error {
	var w wireComparison
	if err := decode(raw, &w); err != nil {
		return err
	}
	if len(w.Articles) < want {
		return fmt.Errorf("%w: %d of %d articles scored", ErrMalformedResponse, len(w.Articles), want)
	}
	cmp.Articles = make([]ArticleScore, want)
	for i := 0; i < want; i++ {
		a := w.Articles[i]
		cmp.Articles[i] = ArticleScore{
			Label:               labelFor(i),
			OverallScore:        int(a.OverallScore),
			EEATScore:           int(a.EEATScore),
			HelpfulContentScore: int(a.HelpfulContentScore),
			Strengths:           cleanList(a.Strengths),
			Weaknesses:          cleanList(a.Weaknesses),
		}
	}
	cmp.Gaps = cleanList(w.Gaps)
	cmp.Advantages = cleanList(w.Advantages)
	cmp.Recommendations = cleanList(w.Recommendations)
	cmp.Summary = strings.TrimSpace(w.Summary)
	return nil
}

// criterionAliases maps folded key spellings onto canonical criterion keys.
var criterionAliases = map[string]string{
	"experience":         "experience",
	"expertise":          "expertise",
	"authoritativeness":  "authoritativeness",
	"authority":          "authoritativeness",
	"trustworthiness":    "trustworthiness",
	"trust":              "trustworthiness",
	"peoplefirst":        "peopleFirst",
	"userfirst":          "peopleFirst",
	"peoplefirstcontent": "peopleFirst",
	"depth":              "depth",
	"depthandvalue":      "depth",
	"satisfaction":       "satisfaction",
	"usersatisfaction":   "satisfaction",
	"originality":        "originality",
}

func foldKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func normalizeCriteria(in map[string]wireCriterion) map[string]Criterion {
	out := make(map[string]Criterion, len(in))
	for k, c := range in {
		key := strings.TrimSpace(k)
		if canon, ok := criterionAliases[foldKey(k)]; ok {
			key = canon
		}
		if key == "" {
			continue
		}
		out[key] = Criterion{
			Score:           int(c.Score),
			Analysis:        strings.TrimSpace(c.Analysis),
			Recommendations: cleanList(c.Recommendations),
		}
	}
	return out
}

// cleanList trims items, drops empties and duplicates, and never returns nil.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
