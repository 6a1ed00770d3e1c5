package llm

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
)

// Markers that select the stub's canned answer. The evaluator's system
// prompts contain them.
const (
	EvaluationMarker = "content quality evaluator"
	ComparisonMarker = "competitive content analyst"
)

// StubEvaluation is the canned evaluation answer.
const StubEvaluation = `{
  "overallScore": 72,
  "eeat": {
    "experience": {"score": 65, "analysis": "Some first-hand detail.", "recommendations": ["Add personal test results."]},
    "expertise": {"score": 78, "analysis": "Accurate terminology.", "recommendations": ["Cite primary sources."]},
    "authoritativeness": {"score": 70, "analysis": "Few external references.", "recommendations": ["Link to recognised authorities."]},
    "trustworthiness": {"score": 75, "analysis": "Claims are mostly sourced.", "recommendations": ["Add an author bio."]}
  },
  "helpfulContent": {
    "peopleFirst": {"score": 80, "analysis": "Written for readers.", "recommendations": []},
    "depth": {"score": 68, "analysis": "Covers the basics.", "recommendations": ["Expand the comparison section."]},
    "satisfaction": {"score": 70, "analysis": "Answers the main question.", "recommendations": []},
    "originality": {"score": 66, "analysis": "Limited unique insight.", "recommendations": ["Add original data."]}
  },
  "summary": "Solid article with room for more first-hand evidence.",
  "recommendations": ["Add first-hand experience.", "Strengthen sourcing."]
}`

// StubComparison is the canned comparison answer.
const StubComparison = `{
  "articles": [
    {"overallScore": 72, "eeatScore": 70, "helpfulContentScore": 74, "strengths": ["Clear structure"], "weaknesses": ["Thin sourcing"]},
    {"overallScore": 81, "eeatScore": 84, "helpfulContentScore": 78, "strengths": ["Original data"], "weaknesses": ["Long intro"]}
  ],
  "gaps": ["No original benchmarks"],
  "advantages": ["Better readability"],
  "recommendations": ["Publish test methodology"],
  "summary": "The competitor leads on evidence."
}`

// StubHandler serves an OpenAI-compatible API that answers with canned
// evaluation and comparison JSON. Calls counts chat completions.
type StubHandler struct {
	Model string
	Calls atomic.Int64
}

// NewStubHandler returns a StubHandler for model.
func NewStubHandler(model string) *StubHandler {
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	return &StubHandler{Model: model}
}

type stubRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (h *StubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/models"):
		writeJSON(w, map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": h.Model, "object": "model"}},
		})
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		h.Calls.Add(1)
		var req stubRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		sys := ""
		if len(req.Messages) > 0 {
			sys = req.Messages[0].Content
		}
		var content string
		switch {
		case strings.Contains(sys, ComparisonMarker):
			content = StubComparison
		case strings.Contains(sys, EvaluationMarker):
			content = StubEvaluation
		default:
			http.Error(w, "unexpected system prompt", http.StatusBadRequest)
			return
		}
		model := req.Model
		if model == "" {
			model = h.Model
		}
		writeJSON(w, map[string]any{
			"id":     "chatcmpl-stub",
			"object": "chat.completion",
			"model":  model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
