package evaluate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/contentgrade/internal/cache"
	"github.com/hyperifyio/contentgrade/internal/document"
	"github.com/hyperifyio/contentgrade/internal/linkcheck"
	"github.com/hyperifyio/contentgrade/internal/llm"
)

const article = "# How to Choose a Widget\n\nWe tested twelve widgets over three months. See https://example.com/lab for the data."

// fakeClient answers from a queue and records requests.
type fakeClient struct {
	mu       sync.Mutex
	answers  []string
	errs     []error
	requests []openai.ChatCompletionRequest
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	if n < len(f.errs) && f.errs[n] != nil {
		return openai.ChatCompletionResponse{}, f.errs[n]
	}
	if n >= len(f.answers) {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.answers[n]}},
	}}, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClient) userPrompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i].Messages[1].Content
}

func withFake(f *fakeClient) llm.Factory {
	return func(string) llm.Client { return f }
}

func noSleep(t *testing.T) {
	t.Helper()
	prev := sleep
	sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { sleep = prev })
}

func newStubEvaluator(t *testing.T) (*Evaluator, *llm.StubHandler) {
	t.Helper()
	stub := llm.NewStubHandler("stub-model")
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return &Evaluator{Clients: llm.NewFactory(srv.URL+"/v1", nil), Model: "stub-model"}, stub
}

func TestEvaluate_AgainstStubServer(t *testing.T) {
	e, stub := newStubEvaluator(t)
	ev, err := e.Evaluate(context.Background(), Request{Content: article, Keyword: "widgets", APIKey: "k"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ev.OverallScore != 72 || ev.Model != "stub-model" || ev.ID == "" {
		t.Fatalf("unexpected evaluation %+v", ev)
	}
	for _, k := range EEATCriteria {
		if _, ok := ev.EEAT[k]; !ok {
			t.Fatalf("missing E-E-A-T criterion %q", k)
		}
	}
	for _, k := range HelpfulContentCriteria {
		if _, ok := ev.HelpfulContent[k]; !ok {
			t.Fatalf("missing helpful-content criterion %q", k)
		}
	}
	if ev.Title != "How to Choose a Widget" {
		t.Fatalf("title = %q", ev.Title)
	}
	if ev.ContentDigest != Digest(article) || ev.Truncated || ev.LinkCheck != nil {
		t.Fatalf("unexpected metadata %+v", ev)
	}
	if ev.EEATScore() != 72 || ev.HelpfulContentScore() != 71 {
		t.Fatalf("means = %d %d", ev.EEATScore(), ev.HelpfulContentScore())
	}
	if stub.Calls.Load() != 1 {
		t.Fatalf("calls = %d", stub.Calls.Load())
	}
}

func TestEvaluate_InputErrors(t *testing.T) {
	e := &Evaluator{Clients: withFake(&fakeClient{})}
	if _, err := e.Evaluate(context.Background(), Request{Content: article}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := e.Evaluate(context.Background(), Request{Content: "  ", APIKey: "k"}); !errors.Is(err, ErrMissingContent) {
		t.Fatalf("expected ErrMissingContent, got %v", err)
	}
	e.DefaultAPIKey = "server-key"
	if _, err := e.Evaluate(context.Background(), Request{URL: "https://example.com"}); !errors.Is(err, ErrMissingContent) {
		t.Fatalf("URL without a source must report missing content, got %v", err)
	}
}

func TestEvaluate_CachesValidAnswers(t *testing.T) {
	e, stub := newStubEvaluator(t)
	e.Cache = &cache.LLMCache{Dir: t.TempDir()}
	req := Request{Content: article, APIKey: "k"}
	first, err := e.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := e.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if stub.Calls.Load() != 1 {
		t.Fatalf("expected cached second call, got %d calls", stub.Calls.Load())
	}
	if second.OverallScore != first.OverallScore || second.ID == first.ID {
		t.Fatalf("cached evaluation should keep scores but get a new id")
	}
}

func TestEvaluate_TolerantParsing(t *testing.T) {
	answer := "Here you go:\n```json\n" + `{
  "eeat": {"Experience": {"score": "80", "analysis": " good "}, "Authority": {"score": 140}},
  "helpfulContent": {"people_first": {"score": 59.6, "recommendations": ["Add FAQ", "Add FAQ", " "]}},
  "summary": " ok ",
  "recommendations": null
}` + "\n```"
	f := &fakeClient{answers: []string{answer}}
	e := &Evaluator{Clients: withFake(f), DefaultAPIKey: "k"}
	ev, err := e.Evaluate(context.Background(), Request{Content: article})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ev.EEAT["experience"].Score != 80 || ev.EEAT["experience"].Analysis != "good" {
		t.Fatalf("experience = %+v", ev.EEAT["experience"])
	}
	if ev.EEAT["authoritativeness"].Score != 100 {
		t.Fatalf("score not clamped: %+v", ev.EEAT)
	}
	pf := ev.HelpfulContent["peopleFirst"]
	if pf.Score != 60 || len(pf.Recommendations) != 1 {
		t.Fatalf("peopleFirst = %+v", pf)
	}
	// No overall score given: mean of 80, 100 and 60.
	if ev.OverallScore != 80 {
		t.Fatalf("overall = %d", ev.OverallScore)
	}
	if ev.Summary != "ok" || ev.Recommendations == nil {
		t.Fatalf("summary=%q recs=%v", ev.Summary, ev.Recommendations)
	}
	req := f.requests[0]
	if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Fatalf("expected JSON response format")
	}
	if !strings.Contains(req.Messages[0].Content, llm.EvaluationMarker) {
		t.Fatalf("system prompt lacks marker")
	}
}

func TestEvaluate_RetriesMalformedThenSucceeds(t *testing.T) {
	noSleep(t)
	f := &fakeClient{answers: []string{"not json at all", llm.StubEvaluation}}
	e := &Evaluator{Clients: withFake(f), DefaultAPIKey: "k"}
	ev, err := e.Evaluate(context.Background(), Request{Content: article})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if f.calls() != 2 || ev.OverallScore != 72 {
		t.Fatalf("calls=%d score=%d", f.calls(), ev.OverallScore)
	}
}

func TestEvaluate_FailureModes(t *testing.T) {
	noSleep(t)
	cases := []struct {
		name  string
		f     *fakeClient
		want  error
		calls int
	}{
		{"empty", &fakeClient{answers: []string{"", ""}}, ErrEmptyResponse, 2},
		{"malformed", &fakeClient{answers: []string{"{}", `{"eeat":{}}`}}, ErrMalformedResponse, 2},
		{"unauthorized", &fakeClient{errs: []error{&openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}}}, nil, 1},
		{"rate limited", &fakeClient{errs: []error{&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}}, answers: []string{"", llm.StubEvaluation}}, nil, 2},
	}
	for _, tc := range cases {
		e := &Evaluator{Clients: withFake(tc.f), DefaultAPIKey: "k"}
		_, err := e.Evaluate(context.Background(), Request{Content: article})
		switch {
		case tc.name == "rate limited":
			if err != nil {
				t.Fatalf("%s: expected success after retry, got %v", tc.name, err)
			}
		case tc.want != nil:
			if !errors.Is(err, tc.want) {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
			}
		default:
			var apiErr *openai.APIError
			if !errors.As(err, &apiErr) || !errors.Is(err, ErrModelCall) {
				t.Fatalf("%s: expected API error, got %v", tc.name, err)
			}
		}
		if tc.f.calls() != tc.calls {
			t.Fatalf("%s: calls = %d, want %d", tc.name, tc.f.calls(), tc.calls)
		}
	}
}

func TestEvaluate_LinkAuditIsSharedWithModel(t *testing.T) {
	links := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer links.Close()

	f := &fakeClient{answers: []string{llm.StubEvaluation}}
	e := &Evaluator{Clients: withFake(f), DefaultAPIKey: "k", Checker: linkcheck.New()}
	content := fmt.Sprintf("Sources: %s/ok and %s/missing", links.URL, links.URL)
	ev, err := e.Evaluate(context.Background(), Request{Content: content, CheckLinks: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ev.LinkCheck == nil || ev.LinkCheck.TotalLinks != 2 || ev.LinkCheck.BrokenLinks != 1 {
		t.Fatalf("link check = %+v", ev.LinkCheck)
	}
	prompt := f.userPrompt(0)
	if !strings.Contains(prompt, "Link audit: 2 links, 1 working, 1 broken.") ||
		!strings.Contains(prompt, links.URL+"/missing (HTTP 404)") {
		t.Fatalf("prompt lacks audit:\n%s", prompt)
	}
}

type fakeSource struct {
	docs map[string]document.Document
	err  error
}

func (s *fakeSource) Load(_ context.Context, rawURL string) (document.Document, error) {
	if s.err != nil {
		return document.Document{}, s.err
	}
	doc, ok := s.docs[rawURL]
	if !ok {
		return document.Document{}, errors.New("not found")
	}
	return doc, nil
}

func TestEvaluate_LoadsURLOnlyRequests(t *testing.T) {
	heading := "Widget Field Guide"
	src := &fakeSource{docs: map[string]document.Document{
		"https://example.com/guide": {Text: "Widgets explained in depth.", Title: &heading, Links: []string{}},
	}}
	f := &fakeClient{answers: []string{llm.StubEvaluation}}
	e := &Evaluator{Clients: withFake(f), DefaultAPIKey: "k", Source: src, Checker: linkcheck.New()}
	ev, err := e.Evaluate(context.Background(), Request{URL: "https://example.com/guide", CheckLinks: true})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ev.Title != heading || ev.URL != "https://example.com/guide" {
		t.Fatalf("unexpected evaluation %+v", ev)
	}
	if ev.LinkCheck == nil || ev.LinkCheck.TotalLinks != 0 {
		t.Fatalf("expected empty audit of the page links, got %+v", ev.LinkCheck)
	}
	if !strings.Contains(f.userPrompt(0), "Widgets explained in depth.") {
		t.Fatalf("page text missing from prompt")
	}

	src.err = errors.New("boom")
	if _, err := e.Evaluate(context.Background(), Request{URL: "https://example.com/guide"}); err == nil {
		t.Fatal("expected load error")
	}
}

func TestEvaluate_TruncatesToContextWindow(t *testing.T) {
	f := &fakeClient{answers: []string{llm.StubEvaluation}}
	e := &Evaluator{Clients: withFake(f), DefaultAPIKey: "k", Model: "gpt-oss-20b", MaxOutputTokens: 1000}
	long := strings.Repeat("Widgets are useful. ", 5000)
	ev, err := e.Evaluate(context.Background(), Request{Content: long})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !ev.Truncated || ev.ContentDigest != Digest(strings.TrimSpace(long)) {
		t.Fatalf("expected truncation flag and digest of the full content")
	}
	if n := len(f.userPrompt(0)); n >= len(long) || n > 4096*4 {
		t.Fatalf("prompt not truncated: %d bytes", n)
	}
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *countingObserver) ObserveLLMCall(kind, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, kind+":"+outcome)
}

func TestCompare_AgainstStubServer(t *testing.T) {
	e, _ := newStubEvaluator(t)
	obs := &countingObserver{}
	e.Observer = obs
	cmp, err := e.Compare(context.Background(), CompareRequest{
		Primary:     Article{Content: article},
		Competitors: []Article{{Title: "Rival Guide", Content: "Our lab measured forty widgets."}},
		Keyword:     "widgets",
		APIKey:      "k",
	})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(cmp.Articles) != 2 {
		t.Fatalf("articles = %+v", cmp.Articles)
	}
	p, c := cmp.Articles[0], cmp.Articles[1]
	if p.Label != "Primary article" || p.Title != "How to Choose a Widget" || p.OverallScore != 72 {
		t.Fatalf("primary = %+v", p)
	}
	if c.Label != "Competitor 1" || c.Title != "Rival Guide" || c.EEATScore != 84 {
		t.Fatalf("competitor = %+v", c)
	}
	if len(cmp.Gaps) != 1 || cmp.Summary == "" || cmp.Keyword != "widgets" {
		t.Fatalf("unexpected comparison %+v", cmp)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "compare:ok" {
		t.Fatalf("observer saw %v", obs.outcomes)
	}
}

func TestCompare_Validation(t *testing.T) {
	noSleep(t)
	e := &Evaluator{Clients: withFake(&fakeClient{}), DefaultAPIKey: "k"}
	ctx := context.Background()
	if _, err := e.Compare(ctx, CompareRequest{Primary: Article{Content: article}}); !errors.Is(err, ErrNoCompetitors) {
		t.Fatalf("expected ErrNoCompetitors, got %v", err)
	}
	many := make([]Article, MaxCompetitors+1)
	if _, err := e.Compare(ctx, CompareRequest{Primary: Article{Content: article}, Competitors: many}); !errors.Is(err, ErrTooManyCompetitors) {
		t.Fatalf("expected ErrTooManyCompetitors, got %v", err)
	}
	_, err := e.Compare(ctx, CompareRequest{Primary: Article{Content: article}, Competitors: []Article{{Title: "empty"}}})
	if !errors.Is(err, ErrMissingContent) || !strings.Contains(err.Error(), "competitor 1") {
		t.Fatalf("expected missing competitor content, got %v", err)
	}

	short := `{"articles":[{"overallScore":50}],"summary":"x"}`
	f := &fakeClient{answers: []string{short, short}}
	e.Clients = withFake(f)
	_, err = e.Compare(ctx, CompareRequest{Primary: Article{Content: article}, Competitors: []Article{{Content: "other"}}})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestCompare_LoadsCompetitorURLs(t *testing.T) {
	heading := "Remote Rival"
	src := &fakeSource{docs: map[string]document.Document{
		"https://rival.example/post": {Text: "Rival text about widgets.", Title: &heading},
	}}
	f := &fakeClient{answers: []string{llm.StubComparison}}
	e := &Evaluator{Clients: withFake(f), DefaultAPIKey: "k", Source: src}
	cmp, err := e.Compare(context.Background(), CompareRequest{
		Primary:     Article{Content: article},
		Competitors: []Article{{URL: "https://rival.example/post"}},
	})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Articles[1].Title != heading || cmp.Articles[1].URL != "https://rival.example/post" {
		t.Fatalf("competitor = %+v", cmp.Articles[1])
	}
	prompt := f.userPrompt(0)
	if !strings.Contains(prompt, "=== Competitor 1: Remote Rival ===") || !strings.Contains(prompt, "Rival text about widgets.") {
		t.Fatalf("prompt:\n%s", prompt)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"Sure! {\"a\":{\"b\":2}} Thanks.", `{"a":{"b":2}}`, true},
		{"no object", "", false},
		{"} backwards {", "", false},
	}
	for _, c := range cases {
		got, err := extractJSON(c.in)
		if (err == nil) != c.ok {
			t.Fatalf("extractJSON(%q) err=%v", c.in, err)
		}
		if c.ok && string(got) != c.want {
			t.Fatalf("extractJSON(%q) = %s, want %s", c.in, got, c.want)
		}
		if !c.ok && !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("expected ErrMalformedResponse, got %v", err)
		}
	}
}
