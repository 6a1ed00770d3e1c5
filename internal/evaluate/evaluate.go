// Package evaluate scores articles against the E-E-A-T and Helpful Content
// rubrics with an OpenAI-compatible chat model, and compares an article
// with its competitors.
package evaluate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/contentgrade/internal/budget"
	"github.com/hyperifyio/contentgrade/internal/cache"
	"github.com/hyperifyio/contentgrade/internal/document"
	"github.com/hyperifyio/contentgrade/internal/linkcheck"
	"github.com/hyperifyio/contentgrade/internal/llm"
	"github.com/hyperifyio/contentgrade/internal/title"
)

const (
	DefaultModel           = "gpt-4o"
	DefaultMaxOutputTokens = 2000
	DefaultMaxAttempts     = 2
	MaxCompetitors         = 5

	// minArticleTokens is the smallest share each compared article gets.
	minArticleTokens = 256
)

var (
	ErrMissingContent     = errors.New("content is required")
	ErrMissingAPIKey      = errors.New("API key is required")
	ErrNoCompetitors      = errors.New("at least one competitor is required")
	ErrTooManyCompetitors = fmt.Errorf("at most %d competitors are allowed", MaxCompetitors)
	ErrModelCall          = errors.New("model call failed")
	ErrEmptyResponse      = errors.New("model returned no content")
	ErrMalformedResponse  = errors.New("model returned malformed JSON")
)

// Source loads an article given only by URL.
type Source interface {
	Load(ctx context.Context, rawURL string) (document.Document, error)
}

// Observer is told about every model call. Outcome is "ok", "cached" or
// "error".
type Observer interface {
	ObserveLLMCall(kind string, outcome string, d time.Duration)
}

// Evaluator runs evaluations and comparisons. Clients is required; the
// other fields are optional.
type Evaluator struct {
	Clients llm.Factory
	Model   string
	// DefaultAPIKey is used when a request carries none.
	DefaultAPIKey   string
	MaxOutputTokens int
	// MaxAttempts includes the first call.
	MaxAttempts int
	Cache       *cache.LLMCache
	Checker     *linkcheck.Checker
	Source      Source
	Observer    Observer
}

// sleep is replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Evaluate scores one article. When req.CheckLinks is set the article's
// links are probed first and the audit is shared with the model.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Evaluation, error) {
	apiKey, err := e.apiKey(req.APIKey)
	if err != nil {
		return Evaluation{}, err
	}
	content := strings.TrimSpace(req.Content)
	heading := strings.TrimSpace(req.Title)
	var found []string
	if content == "" && req.URL != "" && e.Source != nil {
		doc, err := e.Source.Load(ctx, req.URL)
		if err != nil {
			return Evaluation{}, err
		}
		content = strings.TrimSpace(doc.Text)
		found = doc.Links
		if heading == "" {
			heading = doc.TitleOr("")
		}
	}
	if content == "" {
		return Evaluation{}, ErrMissingContent
	}
	if heading == "" {
		heading, _ = title.Extract(content)
	}

	var audit *linkcheck.Result
	if req.CheckLinks && e.Checker != nil {
		audit = e.checkLinks(ctx, content, found, req.URL)
	}

	model := e.model()
	overhead := budget.EstimatePromptTokens(evaluationSystem, buildEvaluationPrompt("", heading, req.Keyword, audit), nil)
	body, truncated := budget.TruncateToFit(content, model, e.maxOutput(), overhead)
	user := buildEvaluationPrompt(body, heading, req.Keyword, audit)

	ev := Evaluation{
		ID:            uuid.NewString(),
		Title:         heading,
		Keyword:       strings.TrimSpace(req.Keyword),
		URL:           req.URL,
		Model:         model,
		GeneratedAt:   time.Now().UTC(),
		ContentDigest: Digest(content),
		Truncated:     truncated,
		LinkCheck:     audit,
	}
	err = e.complete(ctx, "evaluate", apiKey, evaluationSystem, user, func(raw string) error {
		return parseEvaluation(raw, &ev)
	})
	if err != nil {
		return Evaluation{}, err
	}
	log.Info().Str("id", ev.ID).Int("score", ev.OverallScore).Bool("truncated", truncated).Msg("article evaluated")
	return ev, nil
}

func (e *Evaluator) checkLinks(ctx context.Context, content string, found []string, pageURL string) *linkcheck.Result {
	chk := *e.Checker
	if u, err := url.Parse(pageURL); err == nil && u.IsAbs() {
		chk.BaseURL = u
	}
	var res linkcheck.Result
	if found != nil {
		res = chk.CheckURLs(ctx, found)
	} else {
		res = chk.Check(ctx, content)
	}
	return &res
}

type resolvedArticle struct {
	Title   string
	URL     string
	Content string
}

// Compare scores the primary article against each competitor.
func (e *Evaluator) Compare(ctx context.Context, req CompareRequest) (Comparison, error) {
	if len(req.Competitors) == 0 {
		return Comparison{}, ErrNoCompetitors
	}
	if len(req.Competitors) > MaxCompetitors {
		return Comparison{}, ErrTooManyCompetitors
	}
	apiKey, err := e.apiKey(req.APIKey)
	if err != nil {
		return Comparison{}, err
	}
	articles, err := e.resolve(ctx, append([]Article{req.Primary}, req.Competitors...))
	if err != nil {
		return Comparison{}, err
	}

	model := e.model()
	overhead := budget.EstimatePromptTokens(comparisonSystem, buildComparisonPrompt(nil, req.Keyword), nil)
	share := budget.SplitBudget(budget.RemainingContextWithHeadroom(model, e.maxOutput(), overhead), len(articles), minArticleTokens)
	for i := range articles {
		articles[i].Content, _ = budget.TruncateRunes(articles[i].Content, share*budget.CharsPerToken)
	}
	user := buildComparisonPrompt(articles, req.Keyword)

	cmp := Comparison{
		ID:          uuid.NewString(),
		Keyword:     strings.TrimSpace(req.Keyword),
		Model:       model,
		GeneratedAt: time.Now().UTC(),
	}
	err = e.complete(ctx, "compare", apiKey, comparisonSystem, user, func(raw string) error {
		return parseComparison(raw, len(articles), &cmp)
	})
	if err != nil {
		return Comparison{}, err
	}
	for i, a := range articles {
		cmp.Articles[i].Title = a.Title
		cmp.Articles[i].URL = a.URL
	}
	return cmp, nil
}

// resolve fills in URL-only articles concurrently.
func (e *Evaluator) resolve(ctx context.Context, in []Article) ([]resolvedArticle, error) {
	out := make([]resolvedArticle, len(in))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range in {
		out[i] = resolvedArticle{Title: strings.TrimSpace(a.Title), URL: a.URL, Content: strings.TrimSpace(a.Content)}
		if out[i].Content != "" || a.URL == "" || e.Source == nil {
			continue
		}
		g.Go(func() error {
			doc, err := e.Source.Load(gctx, a.URL)
			if err != nil {
				return fmt.Errorf("%s: %w", strings.ToLower(labelFor(i)), err)
			}
			out[i].Content = strings.TrimSpace(doc.Text)
			if out[i].Title == "" {
				out[i].Title = doc.TitleOr("")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Content == "" {
			return nil, fmt.Errorf("%s: %w", strings.ToLower(labelFor(i)), ErrMissingContent)
		}
		if out[i].Title == "" {
			out[i].Title, _ = title.Extract(out[i].Content)
		}
	}
	return out, nil
}

// complete asks the model, validating the answer with parse. Valid answers
// are cached by model and prompt. Transient failures and malformed answers
// are retried up to MaxAttempts.
func (e *Evaluator) complete(ctx context.Context, kind, apiKey, system, user string, parse func(string) error) error {
	model := e.model()
	key := cache.KeyFrom(model, system, user)
	started := time.Now()
	if raw, ok, _ := e.Cache.Get(ctx, key); ok {
		if err := parse(string(raw)); err == nil {
			e.observe(kind, "cached", started)
			return nil
		}
	}

	client := e.Clients(apiKey)
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.1,
		MaxTokens:      e.maxOutput(),
		N:              1,
	}
	attempts := e.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			log.Debug().Err(lastErr).Str("kind", kind).Int("attempt", i+1).Msg("retrying model call")
			if err := sleep(ctx, time.Duration(i)*500*time.Millisecond); err != nil {
				lastErr = err
				break
			}
		}
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w: %w", kind, ErrModelCall, err)
			if ctx.Err() != nil || !retryable(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			lastErr = ErrEmptyResponse
			continue
		}
		raw := resp.Choices[0].Message.Content
		if err := parse(raw); err != nil {
			lastErr = err
			continue
		}
		if b, err := extractJSON(raw); err == nil {
			if err := e.Cache.Save(ctx, key, b); err != nil {
				log.Warn().Err(err).Msg("llm cache save failed")
			}
		}
		e.observe(kind, "ok", started)
		return nil
	}
	e.observe(kind, "error", started)
	return lastErr
}

// retryable excludes client errors other than rate limiting.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return !isClientError(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return !isClientError(reqErr.HTTPStatusCode)
	}
	return true
}

func isClientError(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func (e *Evaluator) observe(kind, outcome string, started time.Time) {
	if e.Observer != nil {
		e.Observer.ObserveLLMCall(kind, outcome, time.Since(started))
	}
}

func (e *Evaluator) apiKey(fromRequest string) (string, error) {
	if k := strings.TrimSpace(fromRequest); k != "" {
		return k, nil
	}
	if k := strings.TrimSpace(e.DefaultAPIKey); k != "" {
		return k, nil
	}
	return "", ErrMissingAPIKey
}

func (e *Evaluator) model() string {
	if m := strings.TrimSpace(e.Model); m != "" {
		return m
	}
	return DefaultModel
}

func (e *Evaluator) maxOutput() int {
	if e.MaxOutputTokens > 0 {
		return e.MaxOutputTokens
	}
	return DefaultMaxOutputTokens
}

// Digest is the hex SHA-256 of content, used to tie reports to their input.
func Digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
