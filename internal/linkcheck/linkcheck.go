// Package linkcheck reports which links in a piece of content are reachable.
//
// Links are probed in fixed-size batches: every probe in a batch runs
// concurrently and the next batch starts only when the current one has
// settled, so at most BatchSize requests are in flight. Results keep the
// order in which links were extracted.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperifyio/contentgrade/internal/cache"
	"github.com/hyperifyio/contentgrade/internal/links"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 5
	DefaultTimeout   = 5 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; contentgrade-linkcheck/1.0)"

	// DefaultRestrictedOK counts 403 and 405 answers as working links. Many
	// sites refuse HEAD or unknown clients while serving browsers normally.
	DefaultRestrictedOK = true
)

// Status is the outcome of probing one link. Status is nil when no HTTP
// response was received.
type Status struct {
	URL    string `json:"url"`
	Status *int   `json:"status"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Result aggregates a check. BrokenLinks+WorkingLinks always equals
// TotalLinks.
type Result struct {
	Links        []Status `json:"links"`
	TotalLinks   int      `json:"totalLinks"`
	BrokenLinks  int      `json:"brokenLinks"`
	WorkingLinks int      `json:"workingLinks"`
}

// Broken returns the failed probes in order.
func (r Result) Broken() []Status {
	var out []Status
	for _, s := range r.Links {
		if !s.OK {
			out = append(out, s)
		}
	}
	return out
}

// Observer receives one call per finished probe.
type Observer interface {
	ObserveProbe(ok bool, status int, d time.Duration)
}

// Checker probes links over HTTP. Use New for production defaults.
type Checker struct {
	Client    *http.Client
	UserAgent string
	BatchSize int
	// Timeout bounds each individual request, including the GET retry.
	Timeout time.Duration
	// RestrictedOK treats 403 and 405 as working.
	RestrictedOK bool
	// BaseURL resolves domain-relative links. Without it they are reported
	// broken.
	BaseURL *url.URL
	// Memo, when set, remembers probe outcomes across checks.
	Memo *cache.MemoryCache
	// Limiter, when set, paces probes per host.
	Limiter  *Limiter
	Observer Observer
}

// New returns a Checker with the default batch size, timeout, user agent
// and 403/405 policy.
func New() *Checker {
	return &Checker{
		Client:       &http.Client{},
		UserAgent:    DefaultUserAgent,
		BatchSize:    DefaultBatchSize,
		Timeout:      DefaultTimeout,
		RestrictedOK: DefaultRestrictedOK,
	}
}

// Check extracts the links in content and probes each of them.
func (c *Checker) Check(ctx context.Context, content string) Result {
	return c.CheckURLs(ctx, links.Extract(content))
}

// CheckURLs probes urls in batches and returns one Status per input, in
// input order.
func (c *Checker) CheckURLs(ctx context.Context, urls []string) Result {
	statuses := make([]Status, len(urls))
	size := c.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	for start := 0; start < len(urls); start += size {
		end := start + size
		if end > len(urls) {
			end = len(urls)
		}
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				statuses[i] = c.Probe(ctx, urls[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	res := Result{Links: statuses, TotalLinks: len(statuses)}
	for _, s := range statuses {
		if s.OK {
			res.WorkingLinks++
		} else {
			res.BrokenLinks++
		}
	}
	log.Debug().Int("total", res.TotalLinks).Int("broken", res.BrokenLinks).Msg("link check finished")
	return res
}

// Probe checks a single link: HEAD first, then GET when the server answers
// 403 or 405 to HEAD.
func (c *Checker) Probe(ctx context.Context, raw string) Status {
	st := Status{URL: links.Clean(raw)}
	target, err := c.resolve(st.URL)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	if cached, ok := c.Memo.Get(target); ok {
		if prev, ok := cached.(Status); ok {
			prev.URL = st.URL
			return prev
		}
	}
	if err := c.Limiter.Wait(ctx, target); err != nil {
		st.Error = err.Error()
		return st
	}

	started := time.Now()
	code, err := c.request(ctx, http.MethodHead, target)
	if err == nil && isRestricted(code) {
		code, err = c.request(ctx, http.MethodGet, target)
	}
	if err != nil {
		st.Error = err.Error()
		log.Debug().Err(err).Str("url", target).Msg("link probe failed")
	} else {
		st.Status = &code
		st.OK = c.classify(code)
	}
	if c.Observer != nil {
		c.Observer.ObserveProbe(st.OK, code, time.Since(started))
	}
	// Cancellation says nothing about the link; do not remember it.
	if ctx.Err() == nil {
		c.Memo.Set(target, st)
	}
	return st
}

func (c *Checker) classify(code int) bool {
	if code >= 200 && code < 400 {
		return true
	}
	return c.RestrictedOK && isRestricted(code)
}

func isRestricted(code int) bool {
	return code == http.StatusForbidden || code == http.StatusMethodNotAllowed
}

var errRelative = errors.New("relative link has no base URL")

func (c *Checker) resolve(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("empty link")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	if !u.IsAbs() {
		if c.BaseURL == nil || !strings.HasPrefix(raw, "/") {
			return "", errRelative
		}
		u = c.BaseURL.ResolveReference(u)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (c *Checker) request(ctx context.Context, method string, target string) (int, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target, nil)
	if err != nil {
		return 0, err
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if method == http.MethodGet {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	}
	return resp.StatusCode, nil
}
