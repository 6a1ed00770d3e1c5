// Package fetch downloads content submitted by URL.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperifyio/contentgrade/internal/cache"
	"github.com/rs/zerolog/log"
)

// DefaultMaxBodyBytes caps a downloaded body.
const DefaultMaxBodyBytes int64 = 10 << 20

var (
	ErrUnsupportedScheme      = errors.New("unsupported URL scheme")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrBodyTooLarge           = errors.New("response body exceeds limit")
	ErrDisallowed             = errors.New("disallowed by robots.txt")
	// ErrFetchFailed wraps every error returned by Loader.Load.
	ErrFetchFailed            = errors.New("fetch failed")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.Code) }

// Page is a downloaded document.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
	FromCache   bool
}

// Client wraps http.Client with timeouts, bounded retry on transient errors,
// conditional revalidation against an on-disk cache and an optional
// robots.txt gate.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each attempt.
	PerRequestTimeout time.Duration
	// Cache stores bodies and validators. Optional.
	Cache *cache.HTTPCache
	// BypassCache skips conditional headers but still refreshes the cache.
	BypassCache bool
	// RedirectMaxHops caps redirect following. Zero means 5.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests. Zero means unlimited.
	MaxConcurrent int
	// MaxBodyBytes caps the body. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// Robots, when set, is consulted before every fetch.
	Robots *RobotsGate

	limiter     chan struct{}
	limiterOnce sync.Once
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

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{CheckRedirect: c.checkRedirectFunc()}
}

// Get downloads rawURL. 5xx answers and per-attempt timeouts are retried
// up to MaxAttempts.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return Page{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if c.Robots != nil && !c.Robots.Allowed(ctx, u) {
		return Page{}, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
	}

	var etag, lastMod string
	if c.Cache != nil && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil && meta != nil {
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := c.tryOnce(ctx, rawURL, etag, lastMod)
		if err == nil {
			return c.finish(ctx, rawURL, res)
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 {
			break
		}
		log.Debug().Err(err).Str("url", rawURL).Int("attempt", i+1).Msg("retrying fetch")
		if err := sleep(ctx, time.Duration(i+1)*200*time.Millisecond); err != nil {
			return Page{}, err
		}
	}
	return Page{}, lastErr
}

type attempt struct {
	status      int
	body        []byte
	contentType string
	etag        string
	lastMod     string
}

func (c *Client) finish(ctx context.Context, rawURL string, res attempt) (Page, error) {
	if res.status == http.StatusNotModified && c.Cache != nil {
		meta, merr := c.Cache.LoadMeta(ctx, rawURL)
		body, berr := c.Cache.LoadBody(ctx, rawURL)
		if merr == nil && berr == nil {
			return Page{URL: rawURL, ContentType: meta.ContentType, Body: body, FromCache: true}, nil
		}
		return Page{}, errors.New("not modified but cache entry is missing")
	}
	if c.Cache != nil {
		if err := c.Cache.Save(ctx, rawURL, res.contentType, res.etag, res.lastMod, res.body); err != nil {
			log.Warn().Err(err).Str("url", rawURL).Msg("cache save failed")
		}
	}
	return Page{URL: rawURL, ContentType: res.contentType, Body: res.body}, nil
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, etag string, lastMod string) (attempt, error) {
	c.acquire()
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attempt{}, fmt.Errorf("new request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return attempt{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return attempt{status: resp.StatusCode}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return attempt{status: resp.StatusCode}, &StatusError{Code: resp.StatusCode}
	}
	contentType := resp.Header.Get("Content-Type")
	if !IsAllowedContentType(contentType) {
		return attempt{}, fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return attempt{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return attempt{}, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, limit)
	}
	return attempt{
		status:      resp.StatusCode,
		body:        b,
		contentType: contentType,
		etag:        resp.Header.Get("ETag"),
		lastMod:     resp.Header.Get("Last-Modified"),
	}, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 500
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	hops := c.RedirectMaxHops
	if hops <= 0 {
		hops = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= hops {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

var allowedContentTypes = []string{
	"text/html",
	"application/xhtml+xml",
	"text/plain",
	"text/markdown",
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
}

// IsAllowedContentType reports whether the document parser can handle ct.
func IsAllowedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	for _, allowed := range allowedContentTypes {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	<-c.limiter
}
