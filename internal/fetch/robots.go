package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
)

// RobotsGate answers whether a URL may be fetched according to the site's
// robots.txt. Parsed files are kept per host for the life of the gate.
// A robots.txt that cannot be retrieved allows everything.
type RobotsGate struct {
	HTTPClient *http.Client
	UserAgent  string
	Timeout    time.Duration

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

// Allowed reports whether u may be fetched.
func (g *RobotsGate) Allowed(ctx context.Context, u *url.URL) bool {
	data, err := g.load(ctx, u)
	if err != nil {
		log.Debug().Err(err).Str("host", u.Host).Msg("robots.txt unavailable; allowing")
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, productToken(g.UserAgent))
}

func (g *RobotsGate) load(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(u.Scheme + "://" + u.Host)
	g.mu.Lock()
	if data, ok := g.hosts[key]; ok {
		g.mu.Unlock()
		return data, nil
	}
	g.mu.Unlock()

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}
	client := g.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	g.mu.Lock()
	if g.hosts == nil {
		g.hosts = make(map[string]*robotstxt.RobotsData)
	}
	g.hosts[key] = data
	g.mu.Unlock()
	return data, nil
}

// productToken reduces "name/1.0 (+info)" to "name" for group matching.
func productToken(ua string) string {
	fields := strings.Fields(ua)
	if len(fields) == 0 {
		return "*"
	}
	return strings.SplitN(fields[0], "/", 2)[0]
}
