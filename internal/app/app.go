// Package app turns a Config into wired components: parser, link checker,
// fetcher, evaluator, metrics and the HTTP server.
package app

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/contentgrade/internal/cache"
	"github.com/hyperifyio/contentgrade/internal/document"
	"github.com/hyperifyio/contentgrade/internal/evaluate"
	"github.com/hyperifyio/contentgrade/internal/extract"
	"github.com/hyperifyio/contentgrade/internal/fetch"
	"github.com/hyperifyio/contentgrade/internal/linkcheck"
	"github.com/hyperifyio/contentgrade/internal/llm"
	"github.com/hyperifyio/contentgrade/internal/metrics"
	"github.com/hyperifyio/contentgrade/internal/server"
)

// llmTimeout bounds one model call, including the response body.
const llmTimeout = 3 * time.Minute

// App holds the components built from a Config. CLI commands use them
// directly; `serve` mounts them behind Server.
type App struct {
	Config    Config
	Parser    *document.Parser
	Checker   *linkcheck.Checker
	Fetcher   *fetch.Client
	Loader    *fetch.Loader
	Evaluator *evaluate.Evaluator
	Metrics   *metrics.Metrics
	LLMCache  *cache.LLMCache
	HTTPCache *cache.HTTPCache
}

// New validates cfg, applies cache hygiene and wires every component.
func New(cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Metrics: metrics.New("contentgrade")}

	if cfg.CacheDir != "" {
		prepareCache(cfg)
		a.HTTPCache = &cache.HTTPCache{Dir: filepath.Join(cfg.CacheDir, "http"), StrictPerms: cfg.CacheStrictPerms}
		a.LLMCache = &cache.LLMCache{Dir: filepath.Join(cfg.CacheDir, "llm"), StrictPerms: cfg.CacheStrictPerms}
	}

	a.Parser = &document.Parser{}

	a.Checker = linkcheck.New()
	a.Checker.Client = newHTTPClient(0, false)
	if cfg.LinkBatchSize > 0 {
		a.Checker.BatchSize = cfg.LinkBatchSize
	}
	if cfg.LinkTimeout > 0 {
		a.Checker.Timeout = cfg.LinkTimeout
	}
	if cfg.LinkUserAgent != "" {
		a.Checker.UserAgent = cfg.LinkUserAgent
	}
	a.Checker.RestrictedOK = cfg.LinkRestrictedOK
	if cfg.LinkCacheTTL > 0 {
		a.Checker.Memo = cache.NewMemoryCache(cfg.LinkCacheTTL, 2*cfg.LinkCacheTTL)
	}
	if cfg.LinkRatePerHost > 0 {
		a.Checker.Limiter = linkcheck.NewLimiter(cfg.LinkRatePerHost, a.Checker.BatchSize)
	}
	a.Checker.Observer = a.Metrics

	fetchClient := newHTTPClient(0, false)
	a.Fetcher = &fetch.Client{
		HTTPClient:        fetchClient,
		UserAgent:         a.Checker.UserAgent,
		MaxAttempts:       2,
		PerRequestTimeout: cfg.FetchTimeout,
		Cache:             a.HTTPCache,
		MaxConcurrent:     8,
		MaxBodyBytes:      uploadLimit(cfg),
	}
	if cfg.RespectRobots {
		a.Fetcher.Robots = &fetch.RobotsGate{HTTPClient: fetchClient, UserAgent: a.Checker.UserAgent}
	}
	a.Loader = &fetch.Loader{
		Client: a.Fetcher,
		Parser: &document.Parser{HTML: extract.ArticleExtractor{}},
	}

	a.Evaluator = &evaluate.Evaluator{
		Clients:       llm.NewFactory(cfg.LLMBaseURL, newHTTPClient(llmTimeout, cfg.LLMInsecureTLS)),
		Model:         cfg.LLMModel,
		DefaultAPIKey: cfg.LLMAPIKey,
		Cache:         a.LLMCache,
		Checker:       a.Checker,
		Source:        a.Loader,
		Observer:      a.Metrics,
	}

	log.Debug().
		Str("llm_base_url", cfg.LLMBaseURL).
		Str("model", a.Evaluator.Model).
		Str("cache_dir", cfg.CacheDir).
		Bool("robots", cfg.RespectRobots).
		Msg("components wired")
	return a, nil
}

// Server mounts the components behind the HTTP API.
func (a *App) Server() *server.Server {
	sc := server.DefaultConfig()
	sc.Addr = a.Config.Addr
	sc.CORSEnabled = a.Config.CORSEnabled
	sc.MaxUploadBytes = uploadLimit(a.Config)
	sc.Version = BuildVersion
	sc.LLMBaseURL = a.Config.LLMBaseURL
	sc.LLMCache = a.LLMCache != nil
	return server.New(sc, server.Deps{
		Parser:    a.Parser,
		Loader:    a.Loader,
		Checker:   a.Checker,
		Evaluator: a.Evaluator,
		Metrics:   a.Metrics,
	})
}

// Handler is shorthand for a.Server().Handler().
func (a *App) Handler() http.Handler { return a.Server().Handler() }

func uploadLimit(cfg Config) int64 {
	if cfg.MaxUploadBytes > 0 {
		return cfg.MaxUploadBytes
	}
	return document.DefaultMaxBytes
}

// prepareCache applies clear, age and size controls. Failures are logged;
// a broken cache never stops the service.
func prepareCache(cfg Config) {
	if cfg.CacheClear {
		if err := cache.ClearDir(cfg.CacheDir); err != nil {
			log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
		}
		return
	}
	if cfg.CacheMaxAge > 0 {
		if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
			log.Debug().Err(err).Msg("cache purge skipped")
		} else if n > 0 {
			log.Info().Int("removed", n).Dur("max_age", cfg.CacheMaxAge).Msg("purged expired cache entries")
		}
	}
	if cfg.CacheMaxBytes > 0 || cfg.CacheMaxCount > 0 {
		if n, err := cache.EnforceLimits(cfg.CacheDir, cfg.CacheMaxBytes, cfg.CacheMaxCount); err != nil {
			log.Debug().Err(err).Msg("cache limits skipped")
		} else if n > 0 {
			log.Info().Int("removed", n).Msg("evicted cache entries over limit")
		}
	}
}
