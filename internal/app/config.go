package app

import "time"

// Config holds runtime configuration for the service and the CLI.
type Config struct {
	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string
	// LLMInsecureTLS skips certificate checks towards self-hosted gateways.
	LLMInsecureTLS bool

	// Server
	Addr           string
	CORSEnabled    bool
	MaxUploadBytes int64

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	CacheMaxBytes    int64
	CacheMaxCount    int

	// Link checking
	LinkBatchSize    int
	LinkTimeout      time.Duration
	LinkUserAgent    string
	LinkCacheTTL     time.Duration
	LinkRatePerHost  float64
	LinkRestrictedOK bool

	// Fetching
	RespectRobots bool
	FetchTimeout  time.Duration

	Verbose bool
}

// Defaults used when neither flags, environment nor a config file set a
// value. Flag defaults reuse them so ApplyFileConfig can tell "left at
// default" from "set explicitly".
const (
	DefaultAddr          = ":8080"
	DefaultCacheDir      = ".contentgrade-cache"
	DefaultLinkBatchSize = 5
	DefaultLinkTimeout   = 5 * time.Second
	DefaultLinkCacheTTL  = 10 * time.Minute
	DefaultFetchTimeout  = 20 * time.Second
)

// DefaultConfig returns the configuration a bare `contentgrade serve` uses.
func DefaultConfig() Config {
	return Config{
		Addr:             DefaultAddr,
		CORSEnabled:      true,
		CacheDir:         DefaultCacheDir,
		LinkBatchSize:    DefaultLinkBatchSize,
		LinkTimeout:      DefaultLinkTimeout,
		LinkCacheTTL:     DefaultLinkCacheTTL,
		LinkRestrictedOK: true,
		RespectRobots:    true,
		FetchTimeout:     DefaultFetchTimeout,
	}
}
