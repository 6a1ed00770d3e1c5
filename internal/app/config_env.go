package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyEnvOverrides overwrites cfg fields whose environment variable is set.
// Env takes precedence over the config file; flags are applied afterwards
// by the CLI. Values that do not parse are logged and ignored.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
	setString(&cfg.LLMModel, "LLM_MODEL")
	setString(&cfg.LLMAPIKey, "LLM_API_KEY")
	setBool(&cfg.LLMInsecureTLS, "LLM_INSECURE_TLS")

	setString(&cfg.Addr, "ADDR")
	setBool(&cfg.CORSEnabled, "CORS_ENABLED")
	setInt64(&cfg.MaxUploadBytes, "MAX_UPLOAD_BYTES")

	setString(&cfg.CacheDir, "CACHE_DIR")
	setDuration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setInt64(&cfg.CacheMaxBytes, "CACHE_MAX_BYTES")
	setInt(&cfg.CacheMaxCount, "CACHE_MAX_COUNT")

	setInt(&cfg.LinkBatchSize, "LINK_BATCH_SIZE")
	setDuration(&cfg.LinkTimeout, "LINK_TIMEOUT")
	setString(&cfg.LinkUserAgent, "LINK_USER_AGENT")
	setDuration(&cfg.LinkCacheTTL, "LINK_CACHE_TTL")
	if v := env("LINK_RATE_PER_HOST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LinkRatePerHost = f
		} else {
			ignored("LINK_RATE_PER_HOST", v)
		}
	}
	setBool(&cfg.LinkRestrictedOK, "LINK_RESTRICTED_OK")

	setBool(&cfg.RespectRobots, "RESPECT_ROBOTS")
	setDuration(&cfg.FetchTimeout, "FETCH_TIMEOUT")
	setBool(&cfg.Verbose, "VERBOSE")
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func ignored(key, value string) {
	log.Warn().Str("env", key).Str("value", value).Msg("ignoring unparsable environment value")
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	switch v := strings.ToLower(env(key)); v {
	case "":
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		ignored(key, v)
	}
}

func setInt(dst *int, key string) {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			ignored(key, v)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := env(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		} else {
			ignored(key, v)
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := env(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else {
			ignored(key, v)
		}
	}
}
