package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Duration reads "90s" style strings from YAML and JSON.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if nerr := json.Unmarshal(b, &n); nerr != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return d.parse(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// FileConfig is the single-file configuration schema. Sections mirror the
// flag prefixes.
type FileConfig struct {
	LLM struct {
		BaseURL     string `yaml:"base" json:"base"`
		Model       string `yaml:"model" json:"model"`
		APIKey      string `yaml:"key" json:"key"`
		InsecureTLS bool   `yaml:"insecureTLS" json:"insecureTLS"`
	} `yaml:"llm" json:"llm"`

	Server struct {
		Addr           string `yaml:"addr" json:"addr"`
		CORS           *bool  `yaml:"cors" json:"cors"`
		MaxUploadBytes int64  `yaml:"maxUploadBytes" json:"maxUploadBytes"`
	} `yaml:"server" json:"server"`

	Cache struct {
		Dir         string   `yaml:"dir" json:"dir"`
		MaxAge      Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool     `yaml:"clear" json:"clear"`
		StrictPerms bool     `yaml:"strictPerms" json:"strictPerms"`
		MaxBytes    int64    `yaml:"maxBytes" json:"maxBytes"`
		MaxCount    int      `yaml:"maxCount" json:"maxCount"`
	} `yaml:"cache" json:"cache"`

	Links struct {
		BatchSize    int      `yaml:"batchSize" json:"batchSize"`
		Timeout      Duration `yaml:"timeout" json:"timeout"`
		UserAgent    string   `yaml:"userAgent" json:"userAgent"`
		CacheTTL     Duration `yaml:"cacheTTL" json:"cacheTTL"`
		RatePerHost  float64  `yaml:"ratePerHost" json:"ratePerHost"`
		RestrictedOK *bool    `yaml:"restrictedOK" json:"restrictedOK"`
	} `yaml:"links" json:"links"`

	Fetch struct {
		RespectRobots *bool    `yaml:"respectRobots" json:"respectRobots"`
		Timeout       Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"fetch" json:"fetch"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig. Unknown extensions are
// tried as YAML first, then JSON.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			fc = FileConfig{}
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays fc onto fields of cfg that are unset or still at
// their default.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if cfg.LLMBaseURL == "" && fc.LLM.BaseURL != "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if cfg.LLMModel == "" && fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if cfg.LLMAPIKey == "" && fc.LLM.APIKey != "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}
	if fc.LLM.InsecureTLS {
		cfg.LLMInsecureTLS = true
	}

	if (cfg.Addr == "" || cfg.Addr == DefaultAddr) && fc.Server.Addr != "" {
		cfg.Addr = fc.Server.Addr
	}
	if fc.Server.CORS != nil {
		cfg.CORSEnabled = *fc.Server.CORS
	}
	if cfg.MaxUploadBytes == 0 && fc.Server.MaxUploadBytes > 0 {
		cfg.MaxUploadBytes = fc.Server.MaxUploadBytes
	}

	if (cfg.CacheDir == "" || cfg.CacheDir == DefaultCacheDir) && fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = time.Duration(fc.Cache.MaxAge)
	}
	if fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if cfg.CacheMaxBytes == 0 && fc.Cache.MaxBytes > 0 {
		cfg.CacheMaxBytes = fc.Cache.MaxBytes
	}
	if cfg.CacheMaxCount == 0 && fc.Cache.MaxCount > 0 {
		cfg.CacheMaxCount = fc.Cache.MaxCount
	}

	if (cfg.LinkBatchSize == 0 || cfg.LinkBatchSize == DefaultLinkBatchSize) && fc.Links.BatchSize > 0 {
		cfg.LinkBatchSize = fc.Links.BatchSize
	}
	if (cfg.LinkTimeout == 0 || cfg.LinkTimeout == DefaultLinkTimeout) && fc.Links.Timeout > 0 {
		cfg.LinkTimeout = time.Duration(fc.Links.Timeout)
	}
	if cfg.LinkUserAgent == "" && fc.Links.UserAgent != "" {
		cfg.LinkUserAgent = fc.Links.UserAgent
	}
	if (cfg.LinkCacheTTL == 0 || cfg.LinkCacheTTL == DefaultLinkCacheTTL) && fc.Links.CacheTTL > 0 {
		cfg.LinkCacheTTL = time.Duration(fc.Links.CacheTTL)
	}
	if cfg.LinkRatePerHost == 0 && fc.Links.RatePerHost > 0 {
		cfg.LinkRatePerHost = fc.Links.RatePerHost
	}
	if fc.Links.RestrictedOK != nil {
		cfg.LinkRestrictedOK = *fc.Links.RestrictedOK
	}

	if fc.Fetch.RespectRobots != nil {
		cfg.RespectRobots = *fc.Fetch.RespectRobots
	}
	if (cfg.FetchTimeout == 0 || cfg.FetchTimeout == DefaultFetchTimeout) && fc.Fetch.Timeout > 0 {
		cfg.FetchTimeout = time.Duration(fc.Fetch.Timeout)
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}

// ToFileConfig renders cfg in the file schema, for `config show`.
func ToFileConfig(cfg Config) FileConfig {
	var fc FileConfig
	fc.LLM.BaseURL = cfg.LLMBaseURL
	fc.LLM.Model = cfg.LLMModel
	fc.LLM.APIKey = cfg.LLMAPIKey
	fc.LLM.InsecureTLS = cfg.LLMInsecureTLS
	fc.Server.Addr = cfg.Addr
	fc.Server.CORS = boolPtr(cfg.CORSEnabled)
	fc.Server.MaxUploadBytes = cfg.MaxUploadBytes
	fc.Cache.Dir = cfg.CacheDir
	fc.Cache.MaxAge = Duration(cfg.CacheMaxAge)
	fc.Cache.Clear = cfg.CacheClear
	fc.Cache.StrictPerms = cfg.CacheStrictPerms
	fc.Cache.MaxBytes = cfg.CacheMaxBytes
	fc.Cache.MaxCount = cfg.CacheMaxCount
	fc.Links.BatchSize = cfg.LinkBatchSize
	fc.Links.Timeout = Duration(cfg.LinkTimeout)
	fc.Links.UserAgent = cfg.LinkUserAgent
	fc.Links.CacheTTL = Duration(cfg.LinkCacheTTL)
	fc.Links.RatePerHost = cfg.LinkRatePerHost
	fc.Links.RestrictedOK = boolPtr(cfg.LinkRestrictedOK)
	fc.Fetch.RespectRobots = boolPtr(cfg.RespectRobots)
	fc.Fetch.Timeout = Duration(cfg.FetchTimeout)
	fc.Verbose = cfg.Verbose
	return fc
}

func boolPtr(b bool) *bool { return &b }

// ValidateConfig rejects values no component can run with.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return errors.New("config: server.addr is required")
	}
	if cfg.MaxUploadBytes < 0 || cfg.CacheMaxBytes < 0 || cfg.CacheMaxCount < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.LinkBatchSize < 0 {
		return errors.New("config: links.batchSize must not be negative")
	}
	if cfg.LinkTimeout < 0 || cfg.LinkCacheTTL < 0 || cfg.CacheMaxAge < 0 || cfg.FetchTimeout < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	if cfg.LinkRatePerHost < 0 {
		return errors.New("config: links.ratePerHost must not be negative")
	}
	return nil
}
