package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hyperifyio/contentgrade/internal/app"
)

// cli carries the resolved configuration from the root command to its
// subcommands.
type cli struct {
	cfg        app.Config
	configFile string
	envFiles   []string
	logJSON    bool
	stdout     io.Writer
	stderr     io.Writer
	stdin      io.Reader
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{
		cfg:    app.DefaultConfig(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	root := &cobra.Command{
		Use:   "contentgrade",
		Short: "Grade articles against E-E-A-T and helpful content criteria",
		Long: `contentgrade parses articles (PDF, DOCX, HTML, text or a URL), checks
their links and asks an OpenAI-compatible model to score them for
experience, expertise, authoritativeness, trustworthiness and helpfulness.

Configuration precedence (highest first):
  1. CLI flags
  2. Environment variables (LLM_MODEL, CACHE_DIR, ...)
  3. Config file (--config, YAML or JSON)
  4. Defaults`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.resolve(cmd.Root().PersistentFlags())
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "Path to YAML or JSON config file")
	pf.StringSliceVar(&c.envFiles, "env-file", []string{".env"}, "Dotenv files to load before reading the environment")
	pf.BoolVarP(&c.cfg.Verbose, "verbose", "v", false, "Verbose logging")
	pf.BoolVar(&c.logJSON, "log-json", false, "Log JSON lines instead of console output")

	pf.StringVar(&c.cfg.LLMBaseURL, "llm.base", "", "OpenAI-compatible base URL")
	pf.StringVar(&c.cfg.LLMModel, "llm.model", "", "Model name")
	pf.StringVar(&c.cfg.LLMAPIKey, "llm.key", "", "Default API key when a request carries none")
	pf.BoolVar(&c.cfg.LLMInsecureTLS, "llm.insecureTLS", false, "Skip TLS verification towards the model endpoint")

	pf.StringVar(&c.cfg.Addr, "addr", app.DefaultAddr, "Listen address for serve")
	pf.BoolVar(&c.cfg.CORSEnabled, "cors", true, "Send permissive CORS headers")
	pf.Int64Var(&c.cfg.MaxUploadBytes, "max-upload-bytes", 0, "Largest accepted upload; 0 means 10 MiB")

	pf.StringVar(&c.cfg.CacheDir, "cache.dir", app.DefaultCacheDir, "Cache directory; empty disables caching")
	pf.DurationVar(&c.cfg.CacheMaxAge, "cache.maxAge", 0, "Purge cache entries older than this at startup; 0 disables")
	pf.BoolVar(&c.cfg.CacheClear, "cache.clear", false, "Clear the cache directory at startup")
	pf.BoolVar(&c.cfg.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	pf.Int64Var(&c.cfg.CacheMaxBytes, "cache.maxBytes", 0, "Evict least recently used entries above this size; 0 disables")
	pf.IntVar(&c.cfg.CacheMaxCount, "cache.maxCount", 0, "Evict least recently used entries above this count; 0 disables")

	pf.IntVar(&c.cfg.LinkBatchSize, "links.batchSize", app.DefaultLinkBatchSize, "Links probed concurrently per batch")
	pf.DurationVar(&c.cfg.LinkTimeout, "links.timeout", app.DefaultLinkTimeout, "Timeout per link probe")
	pf.StringVar(&c.cfg.LinkUserAgent, "links.userAgent", "", "User-Agent for link probes and fetches")
	pf.DurationVar(&c.cfg.LinkCacheTTL, "links.cacheTTL", app.DefaultLinkCacheTTL, "How long probe outcomes are remembered; 0 disables")
	pf.Float64Var(&c.cfg.LinkRatePerHost, "links.ratePerHost", 0, "Probes per second per host; 0 disables pacing")
	pf.BoolVar(&c.cfg.LinkRestrictedOK, "links.restrictedOK", true, "Count 403 and 405 answers as working links")

	pf.BoolVar(&c.cfg.RespectRobots, "fetch.robots", true, "Honour robots.txt when fetching URLs")
	pf.DurationVar(&c.cfg.FetchTimeout, "fetch.timeout", app.DefaultFetchTimeout, "Timeout per URL fetch attempt")

	root.AddCommand(
		c.serveCmd(),
		c.parseCmd(),
		c.linksCmd(),
		c.checkLinksCmd(),
		c.evaluateCmd(),
		c.compareCmd(),
		c.configCmd(),
		c.versionCmd(),
	)
	return root
}

// resolve layers defaults, config file, environment and explicitly set
// flags, in that order of increasing precedence. flags are the root's
// persistent flags, which are bound to c.cfg.
func (c *cli) resolve(flags *pflag.FlagSet) error {
	if err := app.LoadEnvFiles(c.envFiles...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}

	explicit := map[string]string{}
	// Visit only sees flags parsed by this set; subcommands parse into
	// their own set, so look at Changed on the shared flags instead.
	flags.VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "env-file", "log-json":
		default:
			if f.Changed {
				explicit[f.Name] = f.Value.String()
			}
		}
	})

	c.cfg = app.DefaultConfig()
	if c.configFile != "" {
		fc, err := app.LoadConfigFile(c.configFile)
		if err != nil {
			return fmt.Errorf("load config %s: %w", c.configFile, err)
		}
		app.ApplyFileConfig(&c.cfg, fc)
	}
	app.ApplyEnvOverrides(&c.cfg)
	for name, value := range explicit {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}

	setupLogging(c.stderr, c.cfg.Verbose, c.logJSON)
	return app.ValidateConfig(c.cfg)
}

func setupLogging(w io.Writer, verbose, jsonLines bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	if jsonLines {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(c.stdout, "contentgrade %s\n", app.VersionString())
			return err
		},
	}
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
