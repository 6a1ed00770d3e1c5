package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/contentgrade/internal/app"
	"github.com/hyperifyio/contentgrade/internal/document"
	"github.com/hyperifyio/contentgrade/internal/evaluate"
	"github.com/hyperifyio/contentgrade/internal/report"
)

// errBrokenLinks makes `check-links --fail-on-broken` exit non-zero.
var errBrokenLinks = errors.New("broken links found")

const shutdownGrace = 15 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(c.cfg)
			if err != nil {
				return err
			}
			srv := a.Server()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return <-errCh
		},
	}
}

func (c *cli) parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file|->",
		Short: "Extract text, title and links from a document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(c.cfg)
			if err != nil {
				return err
			}
			doc, err := c.parseFile(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			return report.JSON(c.stdout, doc)
		},
	}
}

func (c *cli) linksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links <file|->",
		Short: "List the links found in a document, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(c.cfg)
			if err != nil {
				return err
			}
			doc, err := c.parseFile(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			for _, l := range doc.Links {
				if _, err := fmt.Fprintln(c.stdout, l); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (c *cli) checkLinksCmd() *cobra.Command {
	var (
		urls         []string
		base         string
		failOnBroken bool
	)
	cmd := &cobra.Command{
		Use:   "check-links [file|-]",
		Short: "Probe the links of a document (or --url list) and print a JSON report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(urls) == 0 {
				return errors.New("a file or at least one --url is required")
			}
			a, err := app.New(c.cfg)
			if err != nil {
				return err
			}
			targets := append([]string(nil), urls...)
			if len(args) == 1 {
				doc, err := c.parseFile(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				targets = append(targets, doc.Links...)
			}
			checker := *a.Checker
			if base != "" {
				u, err := url.Parse(base)
				if err != nil || !u.IsAbs() {
					return fmt.Errorf("invalid --base %q", base)
				}
				checker.BaseURL = u
			}
			res := checker.CheckURLs(cmd.Context(), targets)
			if err := report.JSON(c.stdout, res); err != nil {
				return err
			}
			if failOnBroken && res.BrokenLinks > 0 {
				return fmt.Errorf("%w: %d of %d", errBrokenLinks, res.BrokenLinks, res.TotalLinks)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&urls, "url", nil, "Link to probe; repeatable")
	cmd.Flags().StringVar(&base, "base", "", "Base URL for domain-relative links")
	cmd.Flags().BoolVar(&failOnBroken, "fail-on-broken", false, "Exit non-zero when any link is broken")
	return cmd
}

func (c *cli) evaluateCmd() *cobra.Command {
	var (
		req    evaluate.Request
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "evaluate [file|-]",
		Short: "Score a document or --url against E-E-A-T and helpful content criteria",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if len(args) == 0 && req.URL == "" {
				return errors.New("a file or --url is required")
			}
			a, err := app.New(c.cfg)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				doc, err := c.parseFile(cmd.Context(), a, args[0])
				if err != nil {
					return err
				}
				req.Content = doc.Text
				if req.Title == "" {
					req.Title = doc.TitleOr("")
				}
			}
			ev, err := a.Evaluator.Evaluate(cmd.Context(), req)
			if err != nil {
				return err
			}
			log.Info().Int("overall", ev.OverallScore).Str("id", ev.ID).Msg("evaluation finished")
			meta := report.Meta{BaseURL: c.cfg.LLMBaseURL, LLMCache: a.LLMCache != nil, HTTPCache: a.HTTPCache != nil}
			return c.writeOutput(out, func(w io.Writer) error {
				return report.Write(w, f, ev, meta)
			})
		},
	}
	cmd.Flags().StringVar(&req.URL, "url", "", "Fetch and evaluate this page instead of a file")
	cmd.Flags().StringVar(&req.Keyword, "keyword", "", "Target keyword")
	cmd.Flags().StringVar(&req.Title, "title", "", "Title override")
	cmd.Flags().StringVar(&req.APIKey, "api-key", "", "API key for this run (defaults to --llm.key)")
	cmd.Flags().BoolVar(&req.CheckLinks, "check-links", false, "Probe links and include the audit in the prompt and report")
	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatMarkdown), "Output format: json, markdown or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the report to this file instead of stdout")
	return cmd
}

func (c *cli) compareCmd() *cobra.Command {
	var (
		keyword string
		apiKey  string
		format  string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "compare <primary> <competitor>...",
		Short: "Compare an article with up to five competitors (files or URLs)",
		Args:  cobra.RangeArgs(2, 1+evaluate.MaxCompetitors),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == report.FormatPDF {
				return fmt.Errorf("%w: comparisons export as json or markdown", report.ErrUnknownFormat)
			}
			a, err := app.New(c.cfg)
			if err != nil {
				return err
			}
			articles := make([]evaluate.Article, 0, len(args))
			for _, arg := range args {
				art, err := c.article(cmd.Context(), a, arg)
				if err != nil {
					return err
				}
				articles = append(articles, art)
			}
			cmp, err := a.Evaluator.Compare(cmd.Context(), evaluate.CompareRequest{
				Primary:     articles[0],
				Competitors: articles[1:],
				Keyword:     keyword,
				APIKey:      apiKey,
			})
			if err != nil {
				return err
			}
			return c.writeOutput(out, func(w io.Writer) error {
				if f == report.FormatJSON {
					return report.JSON(w, cmp)
				}
				_, err := io.WriteString(w, report.ComparisonMarkdown(cmp))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&keyword, "keyword", "", "Target keyword")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for this run (defaults to --llm.key)")
	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatMarkdown), "Output format: json or markdown")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the report to this file instead of stdout")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as YAML (API key redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc := app.ToFileConfig(c.cfg)
			if fc.LLM.APIKey != "" {
				fc.LLM.APIKey = "********"
			}
			enc := yaml.NewEncoder(c.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(fc); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	})
	return cmd
}

// parseFile reads path ("-" for stdin) and runs it through the document
// parser with the upload limits the server applies.
func (c *cli) parseFile(ctx context.Context, a *app.App, path string) (document.Document, error) {
	name := filepath.Base(path)
	var (
		data []byte
		err  error
	)
	if path == "-" {
		name = "stdin.txt"
		data, err = io.ReadAll(c.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	limit := a.Config.MaxUploadBytes
	if limit <= 0 {
		limit = document.DefaultMaxBytes
	}
	if err := document.ValidateUpload(name, int64(len(data)), document.Limits{MaxBytes: limit}); err != nil {
		return document.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	doc, err := a.Parser.Parse(ctx, data, name)
	if err != nil {
		return document.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Degraded {
		log.Warn().Str("file", path).Str("diagnostic", doc.Diagnostic).Msg("document parsed in degraded mode")
	}
	return doc, nil
}

// article turns a compare argument into an Article. URLs are left for the
// evaluator to fetch.
func (c *cli) article(ctx context.Context, a *app.App, arg string) (evaluate.Article, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return evaluate.Article{URL: arg}, nil
	}
	doc, err := c.parseFile(ctx, a, arg)
	if err != nil {
		return evaluate.Article{}, err
	}
	return evaluate.Article{Title: doc.TitleOr(""), Content: doc.Text}, nil
}

func (c *cli) writeOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(c.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info().Str("out", path).Msg("wrote report")
	return nil
}
