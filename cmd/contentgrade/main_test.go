package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/contentgrade/internal/document"
	"github.com/hyperifyio/contentgrade/internal/evaluate"
	"github.com/hyperifyio/contentgrade/internal/linkcheck"
	"github.com/hyperifyio/contentgrade/internal/llm"
)

// clearEnv keeps the developer's environment out of config resolution.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LLM_BASE_URL", "LLM_MODEL", "LLM_API_KEY", "ADDR", "CACHE_DIR", "CACHE_MAX_AGE",
		"CACHE_CLEAR", "LINK_BATCH_SIZE", "LINK_TIMEOUT", "LINK_RESTRICTED_OK", "RESPECT_ROBOTS", "VERBOSE",
	} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeArticle(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestVersion(t *testing.T) {
	clearEnv(t)
	out, err := run(t, "", "version")
	if err != nil || !strings.HasPrefix(out, "contentgrade 0.0.0-dev") {
		t.Fatalf("version output %q err=%v", out, err)
	}
}

func TestConfigShow_Precedence(t *testing.T) {
	clearEnv(t)
	cfgPath := writeArticle(t, "cg.yaml", "llm:\n  model: from-file\n  key: secret\nlinks:\n  batchSize: 3\ncache:\n  dir: /from/file\n")
	t.Setenv("CACHE_DIR", "/from/env")

	out, err := run(t, "", "--config", cfgPath, "--links.batchSize", "7", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"model: from-file", "batchSize: 7", "dir: /from/env", "********"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret") {
		t.Fatalf("API key leaked:\n%s", out)
	}
}

func TestParseAndLinks(t *testing.T) {
	clearEnv(t)
	path := writeArticle(t, "guide.html", `<html><head><title>Widget Guide</title></head>
<body><h1>Widget Guide</h1><p>See <a href="https://example.com/a">a</a> and https://example.org/b.</p></body></html>`)

	out, err := run(t, "", "--cache.dir", "", "parse", path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var doc document.Document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if doc.TitleOr("") != "Widget Guide" || doc.Format != document.FormatHTML || len(doc.Links) != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}

	out, err = run(t, "", "--cache.dir", "", "links", path)
	if err != nil {
		t.Fatalf("links: %v", err)
	}
	if out != "https://example.com/a\nhttps://example.org/b\n" {
		t.Fatalf("links output %q", out)
	}

	if _, err := run(t, "", "--cache.dir", "", "parse", writeArticle(t, "notes.exe", "x")); !errors.Is(err, document.ErrUnsupportedType) {
		t.Fatalf("expected unsupported type, got %v", err)
	}
}

func TestCheckLinks(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	content := "Good " + srv.URL + "/ok and bad " + srv.URL + "/missing"
	out, err := run(t, content, "--cache.dir", "", "check-links", "-")
	if err != nil {
		t.Fatalf("check-links: %v", err)
	}
	var res linkcheck.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.TotalLinks != 2 || res.BrokenLinks != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	_, err = run(t, "", "--cache.dir", "", "check-links", "--fail-on-broken", "--url", srv.URL+"/missing")
	if !errors.Is(err, errBrokenLinks) {
		t.Fatalf("expected errBrokenLinks, got %v", err)
	}
}

func TestEvaluateAndCompare(t *testing.T) {
	clearEnv(t)
	stub := httptest.NewServer(llm.NewStubHandler("stub-model"))
	defer stub.Close()
	common := []string{"--llm.base", stub.URL + "/v1", "--llm.model", "stub-model", "--llm.key", "k", "--cache.dir", t.TempDir()}

	article := writeArticle(t, "widgets.md", "# Choosing Widgets\n\nWe tested twelve widgets for a year.\n")
	out, err := run(t, "", append(common, "evaluate", article, "--keyword", "widgets")...)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, want := range []string{"# Choosing Widgets", "| Overall | 72 |", "Target keyword: widgets", "model=stub-model"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in report:\n%s", want, out)
		}
	}

	pdfPath := filepath.Join(t.TempDir(), "report.pdf")
	if _, err := run(t, "", append(common, "evaluate", article, "-f", "pdf", "-o", pdfPath)...); err != nil {
		t.Fatalf("evaluate pdf: %v", err)
	}
	if b, err := os.ReadFile(pdfPath); err != nil || !bytes.HasPrefix(b, []byte("%PDF")) {
		t.Fatalf("expected a PDF file, err=%v", err)
	}

	rival := writeArticle(t, "rival.txt", "Widget basics\n\nA short overview of widgets.\n")
	out, err = run(t, "", append(common, "compare", article, rival, "-f", "json")...)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	var cmp evaluate.Comparison
	if err := json.Unmarshal([]byte(out), &cmp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(cmp.Articles) != 2 || cmp.Articles[0].Title != "Choosing Widgets" {
		t.Fatalf("unexpected comparison %+v", cmp)
	}

	if _, err := run(t, "", append(common, "evaluate")...); err == nil {
		t.Fatalf("expected error without input")
	}
}
