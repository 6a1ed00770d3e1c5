package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperifyio/contentgrade/internal/document"
	"github.com/hyperifyio/contentgrade/internal/extract"
)

func TestLoader_ParsesByContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><title>Widget Buying Guide</title></head><body><nav>Menu</nav><article><p>Read <a href="https://example.com/specs">the specs</a>.</p></article></body></html>`))
		case "/notes":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("Notes about widgets\nSee https://example.org/more"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	l := &Loader{
		Client: &Client{HTTPClient: srv.Client(), MaxAttempts: 1},
		Parser: &document.Parser{HTML: extract.ArticleExtractor{}},
	}
	doc, err := l.Load(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Format != document.FormatHTML || doc.TitleOr("") != "Widget Buying Guide" {
		t.Fatalf("unexpected doc %+v", doc)
	}
	if len(doc.Links) != 1 || doc.Links[0] != "https://example.com/specs" {
		t.Fatalf("links = %v", doc.Links)
	}

	doc, err = l.Load(context.Background(), srv.URL+"/notes")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Format != document.FormatText || doc.TitleOr("") != "Notes about widgets" {
		t.Fatalf("unexpected doc %+v", doc)
	}

	_, err = l.Load(context.Background(), srv.URL+"/gone")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
}
