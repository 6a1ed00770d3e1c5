package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HTTPEntry is the metadata needed to revalidate a cached body.
type HTTPEntry struct {
	URL          string    `json:"url"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	SavedAt      time.Time `json:"saved_at"`
}

// HTTPCache stores fetched documents as <sha256(url)>.meta.json plus
// <sha256(url)>.body.
type HTTPCache struct {
	Dir         string
	StrictPerms bool
}

func (c *HTTPCache) paths(url string) (meta string, body string) {
	key := KeyFrom(url)
	return filepath.Join(c.Dir, key+".meta.json"), filepath.Join(c.Dir, key+".body")
}

// LoadMeta returns the entry metadata for url.
func (c *HTTPCache) LoadMeta(_ context.Context, url string) (*HTTPEntry, error) {
	if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
		return nil, err
	}
	metaPath, _ := c.paths(url)
	b, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}
	var e HTTPEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	return &e, nil
}

// LoadBody returns the cached body for url and marks it recently used.
func (c *HTTPCache) LoadBody(_ context.Context, url string) ([]byte, error) {
	if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
		return nil, err
	}
	_, bodyPath := c.paths(url)
	b, err := os.ReadFile(bodyPath)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	_ = os.Chtimes(bodyPath, now, now)
	return b, nil
}

// Save stores body and validators for url. The body is written first so a
// meta file never points at a missing body.
func (c *HTTPCache) Save(_ context.Context, url string, contentType string, etag string, lastModified string, body []byte) error {
	if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
		return err
	}
	metaPath, bodyPath := c.paths(url)
	mode := fileMode(c.StrictPerms)
	if err := writeAtomic(bodyPath, body, mode); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	meta, err := json.Marshal(HTTPEntry{
		URL:          url,
		ContentType:  contentType,
		ETag:         etag,
		LastModified: lastModified,
		SavedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := writeAtomic(metaPath, meta, mode); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}
