package cache

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ClearDir removes dir and everything in it, then recreates it empty.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errNoDir
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// entry groups the files that make up one cached item.
type entry struct {
	files   []string
	size    int64
	used    time.Time
	savedAt time.Time
}

// scan groups HTTP meta/body pairs and LLM response files under dir.
func scan(dir string) (map[string]*entry, error) {
	entries := make(map[string]*entry)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		var key string
		switch {
		case strings.HasSuffix(name, ".meta.json"):
			key = strings.TrimSuffix(path, ".meta.json")
		case strings.HasSuffix(name, ".body"):
			key = strings.TrimSuffix(path, ".body")
		case strings.HasSuffix(name, ".json"):
			key = strings.TrimSuffix(path, ".json")
		default:
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		e := entries[key]
		if e == nil {
			e = &entry{}
			entries[key] = e
		}
		e.files = append(e.files, path)
		e.size += info.Size()
		if info.ModTime().After(e.used) {
			e.used = info.ModTime()
		}
		if strings.HasSuffix(name, ".meta.json") {
			if b, err := os.ReadFile(path); err == nil {
				var m HTTPEntry
				if json.Unmarshal(b, &m) == nil {
					e.savedAt = m.SavedAt
				}
			}
		}
		return nil
	})
	if os.IsNotExist(err) {
		return entries, nil
	}
	return entries, err
}

func remove(e *entry) {
	for _, f := range e.files {
		_ = os.Remove(f)
	}
}

// PurgeByAge removes cached items older than maxAge. HTTP entries age from
// their SavedAt stamp, model responses from their last use.
func PurgeByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := scan(dir)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		stamp := e.savedAt
		if stamp.IsZero() {
			stamp = e.used
		}
		if now.Sub(stamp) > maxAge {
			remove(e)
			removed++
		}
	}
	return removed, nil
}

// EnforceLimits evicts least recently used items until the cache holds at
// most maxCount items and maxBytes bytes. Zero disables a limit.
func EnforceLimits(dir string, maxBytes int64, maxCount int) (int, error) {
	if maxBytes <= 0 && maxCount <= 0 {
		return 0, nil
	}
	entries, err := scan(dir)
	if err != nil {
		return 0, err
	}
	list := make([]*entry, 0, len(entries))
	var total int64
	for _, e := range entries {
		list = append(list, e)
		total += e.size
	}
	sort.Slice(list, func(i, j int) bool { return list[i].used.Before(list[j].used) })

	removed := 0
	for _, e := range list {
		overCount := maxCount > 0 && len(list)-removed > maxCount
		overBytes := maxBytes > 0 && total > maxBytes
		if !overCount && !overBytes {
			break
		}
		remove(e)
		total -= e.size
		removed++
	}
	return removed, nil
}
