// Package cache persists paid-provider responses so interrupted or repeated
// runs never pay twice for the same question.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Entry is one cached provider response. Status and body are stored verbatim
// so cache hits behave exactly like the original call, including misses and
// provider errors.
type Entry struct {
	Status   int             `json:"status"`
	Body     json.RawMessage `json:"body"`
	Credits  int             `json:"credits"`
	CachedAt time.Time       `json:"cached_at"`
}

// Store manages one JSON cache file per provider under a directory.
type Store struct {
	dir string

	mu     sync.Mutex
	caches map[string]*Cache
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "cache: create dir %s", dir)
	}
	return &Store{dir: dir, caches: make(map[string]*Cache)}, nil
}

// Provider returns the cache for one provider, loading its file on first use.
func (s *Store) Provider(name string) (*Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	c, err := open(filepath.Join(s.dir, name+".json"))
	if err != nil {
		return nil, err
	}
	s.caches[name] = c
	return c, nil
}

// Cache is a write-through map backed by a single JSON file. Every Put
// rewrites the file atomically via temp-file + rename; identical keys are
// last-write-wins.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

func open(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]Entry)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: read %s", path)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		// A corrupt cache only costs credits, never correctness.
		zap.L().Warn("cache file corrupt, starting empty", zap.String("path", path), zap.Error(err))
		c.entries = make(map[string]Entry)
	}
	return c, nil
}

// Get returns the cached entry for key.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Put stores the entry and flushes the file. CachedAt is stamped when unset.
func (c *Cache) Put(key string, e Entry) error {
	if e.CachedAt.IsZero() {
		e.CachedAt = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return c.flushLocked()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) flushLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return eris.Wrap(err, "cache: marshal entries")
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".cache-*")
	if err != nil {
		return eris.Wrap(err, "cache: create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return eris.Wrap(err, "cache: write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return eris.Wrap(err, "cache: close temp file")
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		_ = os.Remove(tmp.Name())
		return eris.Wrapf(err, "cache: replace %s", c.path)
	}
	return nil
}
