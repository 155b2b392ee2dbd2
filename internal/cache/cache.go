// Package cache replays findings for files whose content did not change
// between scans.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/warden/internal/findings"
	"github.com/scan-io-git/warden/pkg/shared/files"
)

// SchemaVersion is bumped whenever the stored finding shape changes.
const SchemaVersion = 1

type entry struct {
	Findings  []findings.Finding `json:"findings"`
	Timestamp int64              `json:"ts"`
	Schema    int                `json:"schema_v"`
}

// FindingsCache maps {frame_id}:{file_path}:{content_hash} to findings.
type FindingsCache struct {
	path       string
	maxEntries int
	logger     hclog.Logger
	now        func() time.Time

	mu     sync.Mutex
	store  map[string]*entry
	dirty  bool
	hits   int
	misses int
}

// Open loads the cache file. A missing or corrupt file starts an empty cache.
func Open(path string, maxEntries int, logger hclog.Logger) *FindingsCache {
	c := &FindingsCache{
		path:       path,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
		store:      make(map[string]*entry),
	}
	if err := files.LoadJSON(path, &c.store); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("findings cache unreadable, starting empty", "path", path, "error", err)
		}
		c.store = make(map[string]*entry)
	}
	return c
}

// ContentHash is the first 16 hex characters of sha256(content).
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// Key builds the cache key of a frame and file.
func Key(frameID, filePath, content string) string {
	return fmt.Sprintf("%s:%s:%s", frameID, filePath, ContentHash(content))
}

// Get returns cached findings and true on a hit. An empty slice is a clean hit.
func (c *FindingsCache) Get(frameID, filePath, content string) ([]findings.Finding, bool) {
	if c == nil {
		return nil, false
	}
	key := Key(frameID, filePath, content)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.store[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.Schema != SchemaVersion {
		delete(c.store, key)
		c.dirty = true
		c.misses++
		return nil, false
	}
	e.Timestamp = c.now().UnixNano()
	c.dirty = true
	c.hits++
	return append([]findings.Finding{}, e.Findings...), true
}

// Put stores the findings of a frame for one file and evicts the oldest
// entries above the limit.
func (c *FindingsCache) Put(frameID, filePath, content string, list []findings.Finding) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[Key(frameID, filePath, content)] = &entry{
		Findings:  append([]findings.Finding{}, list...),
		Timestamp: c.now().UnixNano(),
		Schema:    SchemaVersion,
	}
	c.dirty = true
	c.evict()
}

func (c *FindingsCache) evict() {
	if c.maxEntries <= 0 || len(c.store) <= c.maxEntries {
		return
	}
	keys := make([]string, 0, len(c.store))
	for k := range c.store {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.store[keys[i]].Timestamp < c.store[keys[j]].Timestamp
	})
	for _, k := range keys[:len(keys)-c.maxEntries] {
		delete(c.store, k)
	}
}

// Flush writes the cache to disk when it changed.
func (c *FindingsCache) Flush() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if err := files.SaveJSON(c.path, c.store); err != nil {
		return fmt.Errorf("failed to flush findings cache: %w", err)
	}
	c.dirty = false
	c.logger.Debug("findings cache flushed", "entries", len(c.store), "hits", c.hits, "misses", c.misses)
	return nil
}

// Len returns the number of entries.
func (c *FindingsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// HitRate returns hits / lookups, 0 before any lookup.
func (c *FindingsCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Clear removes the cache file.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove findings cache %q: %w", path, err)
	}
	return nil
}
