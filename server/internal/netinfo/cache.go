package netinfo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/railyard/railyard/pkg/types"
)

// Entry is a scan result together with the time it was taken.
type Entry struct {
	Results   []types.ScanResult
	UpdatedAt time.Time
}

// Cache is a thread-safe scan cache in front of a Scanner. Radio scans are
// slow and block the interface, so results are reused for the TTL. A
// background goroutine (Run) evicts results older than the TTL.
type Cache struct {
	scanner Scanner
	ttl     time.Duration
	now     func() time.Time // injectable for deterministic tests

	mu    sync.RWMutex
	entry *Entry
	// scanMu keeps concurrent callers from starting parallel scans.
	scanMu sync.Mutex
}

// NewCache wraps scanner with the given TTL.
func NewCache(scanner Scanner, ttl time.Duration) *Cache {
	return &Cache{scanner: scanner, ttl: ttl, now: time.Now}
}

// Scan returns cached results when they are younger than the TTL and scans
// otherwise.
func (c *Cache) Scan(ctx context.Context) ([]types.ScanResult, error) {
	if e, ok := c.fresh(); ok {
		return e.Results, nil
	}
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	// Another caller may have scanned while we waited.
	if e, ok := c.fresh(); ok {
		return e.Results, nil
	}

	results, err := c.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entry = &Entry{Results: results, UpdatedAt: c.now()}
	c.mu.Unlock()
	return results, nil
}

// Get returns the cached entry, which may be stale if the TTL has elapsed.
func (c *Cache) Get() (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry, c.entry != nil
}

func (c *Cache) fresh() (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil || !c.entry.UpdatedAt.After(c.now().Add(-c.ttl)) {
		return nil, false
	}
	return c.entry, true
}

// Evict drops the entry when it is older than now minus TTL and reports
// whether it did.
func (c *Cache) Evict(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil || c.entry.UpdatedAt.After(now.Add(-c.ttl)) {
		return false
	}
	c.entry = nil
	return true
}

// Run starts the background eviction loop. It ticks at half the TTL interval
// (minimum 1 second) and blocks until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if c.Evict(now) {
				slog.Debug("netinfo: evicted stale scan")
			}
		}
	}
}
