// Package trends supplies ambient trending-topic strings used to
// enrich the assistant's prompt. Topics come from an external source
// (an RSS/Atom feed or an HTML page) and are cached with a TTL so the
// source is hit at most a few times a day.
package trends

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTTL is how long a snapshot stays fresh.
const DefaultTTL = 24 * time.Hour

// DefaultMaxItems caps how many topics are injected into the prompt.
const DefaultMaxItems = 10

// Source fetches the current topic list from an external origin.
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// Snapshot is one cached fetch result.
type Snapshot struct {
	FetchedAt time.Time
	Items     []string
}

// Cache serves topics from the last-good snapshot, refreshing when the
// snapshot's age exceeds the TTL. A failed refresh keeps the previous
// snapshot, so callers keep seeing topics during an outage. Concurrent callers
// during a stale window may both refresh; the extra fetch is harmless
// and cheaper than single-flight coordination.
type Cache struct {
	source   Source
	ttl      time.Duration
	maxItems int
	logger   *slog.Logger

	mu   sync.Mutex
	snap *Snapshot

	// now is swappable for tests.
	now func() time.Time
}

// NewCache creates a topic cache. Non-positive ttl and maxItems use
// the defaults.
func NewCache(source Source, ttl time.Duration, maxItems int, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source:   source,
		ttl:      ttl,
		maxItems: maxItems,
		logger:   logger,
		now:      time.Now,
	}
}

// Topics returns the current topic list. Never returns an error: a
// refresh failure falls back to the last-good snapshot, or an empty
// list when nothing has ever been fetched.
func (c *Cache) Topics(ctx context.Context) []string {
	c.mu.Lock()
	snap := c.snap
	fresh := snap != nil && c.now().Sub(snap.FetchedAt) <= c.ttl
	c.mu.Unlock()

	if fresh {
		return snap.Items
	}

	items, err := c.source.Fetch(ctx)
	if err != nil {
		if snap != nil {
			c.logger.Warn("trend refresh failed, serving stale snapshot",
				"age", c.now().Sub(snap.FetchedAt),
				"error", err,
			)
			return snap.Items
		}
		c.logger.Warn("trend refresh failed with no cached snapshot", "error", err)
		return []string{}
	}

	if len(items) > c.maxItems {
		items = items[:c.maxItems]
	}

	c.mu.Lock()
	c.snap = &Snapshot{FetchedAt: c.now(), Items: items}
	c.mu.Unlock()

	c.logger.Debug("trend snapshot refreshed", "items", len(items))
	return items
}
