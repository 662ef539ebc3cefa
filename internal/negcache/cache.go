// Package negcache persists paper ids whose abstracts are known to be
// unavailable, so enrichment passes skip them until the entry expires.
package negcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/observability"
)

const (
	// blobKey is the single namespaced record holding every entry.
	blobKey = "abstracts_unavailable"

	// DefaultExpirationDays is how long a negative result is trusted.
	DefaultExpirationDays = 30
)

// Entry records one paper whose abstract could not be obtained.
type Entry struct {
	PaperID        string    `json:"paperId"`
	Timestamp      time.Time `json:"timestamp"`
	ExpirationDays int       `json:"expirationDays"`
}

// expired reports whether the entry is past its per-entry TTL.
func (e Entry) expired(now time.Time) bool {
	days := e.ExpirationDays
	if days <= 0 {
		days = DefaultExpirationDays
	}
	return now.After(e.Timestamp.Add(time.Duration(days) * 24 * time.Hour))
}

// Config holds cache settings.
type Config struct {
	// Path is the badger directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps the database off disk, for tests.
	InMemory bool
	// ExpirationDays overrides the default TTL for new entries.
	ExpirationDays int
}

// Cache is a badger-backed negative-result cache. All entries live in a
// single JSON blob under blobKey; the working set is a few hundred ids at
// most, so whole-blob rewrites are cheaper than per-key bookkeeping.
type Cache struct {
	db      *badger.DB
	ttlDays int
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu sync.Mutex
}

// Open opens (and creates, if needed) the cache database.
func Open(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) (*Cache, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("negcache: path is required for a persistent cache")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("negcache: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("negcache: open database: %w", err)
	}

	ttl := cfg.ExpirationDays
	if ttl <= 0 {
		ttl = DefaultExpirationDays
	}

	return &Cache{
		db:      db,
		ttlDays: ttl,
		logger:  logger.With().Str("component", "negcache").Logger(),
		metrics: metrics,
	}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// MarkUnavailable records that a paper's abstract could not be obtained.
// Marking an already-present id refreshes its timestamp.
func (c *Cache) MarkUnavailable(ctx context.Context, paperID string) error {
	if paperID == "" {
		return errors.New("negcache: paper id is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(ctx)
	if err != nil {
		return err
	}

	entries[paperID] = Entry{
		PaperID:        paperID,
		Timestamp:      time.Now().UTC(),
		ExpirationDays: c.ttlDays,
	}
	if err := c.save(entries); err != nil {
		return err
	}

	c.logger.Debug().Str("paper_id", paperID).Int("entries", len(entries)).
		Msg("marked abstract unavailable")
	c.gaugeEntries(len(entries))
	return nil
}

// IsUnavailable reports whether a non-expired negative entry exists for the
// paper. An expired entry is evicted on read.
func (c *Cache) IsUnavailable(ctx context.Context, paperID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(ctx)
	if err != nil {
		return false, err
	}

	entry, ok := entries[paperID]
	if !ok {
		return false, nil
	}
	if entry.expired(time.Now().UTC()) {
		delete(entries, paperID)
		if err := c.save(entries); err != nil {
			return false, err
		}
		c.gaugeEntries(len(entries))
		return false, nil
	}

	if c.metrics != nil {
		c.metrics.NegativeCacheHits.Inc()
	}
	return true, nil
}

// SweepExpired removes every expired entry and returns how many were removed.
// Intended to run once at process start.
func (c *Cache) SweepExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	removed := 0
	for id, entry := range entries {
		if entry.expired(now) {
			delete(entries, id)
			removed++
		}
	}
	if removed > 0 {
		if err := c.save(entries); err != nil {
			return 0, err
		}
		c.logger.Info().Int("removed", removed).Int("remaining", len(entries)).
			Msg("swept expired negative entries")
	}
	c.gaugeEntries(len(entries))
	return removed, nil
}

// Size returns the number of stored entries, expired ones included.
func (c *Cache) Size(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (c *Cache) load(ctx context.Context) (map[string]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make(map[string]Entry)
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blobKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entries)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("negcache: load entries: %w", err)
	}
	return entries, nil
}

func (c *Cache) save(entries map[string]Entry) error {
	blob, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("negcache: encode entries: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(blobKey), blob)
	})
	if err != nil {
		return fmt.Errorf("negcache: store entries: %w", err)
	}
	return nil
}

func (c *Cache) gaugeEntries(n int) {
	if c.metrics != nil {
		c.metrics.NegativeCacheEntries.Set(float64(n))
	}
}
