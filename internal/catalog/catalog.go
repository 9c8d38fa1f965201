package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/tickerfeed/internal/api"
	"github.com/rickgao/tickerfeed/internal/model"
)

// Source fetches the raw market listing.
type Source interface {
	GetAllMarkets(ctx context.Context) ([]api.APIMarket, error)
}

// Catalog caches the market listing with load-once semantics.
type Catalog struct {
	source Source
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	markets  model.Markets
	loaded   bool
	loadedAt time.Time
}

// New creates an empty, unloaded catalog.
func New(source Source, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}

	return &Catalog{
		source:  source,
		logger:  logger,
		markets: model.Markets{},
	}
}

// Load returns the catalog, fetching it first if it has not been loaded.
//
// Failures are logged and yield an empty mapping; the catalog stays unloaded
// so the next call retries. Concurrent callers share one in-flight request.
func (c *Catalog) Load(ctx context.Context) model.Markets {
	c.mu.RLock()
	if c.loaded {
		markets := c.markets
		c.mu.RUnlock()
		return markets
	}
	c.mu.RUnlock()

	v, _, _ := c.group.Do("markets", func() (any, error) {
		return c.fetch(ctx), nil
	})
	return v.(model.Markets)
}

func (c *Catalog) fetch(ctx context.Context) model.Markets {
	// Another caller may have finished loading between the check and Do.
	c.mu.RLock()
	if c.loaded {
		markets := c.markets
		c.mu.RUnlock()
		return markets
	}
	c.mu.RUnlock()

	start := time.Now()
	list, err := c.source.GetAllMarkets(ctx)
	if err != nil {
		c.logger.Error("failed to fetch markets", "error", err)
		return model.Markets{}
	}

	markets := api.ToMarkets(list)

	c.mu.Lock()
	c.markets = markets
	c.loaded = true
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("markets loaded",
		"count", len(markets),
		"duration", time.Since(start),
	)

	return markets
}

// Loaded reports whether a load has succeeded.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// LoadedAt returns when the catalog was loaded (zero if never).
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Markets returns the current mapping without triggering a load.
func (c *Catalog) Markets() model.Markets {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.markets
}

// Lookup returns the entry for code.
func (c *Catalog) Lookup(code string) (model.MarketEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[code]
	return m, ok
}

// DisplayName returns the local name for code, or code itself when unknown
// or unnamed.
func (c *Catalog) DisplayName(code string) string {
	if m, ok := c.Lookup(code); ok && m.LocalName != "" {
		return m.LocalName
	}
	return code
}

// CodesWithPrefix returns every catalog code starting with prefix, sorted.
func (c *Catalog) CodesWithPrefix(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	codes := make([]string, 0, len(c.markets))
	for code := range c.markets {
		if strings.HasPrefix(code, prefix) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
