package accessguard

import (
	"strings"

	"github.com/dgraph-io/ristretto"
)

// ============================================================================
// DECISION CACHE
// ============================================================================

// decisionCacheDefaults mirror EngineConfig zero values.
const (
	defaultCacheNumCounters = 100_000
	defaultCacheMaxCost     = 10_000
	defaultCacheBuffer      = 64
)

// DecisionCache memoizes resolved decision objects per identity scope.
// Any admin mutation flushes the whole cache: decisions are cheap to
// rebuild and coarse invalidation keeps the store writes simple.
type DecisionCache struct {
	cache *ristretto.Cache
}

// NewDecisionCache builds a cache sized from the engine config. Zero or
// negative knobs fall back to defaults.
func NewDecisionCache(numCounters, maxCost, buffer int64) (*DecisionCache, error) {
	if numCounters <= 0 {
		numCounters = defaultCacheNumCounters
	}
	if maxCost <= 0 {
		maxCost = defaultCacheMaxCost
	}
	if buffer <= 0 {
		buffer = defaultCacheBuffer
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: buffer,
	})
	if err != nil {
		return nil, err
	}
	return &DecisionCache{cache: c}, nil
}

// decisionKey builds the cache key for one decision scope. Model is
// empty for global-scope decisions. The NUL separator cannot appear in
// identifiers coming from the stores.
func decisionKey(kind DecisionKind, id Identity, model string) string {
	parts := []string{string(kind), id.UserID, id.CompanyID, model}
	return strings.Join(parts, "\x00")
}

func (c *DecisionCache) get(key string) (any, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *DecisionCache) set(key string, value any) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Set(key, value, 1)
}

// Wait blocks until pending writes are applied. Admission is
// asynchronous, so callers that need read-after-write visibility call
// this between Set and Get.
func (c *DecisionCache) Wait() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Wait()
}

// InvalidateAll drops every cached decision.
func (c *DecisionCache) InvalidateAll() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Clear()
}

// Close releases the cache goroutines.
func (c *DecisionCache) Close() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Close()
}
