package cache

import (
	"time"

	"classify-orchestrator/internal/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Defaults used by the batch endpoint. Performance knobs, not correctness
// invariants.
const (
	DefaultMaxEntries = 2000
	DefaultTTL        = 30 * time.Minute
)

// RetrievalCache memoizes candidate lists by normalized title. Entries are
// evicted least-recently-accessed once capacity is reached, and treated as
// absent once their TTL since insertion elapses; whichever triggers first
// wins. A hit refreshes recency, not the TTL. The cache is strictly an
// optimization: absence is the only failure mode it exposes, and callers
// fall through to live retrieval on a miss.
//
// Cached candidate slices are shared, not copied; candidates are read-only
// once produced.
type RetrievalCache struct {
	lru *expirable.LRU[string, []domain.Candidate]
}

// New builds a cache with the given capacity and TTL, substituting the
// defaults for non-positive values. Safe for concurrent use.
func New(maxEntries int, ttl time.Duration) *RetrievalCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RetrievalCache{
		lru: expirable.NewLRU[string, []domain.Candidate](maxEntries, nil, ttl),
	}
}

// Get returns the cached candidate list and whether it was present and
// unexpired.
func (c *RetrievalCache) Get(key string) ([]domain.Candidate, bool) {
	return c.lru.Get(key)
}

// Set stores the candidate list under the normalized-title key.
func (c *RetrievalCache) Set(key string, value []domain.Candidate) {
	c.lru.Add(key, value)
}

// Len reports the number of resident entries.
func (c *RetrievalCache) Len() int {
	return c.lru.Len()
}

var _ domain.CandidateCache = (*RetrievalCache)(nil)
