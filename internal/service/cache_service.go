package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daybook-app/daybook/internal/metrics"
	"github.com/daybook-app/daybook/internal/model"
)

// CacheService implements the in-memory resource cache with per-entry TTLs.
// Expiry is lazy: an entry is checked on read and dropped when stale; there
// is no background sweeper.
type CacheService struct {
	entries map[model.ResourceKey]*cacheEntry
	logger  *zap.Logger
	metrics *metrics.Metrics
	mu      sync.Mutex
	now     func() time.Time // overridable in tests
}

type cacheEntry struct {
	value     interface{}
	fetchedAt time.Time
	ttl       time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(logger *zap.Logger, m *metrics.Metrics) *CacheService {
	return &CacheService{
		entries: make(map[model.ResourceKey]*cacheEntry),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Get retrieves a value from cache. An expired entry is treated identically
// to a miss and is dropped.
func (s *CacheService) Get(key model.ResourceKey) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.entries[key]
	if !found {
		s.metrics.CacheMissesTotal.Inc()
		return nil, false
	}

	if s.now().After(entry.fetchedAt.Add(entry.ttl)) {
		delete(s.entries, key)
		s.metrics.CacheMissesTotal.Inc()
		s.metrics.CacheEntriesTotal.Set(float64(len(s.entries)))
		return nil, false
	}

	s.metrics.CacheHitsTotal.Inc()
	return entry.value, true
}

// Set stores a value under key with the given TTL
func (s *CacheService) Set(key model.ResourceKey, value interface{}, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &cacheEntry{
		value:     value,
		fetchedAt: s.now(),
		ttl:       ttl,
	}
	s.metrics.CacheEntriesTotal.Set(float64(len(s.entries)))
}

// Invalidate drops the entry for an exact key
func (s *CacheService) Invalidate(key model.ResourceKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.entries[key]; found {
		delete(s.entries, key)
		s.metrics.CacheInvalidationsTotal.Inc()
		s.metrics.CacheEntriesTotal.Set(float64(len(s.entries)))
	}
}

// InvalidateCollection drops every entry belonging to the collection, the
// listing entry included. Callers must invoke this after any write to the
// collection performed outside the facade.
func (s *CacheService) InvalidateCollection(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for key := range s.entries {
		if key.HasPrefix(collection) {
			delete(s.entries, key)
			dropped++
		}
	}
	if dropped > 0 {
		s.metrics.CacheInvalidationsTotal.Add(float64(dropped))
		s.metrics.CacheEntriesTotal.Set(float64(len(s.entries)))
		s.logger.Debug("Invalidated collection cache entries",
			zap.String("collection", collection),
			zap.Int("dropped", dropped))
	}
}

// Len reports the current number of entries, expired ones included.
func (s *CacheService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
