package cache

import (
	"context"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/metrics"
)

// Store is an in-memory TTL cache shared by read-heavy endpoints.
// Keys are namespaced with a colon-separated prefix ("analytics:overview")
// so whole groups can be invalidated after a write.
type Store struct {
	inner  *gocache.Cache
	group  singleflight.Group
	logger zerolog.Logger
}

func New(cfg config.CacheConfig, logger zerolog.Logger) *Store {
	return &Store{
		inner:  gocache.New(cfg.TTL, cfg.CleanupInterval),
		logger: config.Component(logger, "cache"),
	}
}

// Get returns the cached value for key if present and not expired.
func (s *Store) Get(key string) (interface{}, bool) {
	value, found := s.inner.Get(key)
	if found {
		metrics.CacheHitsTotal.WithLabelValues(keyPrefix(key)).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(keyPrefix(key)).Inc()
	}
	return value, found
}

// Set stores value under key with the default TTL.
func (s *Store) Set(key string, value interface{}) {
	s.inner.SetDefault(key, value)
}

// Delete removes a single key.
func (s *Store) Delete(key string) {
	s.inner.Delete(key)
	metrics.CacheInvalidationsTotal.WithLabelValues(keyPrefix(key)).Inc()
}

// InvalidatePrefix removes every key starting with prefix and returns the
// number of entries dropped. Writers call this after mutating data that
// feeds cached reads.
func (s *Store) InvalidatePrefix(prefix string) int {
	dropped := 0
	for key := range s.inner.Items() {
		if strings.HasPrefix(key, prefix) {
			s.inner.Delete(key)
			dropped++
		}
	}
	if dropped > 0 {
		metrics.CacheInvalidationsTotal.WithLabelValues(keyPrefix(prefix)).Add(float64(dropped))
		s.logger.Debug().Str("prefix", prefix).Int("dropped", dropped).Msg("cache invalidated")
	}
	return dropped
}

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss. Concurrent callers for the same key share a single compute.
func (s *Store) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (interface{}, error)) (interface{}, error) {
	if value, found := s.Get(key); found {
		return value, nil
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight lock so a compute that finished while
		// we queued is not repeated.
		if cached, found := s.inner.Get(key); found {
			return cached, nil
		}
		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		s.inner.SetDefault(key, computed)
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Flush drops every cached entry.
func (s *Store) Flush() {
	s.inner.Flush()
}

func keyPrefix(key string) string {
	if idx := strings.Index(key, ":"); idx > 0 {
		return key[:idx]
	}
	return key
}
