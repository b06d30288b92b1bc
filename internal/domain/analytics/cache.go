package analytics

import "github.com/gatherspace/server/internal/cache"

// CachePrefix namespaces every analytics cache entry so writers can drop
// them all with one prefix invalidation.
const CachePrefix = "analytics:"

const (
	overviewCacheKey      = CachePrefix + "overview"
	registrationsCacheKey = CachePrefix + "registrations"
	programsCacheKey      = CachePrefix + "programs"
)

// Invalidate drops all cached analytics aggregates. Mutating services call
// this after any write that feeds the dashboards.
func Invalidate(store *cache.Store) {
	if store == nil {
		return
	}
	store.InvalidatePrefix(CachePrefix)
}
