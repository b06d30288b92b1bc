package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gatherspace/server/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(config.CacheConfig{
		TTL:             time.Minute,
		CleanupInterval: time.Minute,
	}, zerolog.Nop())
}

func TestSetGet(t *testing.T) {
	store := newTestStore(t)

	store.Set("analytics:overview", 42)

	value, found := store.Get("analytics:overview")
	require.True(t, found)
	require.Equal(t, 42, value)
}

func TestGetMiss(t *testing.T) {
	store := newTestStore(t)

	_, found := store.Get("analytics:overview")
	require.False(t, found)
}

func TestInvalidatePrefix(t *testing.T) {
	store := newTestStore(t)

	store.Set("analytics:overview", 1)
	store.Set("analytics:registrations:month", 2)
	store.Set("events:list", 3)

	dropped := store.InvalidatePrefix("analytics:")
	require.Equal(t, 2, dropped)

	_, found := store.Get("analytics:overview")
	require.False(t, found)
	_, found = store.Get("analytics:registrations:month")
	require.False(t, found)

	_, found = store.Get("events:list")
	require.True(t, found)
}

func TestGetOrCompute(t *testing.T) {
	store := newTestStore(t)

	calls := 0
	compute := func(ctx context.Context) (interface{}, error) {
		calls++
		return "computed", nil
	}

	value, err := store.GetOrCompute(context.Background(), "analytics:overview", compute)
	require.NoError(t, err)
	require.Equal(t, "computed", value)
	require.Equal(t, 1, calls)

	// Second call served from cache
	value, err = store.GetOrCompute(context.Background(), "analytics:overview", compute)
	require.NoError(t, err)
	require.Equal(t, "computed", value)
	require.Equal(t, 1, calls)
}

func TestGetOrComputeError(t *testing.T) {
	store := newTestStore(t)

	wantErr := errors.New("query failed")
	_, err := store.GetOrCompute(context.Background(), "analytics:overview", func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	// Errors are not cached
	_, found := store.Get("analytics:overview")
	require.False(t, found)
}

func TestGetOrComputeSharedFlight(t *testing.T) {
	store := newTestStore(t)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.GetOrCompute(context.Background(), "analytics:overview", compute)
		}(i)
	}

	// Give the goroutines a moment to pile onto the same flight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, "shared", results[i])
	}
}

func TestDeleteAndFlush(t *testing.T) {
	store := newTestStore(t)

	store.Set("a:1", 1)
	store.Set("b:2", 2)

	store.Delete("a:1")
	_, found := store.Get("a:1")
	require.False(t, found)

	store.Flush()
	_, found = store.Get("b:2")
	require.False(t, found)
}
