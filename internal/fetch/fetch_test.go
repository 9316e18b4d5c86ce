package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/l0p7/dreamcache/internal/cache"
	"github.com/l0p7/dreamcache/internal/metrics"
	"github.com/l0p7/dreamcache/internal/storage"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeBackend struct {
	dreamCalls  atomic.Int32
	todayCalls  atomic.Int32
	detailCalls atomic.Int32
	fail        atomic.Bool
	release     chan struct{}

	dreams []cache.Dream
}

var errBackendDown = errors.New("backend unavailable")

func (b *fakeBackend) ListDreams(ctx context.Context) ([]cache.Dream, error) {
	b.dreamCalls.Add(1)
	if b.release != nil {
		<-b.release
	}
	if b.fail.Load() {
		return nil, errBackendDown
	}
	return b.dreams, nil
}

func (b *fakeBackend) ListTodayOccurrences(ctx context.Context) ([]cache.Occurrence, error) {
	b.todayCalls.Add(1)
	if b.fail.Load() {
		return nil, errBackendDown
	}
	return []cache.Occurrence{{ID: "o1", Title: "Stretch", DueOn: "2026-10-19"}}, nil
}

func (b *fakeBackend) GetProgress(ctx context.Context) (cache.Progress, error) {
	if b.fail.Load() {
		return cache.Progress{}, errBackendDown
	}
	return cache.Progress{CompletedToday: 1, PlannedToday: 2}, nil
}

func (b *fakeBackend) GetDreamDetail(ctx context.Context, dreamID string) (cache.DreamDetail, error) {
	b.detailCalls.Add(1)
	if b.fail.Load() {
		return cache.DreamDetail{}, errBackendDown
	}
	return cache.DreamDetail{Dream: cache.Dream{ID: dreamID, Title: "Dream " + dreamID}}, nil
}

func newTestSource(t *testing.T) (*Source, *fakeBackend, *clock, *cache.Store) {
	t.Helper()
	clk := &clock{now: time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)}
	store := cache.New(storage.NewMemory(), cache.Options{Now: clk.Now})
	backend := &fakeBackend{dreams: []cache.Dream{{ID: "d1", Title: "Write a novel"}}}
	return NewSource(New(store, nil, metrics.NewRecorder(nil)), backend), backend, clk, store
}

func TestResolveFetchesThenServesFreshCache(t *testing.T) {
	ctx := context.Background()
	src, backend, clk, _ := newTestSource(t)

	first, err := src.Dreams(ctx)
	require.NoError(t, err)
	require.False(t, first.FromCache)
	require.Equal(t, "Write a novel", first.Data[0].Title)
	require.Equal(t, clk.Now().UnixMilli(), first.FetchedAt)

	clk.Advance(4 * time.Minute)
	second, err := src.Dreams(ctx)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, first.Data, second.Data)
	require.Equal(t, int32(1), backend.dreamCalls.Load())
}

func TestResolveRefetchesWhenStale(t *testing.T) {
	ctx := context.Background()
	src, backend, clk, _ := newTestSource(t)

	_, err := src.Today(ctx)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	res, err := src.Today(ctx)
	require.NoError(t, err)
	require.True(t, res.FromCache, "exactly at ttl is fresh")

	clk.Advance(time.Millisecond)
	res, err = src.Today(ctx)
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, int32(2), backend.todayCalls.Load())
}

func TestResolveForceBypassesFreshness(t *testing.T) {
	ctx := context.Background()
	src, backend, _, _ := newTestSource(t)

	_, err := src.Dreams(ctx)
	require.NoError(t, err)
	res, err := src.Dreams(ctx, WithForce())
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, int32(2), backend.dreamCalls.Load())
}

func TestResolveServesStaleWhenBackendFails(t *testing.T) {
	ctx := context.Background()
	src, backend, clk, _ := newTestSource(t)

	fresh, err := src.Dreams(ctx)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	backend.fail.Store(true)
	res, err := src.Dreams(ctx)
	require.NoError(t, err)
	require.True(t, res.Stale)
	require.True(t, res.FromCache)
	require.Equal(t, fresh.FetchedAt, res.FetchedAt)
}

func TestResolveReturnsErrorWithoutCache(t *testing.T) {
	src, backend, _, _ := newTestSource(t)
	backend.fail.Store(true)

	_, err := src.Progress(context.Background())
	require.ErrorIs(t, err, errBackendDown)
}

func TestResolveDeduplicatesConcurrentFetches(t *testing.T) {
	ctx := context.Background()
	src, backend, _, _ := newTestSource(t)
	backend.release = make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan Result[[]cache.Dream], callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := src.Dreams(ctx)
			if err == nil {
				results <- res
			}
		}()
	}

	require.Eventually(t, func() bool { return backend.dreamCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()
	close(results)

	count := 0
	for res := range results {
		require.Len(t, res.Data, 1)
		count++
	}
	require.Equal(t, callers, count)
	require.Equal(t, int32(1), backend.dreamCalls.Load())
}

func TestResolveCallerCancellationLeavesFlightRunning(t *testing.T) {
	src, backend, _, store := newTestSource(t)
	backend.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := src.Dreams(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return backend.dreamCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(backend.release)
	require.Eventually(t, func() bool {
		_, ok := cache.Load[cache.DreamsPayload](context.Background(), store, cache.KeyDreams)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestDreamDetailUsesPerDreamSlots(t *testing.T) {
	ctx := context.Background()
	src, backend, _, store := newTestSource(t)

	abc, err := src.DreamDetail(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", abc.Data.Dream.ID)
	_, err = src.DreamDetail(ctx, "xyz")
	require.NoError(t, err)
	_, err = src.DreamDetail(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, int32(2), backend.detailCalls.Load())

	stored, ok := cache.Load[cache.DreamDetailPayload](ctx, store, cache.DreamDetailKey("xyz"))
	require.True(t, ok)
	require.Equal(t, "Dream xyz", stored.Data.Dream.Title)

	_, err = src.DreamDetail(ctx, "")
	require.Error(t, err)
}

func TestDreamChangedInvalidatesListAndDetail(t *testing.T) {
	ctx := context.Background()
	src, backend, _, store := newTestSource(t)

	_, err := src.Dreams(ctx)
	require.NoError(t, err)
	_, err = src.DreamDetail(ctx, "abc")
	require.NoError(t, err)

	src.DreamChanged(ctx, "abc")
	_, ok := cache.Load[cache.DreamsPayload](ctx, store, cache.KeyDreams)
	require.False(t, ok)
	_, ok = cache.Load[cache.DreamDetailPayload](ctx, store, cache.DreamDetailKey("abc"))
	require.False(t, ok)

	_, err = src.Dreams(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(2), backend.dreamCalls.Load())
}

func TestLogoutClearsCache(t *testing.T) {
	ctx := context.Background()
	src, _, _, store := newTestSource(t)

	_, err := src.Dreams(ctx)
	require.NoError(t, err)
	_, err = src.Today(ctx)
	require.NoError(t, err)
	_, err = src.DreamDetail(ctx, "abc")
	require.NoError(t, err)

	require.NoError(t, src.Logout(ctx))
	for _, key := range []string{cache.KeyDreams, cache.KeyToday, cache.DreamDetailKey("abc")} {
		_, ok := cache.Load[map[string]any](ctx, store, key)
		require.False(t, ok, "expected %s cleared", key)
	}
}

func TestLogoutDiscardsInFlightResults(t *testing.T) {
	src, backend, _, store := newTestSource(t)
	backend.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = src.Dreams(context.Background())
	}()
	require.Eventually(t, func() bool { return backend.dreamCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, src.Logout(context.Background()))
	close(backend.release)
	<-done

	_, ok := cache.Load[cache.DreamsPayload](context.Background(), store, cache.KeyDreams)
	require.False(t, ok, "a fetch started before logout must not repopulate the cache")
}
