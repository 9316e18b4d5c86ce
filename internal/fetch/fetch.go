// Package fetch is the read-through layer between screens and the remote
// backend: it answers from the cache while a payload is fresh, refetches when
// it is stale, and falls back to the stale copy when the backend is down.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/l0p7/dreamcache/internal/cache"
	"github.com/l0p7/dreamcache/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Result is what a screen renders: the data plus where it came from.
type Result[T any] struct {
	Data      T
	FetchedAt int64
	FromCache bool
	// Stale is set when the backend failed and an expired payload was served.
	Stale bool
}

type options struct {
	force bool
}

// Option tunes a single Resolve call.
type Option func(*options)

// WithForce skips the freshness check, as a pull-to-refresh does.
func WithForce() Option {
	return func(o *options) { o.force = true }
}

// Fetcher shares one in-flight backend call per key across concurrent callers.
type Fetcher struct {
	store   *cache.Store
	logger  *slog.Logger
	metrics *metrics.Recorder

	group singleflight.Group
	// gen bumps on Logout so flights started before it neither repopulate
	// the cache nor serve later callers.
	mu  sync.Mutex
	gen uint64
}

// New builds a Fetcher over store.
func New(store *cache.Store, logger *slog.Logger, rec *metrics.Recorder) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		store:   store,
		logger:  logger.With(slog.String("agent", "fetch")),
		metrics: rec,
	}
}

// Store exposes the cache handle the fetcher reads through.
func (f *Fetcher) Store() *cache.Store {
	return f.store
}

// Resolve returns the payload under key, calling load only when the cached
// copy is missing, stale or bypassed with WithForce. A caller whose ctx ends
// gets ctx.Err(); the shared backend call keeps running and still lands in
// the cache.
func Resolve[T any](ctx context.Context, f *Fetcher, key string, load func(context.Context) (T, error), opts ...Option) (Result[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	kind := cache.KeyKind(key)

	cached, hit := cache.Load[cache.Payload[T]](ctx, f.store, key)
	if hit && !o.force && !f.store.StaleFor(key, cached.FetchedAt) {
		f.metrics.ObserveFetch(kind, metrics.FetchSourceCache)
		return Result[T]{Data: cached.Data, FetchedAt: cached.FetchedAt, FromCache: true}, nil
	}

	gen := f.generation()
	ch := f.group.DoChan(flightKey(gen, key), func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)
		data, err := load(flightCtx)
		if err != nil {
			return nil, err
		}
		payload := cache.NewPayload(data, f.store.Now())
		if f.generation() == gen {
			f.store.Save(flightCtx, key, payload)
		}
		return payload, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		if hit {
			f.metrics.ObserveFetch(kind, metrics.FetchSourceStale)
			f.logger.Warn("backend fetch failed, serving stale payload",
				slog.String("key", key), slog.String("last_synced", f.store.LastSynced(cached.FetchedAt)), slog.Any("error", res.Err))
			return Result[T]{Data: cached.Data, FetchedAt: cached.FetchedAt, FromCache: true, Stale: true}, nil
		}
		f.metrics.ObserveFetch(kind, metrics.FetchSourceError)
		return Result[T]{}, fmt.Errorf("fetch: %s: %w", kind, res.Err)
	}

	payload, ok := res.Val.(cache.Payload[T])
	if !ok {
		f.metrics.ObserveFetch(kind, metrics.FetchSourceError)
		return Result[T]{}, fmt.Errorf("fetch: %s: shared result has type %T", kind, res.Val)
	}
	f.metrics.ObserveFetch(kind, metrics.FetchSourceNetwork)
	if res.Shared {
		f.logger.Debug("joined in-flight fetch", slog.String("key", key))
	}
	return Result[T]{Data: payload.Data, FetchedAt: payload.FetchedAt}, nil
}

// Invalidate drops the cached payload for key so the next Resolve refetches.
func (f *Fetcher) Invalidate(ctx context.Context, key string) {
	f.group.Forget(flightKey(f.generation(), key))
	f.store.Remove(ctx, key)
}

// Logout clears every cached slot. Backend calls already in flight complete
// but no longer write their results, and later callers never join them.
func (f *Fetcher) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.gen++
	f.mu.Unlock()
	if err := f.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("fetch: logout: %w", err)
	}
	f.logger.Info("cache cleared on logout")
	return nil
}

// flightKey scopes in-flight calls to the session generation.
func flightKey(gen uint64, key string) string {
	return strconv.FormatUint(gen, 10) + "/" + key
}

func (f *Fetcher) generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}
