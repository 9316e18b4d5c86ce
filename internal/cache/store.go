// Package cache persists typed payload envelopes in durable storage and
// answers freshness questions about them. Storage failures never reach the
// caller: a read that cannot produce a payload is a miss, and a write that
// cannot land is logged and dropped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/l0p7/dreamcache/internal/metrics"
	"github.com/l0p7/dreamcache/internal/storage"
)

// Options carries the collaborators a Store needs. Zero values are usable.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Policy  Policy
	Labeler *Labeler
	// Now overrides the clock used for staleness and stamping.
	Now func() time.Time
}

// Store is the handle every consumer of cached data shares. It is safe for
// concurrent use; same-key writers are last-writer-wins and ClearAll is not
// ordered against in-flight saves.
type Store struct {
	storage  storage.Storage
	lister   storage.KeyLister
	registry *keyRegistry

	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	policy  atomic.Pointer[Policy]
	labeler atomic.Pointer[Labeler]
}

// New wraps backend. When backend cannot enumerate keys, the store falls
// back to tracking the dynamic keys it writes.
func New(backend storage.Storage, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	policy := opts.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}

	s := &Store{
		storage: backend,
		logger:  logger.With(slog.String("agent", "cache_store")),
		metrics: opts.Metrics,
		now:     now,
	}
	if lister, ok := backend.(storage.KeyLister); ok {
		s.lister = lister
	} else {
		s.registry = newKeyRegistry()
	}
	s.policy.Store(&policy)
	labeler := opts.Labeler
	if labeler == nil {
		labeler = defaultLabeler
	}
	s.labeler.Store(labeler)
	return s
}

type lookupOutcome string

const (
	lookupHit   lookupOutcome = "hit"
	lookupMiss  lookupOutcome = "miss"
	lookupError lookupOutcome = "error"
)

// lookupResult keeps the distinction callers never see.
type lookupResult struct {
	outcome lookupOutcome
	raw     string
	err     error
}

func (s *Store) lookup(ctx context.Context, key string) lookupResult {
	raw, ok, err := s.storage.Get(ctx, key)
	switch {
	case err != nil:
		return lookupResult{outcome: lookupError, err: fmt.Errorf("cache: read %s: %w", key, err)}
	case !ok:
		return lookupResult{outcome: lookupMiss}
	default:
		return lookupResult{outcome: lookupHit, raw: raw}
	}
}

// Load reads and decodes the value stored under key. Absent keys, corrupt
// values and storage errors all report ok=false.
func Load[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T
	started := time.Now()

	res := s.lookup(ctx, key)
	if res.outcome == lookupHit {
		var value T
		if err := json.Unmarshal([]byte(res.raw), &value); err != nil {
			res = lookupResult{outcome: lookupError, err: fmt.Errorf("cache: decode %s: %w", key, err)}
		} else {
			s.finishLoad(key, res, started)
			return value, true
		}
	}
	s.finishLoad(key, res, started)
	return zero, false
}

func (s *Store) finishLoad(key string, res lookupResult, started time.Time) {
	switch res.outcome {
	case lookupHit:
		s.metrics.ObserveCache(metrics.CacheOperationLoad, metrics.CacheResultHit, time.Since(started))
		s.logger.Debug("cache hit", slog.String("key", key))
	case lookupMiss:
		s.metrics.ObserveCache(metrics.CacheOperationLoad, metrics.CacheResultMiss, time.Since(started))
		s.logger.Debug("cache miss", slog.String("key", key))
	default:
		s.metrics.ObserveCache(metrics.CacheOperationLoad, metrics.CacheResultError, time.Since(started))
		s.logger.Warn("cache read failed, treating as miss", slog.String("key", key), slog.Any("error", res.err))
	}
}

// Save encodes value and writes it under key, replacing any previous value.
// Failures are logged and counted, never returned.
func (s *Store) Save(ctx context.Context, key string, value any) {
	started := time.Now()
	encoded, err := json.Marshal(value)
	if err != nil {
		s.saveFailed(key, fmt.Errorf("cache: encode %s: %w", key, err), started)
		return
	}
	if err := s.storage.Set(ctx, key, string(encoded)); err != nil {
		s.saveFailed(key, fmt.Errorf("cache: write %s: %w", key, err), started)
		return
	}
	if s.registry != nil && IsDreamDetailKey(key) {
		s.registry.add(key)
	}
	s.metrics.ObserveCache(metrics.CacheOperationSave, metrics.CacheResultOK, time.Since(started))
	s.logger.Debug("cache saved", slog.String("key", key), slog.Int("bytes", len(encoded)))
}

func (s *Store) saveFailed(key string, err error, started time.Time) {
	s.metrics.ObserveCache(metrics.CacheOperationSave, metrics.CacheResultError, time.Since(started))
	s.logger.Warn("cache write dropped", slog.String("key", key), slog.Any("error", err))
}

// Remove drops a single slot. Failures are logged, never returned.
func (s *Store) Remove(ctx context.Context, key string) {
	started := time.Now()
	if err := s.storage.Remove(ctx, key); err != nil {
		s.metrics.ObserveCache(metrics.CacheOperationRemove, metrics.CacheResultError, time.Since(started))
		s.logger.Warn("cache remove failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if s.registry != nil {
		s.registry.remove(key)
	}
	s.metrics.ObserveCache(metrics.CacheOperationRemove, metrics.CacheResultOK, time.Since(started))
}

// ClearAll removes the static slots and every dream detail slot. Keys outside
// those namespaces are left alone. Every slot is attempted; the returned error
// joins whatever could not be listed or removed.
func (s *Store) ClearAll(ctx context.Context) error {
	started := time.Now()
	var errs []error

	keys := StaticKeys()
	dynamic, err := s.dynamicKeys(ctx)
	if err != nil {
		errs = append(errs, err)
		s.logger.Warn("cache key enumeration failed", slog.Any("error", err))
	}
	keys = append(keys, dynamic...)

	removed := 0
	for _, key := range keys {
		if err := s.storage.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("cache: remove %s: %w", key, err))
			s.logger.Warn("cache clear could not remove key", slog.String("key", key), slog.Any("error", err))
			continue
		}
		if s.registry != nil {
			s.registry.remove(key)
		}
		removed++
	}

	result := metrics.CacheResultOK
	if len(errs) > 0 {
		result = metrics.CacheResultError
	}
	s.metrics.ObserveCache(metrics.CacheOperationClear, result, time.Since(started))
	s.logger.Info("cache cleared", slog.Int("removed", removed), slog.Int("detail_keys", len(dynamic)), slog.Int("failures", len(errs)))
	return errors.Join(errs...)
}

func (s *Store) dynamicKeys(ctx context.Context) ([]string, error) {
	if s.lister == nil {
		return s.registry.withPrefix(DreamDetailPrefix), nil
	}
	keys, err := s.lister.Keys(ctx, DreamDetailPrefix)
	if err != nil {
		return nil, fmt.Errorf("cache: list detail keys: %w", err)
	}
	return keys, nil
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// IsStale is the package IsStale evaluated against the store's clock.
func (s *Store) IsStale(fetchedAt int64, ttl time.Duration) bool {
	return isStaleAt(fetchedAt, ttl, s.now())
}

// StaleFor evaluates fetchedAt under the tier assigned to key and records the verdict.
func (s *Store) StaleFor(key string, fetchedAt int64) bool {
	tier := TierForKey(key)
	stale := s.IsStale(fetchedAt, s.TTL(tier))
	s.metrics.ObserveFreshness(string(tier), stale)
	return stale
}

// TTL returns the current duration for tier.
func (s *Store) TTL(tier Tier) time.Duration {
	return s.policy.Load().TTL(tier)
}

// Policy returns the tier durations in effect.
func (s *Store) Policy() Policy {
	return *s.policy.Load()
}

// SetPolicy swaps the tier durations. Stored payloads are unaffected.
func (s *Store) SetPolicy(policy Policy) {
	s.policy.Store(&policy)
	s.logger.Info("cache ttl policy updated",
		slog.Duration("short", policy.Short),
		slog.Duration("medium", policy.Medium),
		slog.Duration("long", policy.Long))
}

// SetLabeler swaps the last-synced label renderer.
func (s *Store) SetLabeler(labeler *Labeler) {
	if labeler == nil {
		labeler = defaultLabeler
	}
	s.labeler.Store(labeler)
}

// LastSynced renders fetchedAt with the store's labeler.
func (s *Store) LastSynced(fetchedAt int64) string {
	return s.labeler.Load().Label(fetchedAt)
}

// Close releases the underlying storage.
func (s *Store) Close(ctx context.Context) error {
	return s.storage.Close(ctx)
}
