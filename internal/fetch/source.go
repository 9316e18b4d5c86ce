package fetch

import (
	"context"
	"errors"

	"github.com/l0p7/dreamcache/internal/cache"
)

// Backend is the remote data service. Implementations talk to the hosted
// database; the cache layer treats them as opaque.
type Backend interface {
	ListDreams(ctx context.Context) ([]cache.Dream, error)
	ListTodayOccurrences(ctx context.Context) ([]cache.Occurrence, error)
	GetProgress(ctx context.Context) (cache.Progress, error)
	GetDreamDetail(ctx context.Context, dreamID string) (cache.DreamDetail, error)
}

// Source binds a Fetcher to a Backend and names each payload's slot.
type Source struct {
	fetcher *Fetcher
	backend Backend
}

func NewSource(fetcher *Fetcher, backend Backend) *Source {
	return &Source{fetcher: fetcher, backend: backend}
}

func (s *Source) Dreams(ctx context.Context, opts ...Option) (Result[[]cache.Dream], error) {
	return Resolve(ctx, s.fetcher, cache.KeyDreams, s.backend.ListDreams, opts...)
}

func (s *Source) Today(ctx context.Context, opts ...Option) (Result[[]cache.Occurrence], error) {
	return Resolve(ctx, s.fetcher, cache.KeyToday, s.backend.ListTodayOccurrences, opts...)
}

func (s *Source) Progress(ctx context.Context, opts ...Option) (Result[cache.Progress], error) {
	return Resolve(ctx, s.fetcher, cache.KeyProgress, s.backend.GetProgress, opts...)
}

func (s *Source) DreamDetail(ctx context.Context, dreamID string, opts ...Option) (Result[cache.DreamDetail], error) {
	if dreamID == "" {
		return Result[cache.DreamDetail]{}, errors.New("fetch: dream id required")
	}
	load := func(ctx context.Context) (cache.DreamDetail, error) {
		return s.backend.GetDreamDetail(ctx, dreamID)
	}
	return Resolve(ctx, s.fetcher, cache.DreamDetailKey(dreamID), load, opts...)
}

// DreamChanged drops the cached list and the dream's detail after a local edit.
func (s *Source) DreamChanged(ctx context.Context, dreamID string) {
	s.fetcher.Invalidate(ctx, cache.KeyDreams)
	if dreamID != "" {
		s.fetcher.Invalidate(ctx, cache.DreamDetailKey(dreamID))
	}
}

// Logout clears everything cached for the signed-in user.
func (s *Source) Logout(ctx context.Context) error {
	return s.fetcher.Logout(ctx)
}
