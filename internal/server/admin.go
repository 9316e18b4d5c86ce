package server

import (
	"context"
	"encoding/json"

	"github.com/l0p7/dreamcache/internal/cache"
	"github.com/l0p7/dreamcache/internal/fetch"
)

// StoreAdmin serves CacheAdmin from the shared fetcher and its store.
type StoreAdmin struct {
	fetcher *fetch.Fetcher
}

func NewStoreAdmin(fetcher *fetch.Fetcher) *StoreAdmin {
	return &StoreAdmin{fetcher: fetcher}
}

func (a *StoreAdmin) Inspect(ctx context.Context, key string) (EntryView, bool) {
	store := a.fetcher.Store()
	payload, ok := cache.Load[cache.Payload[json.RawMessage]](ctx, store, key)
	if !ok {
		return EntryView{}, false
	}
	tier := cache.TierForKey(key)
	return EntryView{
		Key:        key,
		Kind:       cache.KeyKind(key),
		Tier:       string(tier),
		TTL:        store.TTL(tier).String(),
		FetchedAt:  payload.FetchedAt,
		Stale:      store.StaleFor(key, payload.FetchedAt),
		LastSynced: store.LastSynced(payload.FetchedAt),
		Data:       payload.Data,
	}, true
}

// Clear runs the logout invalidation.
func (a *StoreAdmin) Clear(ctx context.Context) error {
	return a.fetcher.Logout(ctx)
}
