package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/l0p7/dreamcache/internal/cache"
	"github.com/l0p7/dreamcache/internal/fetch"
	"github.com/l0p7/dreamcache/internal/metrics"
	"github.com/l0p7/dreamcache/internal/storage"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.October, 19, 15, 4, 0, 0, time.UTC)

func newAdminServer(t *testing.T, backend storage.Storage) (*httpexpect.Expect, *cache.Store) {
	t.Helper()
	labeler, err := cache.NewLabeler("", "UTC")
	require.NoError(t, err)
	store := cache.New(backend, cache.Options{
		Labeler: labeler,
		Now:     func() time.Time { return fixedNow },
	})
	fetcher := fetch.New(store, newTestLogger(), metrics.NewRecorder(nil))

	srv := httptest.NewServer(NewAdminHandler(NewStoreAdmin(fetcher)))
	t.Cleanup(srv.Close)

	return httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  srv.URL,
		Reporter: httpexpect.NewRequireReporter(t),
		Client:   srv.Client(),
	}), store
}

func TestAdminHealth(t *testing.T) {
	expect, _ := newAdminServer(t, storage.NewMemory())
	expect.GET("/healthz").Expect().Status(http.StatusOK).JSON().Object().HasValue("status", "ok")
	expect.POST("/healthz").Expect().Status(http.StatusMethodNotAllowed)
}

func TestAdminInspectEntry(t *testing.T) {
	expect, store := newAdminServer(t, storage.NewMemory())
	ctx := context.Background()

	store.Save(ctx, cache.KeyToday, cache.NewPayload([]cache.Occurrence{{ID: "o1", Title: "Meditate"}}, fixedNow.Add(-2*time.Minute)))
	store.Save(ctx, cache.DreamDetailKey("abc"), cache.NewPayload(cache.DreamDetail{Dream: cache.Dream{ID: "abc"}}, fixedNow))

	today := expect.GET("/cache/entries/cache:today").Expect().Status(http.StatusOK).JSON().Object()
	today.HasValue("key", "cache:today")
	today.HasValue("tier", "short")
	today.HasValue("ttl", "1m0s")
	today.HasValue("stale", true)
	today.HasValue("lastSynced", "Last synced 3:02 PM")
	today.Value("data").Array().Value(0).Object().HasValue("title", "Meditate")

	detail := expect.GET("/cache/entries/cache:dreamDetail:abc").Expect().Status(http.StatusOK).JSON().Object()
	detail.HasValue("kind", "dreamDetail")
	detail.HasValue("stale", false)
	detail.Value("data").Object().Value("dream").Object().HasValue("id", "abc")

	expect.GET("/cache/entries/cache:progress").Expect().Status(http.StatusNotFound)
	expect.GET("/cache/entries/").Expect().Status(http.StatusBadRequest)
	expect.GET("/unknown").Expect().Status(http.StatusNotFound)
}

func TestAdminClear(t *testing.T) {
	backend := storage.NewMemory()
	expect, store := newAdminServer(t, backend)
	ctx := context.Background()

	store.Save(ctx, cache.KeyDreams, cache.NewPayload([]cache.Dream{{ID: "abc"}}, fixedNow))
	store.Save(ctx, cache.DreamDetailKey("abc"), cache.NewPayload(cache.DreamDetail{}, fixedNow))
	store.Save(ctx, "cache:unrelated", cache.NewPayload("keep", fixedNow))

	expect.GET("/cache").Expect().Status(http.StatusMethodNotAllowed).Header("Allow").IsEqual(http.MethodDelete)
	expect.DELETE("/cache").Expect().Status(http.StatusNoContent)

	expect.GET("/cache/entries/cache:dreams").Expect().Status(http.StatusNotFound)
	expect.GET("/cache/entries/cache:dreamDetail:abc").Expect().Status(http.StatusNotFound)
	expect.GET("/cache/entries/cache:unrelated").Expect().Status(http.StatusOK)
}

type brokenStorage struct {
	storage.Storage
}

func (brokenStorage) Remove(context.Context, string) error {
	return storage.ErrClosed
}

func TestAdminClearReportsFailure(t *testing.T) {
	expect, _ := newAdminServer(t, brokenStorage{storage.NewMemory()})
	expect.DELETE("/cache").Expect().Status(http.StatusInternalServerError).JSON().Object().ContainsKey("error")
}

func TestNilAdminIsUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAdminHandler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
