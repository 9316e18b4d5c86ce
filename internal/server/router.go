package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// EntryView is the admin rendering of one cached slot.
type EntryView struct {
	Key        string          `json:"key"`
	Kind       string          `json:"kind"`
	Tier       string          `json:"tier"`
	TTL        string          `json:"ttl"`
	FetchedAt  int64           `json:"fetchedAt"`
	Stale      bool            `json:"stale"`
	LastSynced string          `json:"lastSynced"`
	Data       json.RawMessage `json:"data"`
}

// CacheAdmin defines the minimal surface the admin router needs from the cache.
type CacheAdmin interface {
	Inspect(ctx context.Context, key string) (EntryView, bool)
	Clear(ctx context.Context) error
}

const entriesPrefix = "/cache/entries/"

// NewAdminHandler wires URL dispatch for the inspection and invalidation routes.
func NewAdminHandler(admin CacheAdmin) http.Handler {
	if admin == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case path == "/healthz" || path == "/health":
			if !allowMethod(w, r, http.MethodGet) {
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		case path == "/cache":
			if !allowMethod(w, r, http.MethodDelete) {
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
			defer cancel()
			if err := admin.Clear(ctx); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case strings.HasPrefix(path, entriesPrefix):
			if !allowMethod(w, r, http.MethodGet) {
				return
			}
			key := strings.TrimPrefix(path, entriesPrefix)
			if key == "" || strings.Contains(key, "/") {
				writeError(w, http.StatusBadRequest, "cache key required")
				return
			}
			view, ok := admin.Inspect(r.Context(), key)
			if !ok {
				writeError(w, http.StatusNotFound, "no cached payload for "+key)
				return
			}
			writeJSON(w, http.StatusOK, view)
		default:
			http.NotFound(w, r)
		}
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
