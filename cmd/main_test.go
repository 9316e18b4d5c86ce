package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/l0p7/dreamcache/internal/cache"
	"github.com/l0p7/dreamcache/internal/config"
	"github.com/l0p7/dreamcache/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestBuildStorage(t *testing.T) {
	tests := []struct {
		name     string
		cfg      func(t *testing.T) config.StorageConfig
		wantType string
	}{
		{
			name: "defaults to memory",
			cfg: func(t *testing.T) config.StorageConfig {
				return config.StorageConfig{}
			},
			wantType: "*storage.memoryStorage",
		},
		{
			name: "constructs file storage",
			cfg: func(t *testing.T) config.StorageConfig {
				return config.StorageConfig{
					Backend: "file",
					File:    config.FileStorageConfig{Dir: t.TempDir()},
				}
			},
			wantType: "*storage.fileStorage",
		},
		{
			name: "constructs sqlite storage",
			cfg: func(t *testing.T) config.StorageConfig {
				return config.StorageConfig{
					Backend: "SQLite",
					SQLite:  config.SQLiteStorageConfig{Path: filepath.Join(t.TempDir(), "cache.db")},
				}
			},
			wantType: "*storage.sqliteStorage",
		},
		{
			name: "constructs redis storage",
			cfg: func(t *testing.T) config.StorageConfig {
				server, err := miniredis.Run()
				if err != nil {
					if strings.Contains(err.Error(), "operation not permitted") {
						t.Skip("miniredis unavailable in sandbox")
					}
					require.NoError(t, err)
				}
				t.Cleanup(server.Close)
				return config.StorageConfig{
					Backend: "redis",
					Redis:   config.RedisStorageConfig{Address: server.Addr()},
				}
			},
			wantType: "*storage.redisStorage",
		},
		{
			name: "unreachable redis falls back to memory",
			cfg: func(t *testing.T) config.StorageConfig {
				server, err := miniredis.Run()
				if err != nil {
					if strings.Contains(err.Error(), "operation not permitted") {
						t.Skip("miniredis unavailable in sandbox")
					}
					require.NoError(t, err)
				}
				addr := server.Addr()
				server.Close()
				return config.StorageConfig{
					Backend: "redis",
					Redis:   config.RedisStorageConfig{Address: addr},
				}
			},
			wantType: "*storage.memoryStorage",
		},
		{
			name: "unknown backend falls back to memory",
			cfg: func(t *testing.T) config.StorageConfig {
				return config.StorageConfig{Backend: "etcd"}
			},
			wantType: "*storage.memoryStorage",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			backend := buildStorage(newTestLogger(), tc.cfg(t))
			require.NotNil(t, backend)
			t.Cleanup(func() {
				require.NoError(t, backend.Close(context.Background()))
			})
			require.Equal(t, tc.wantType, fmt.Sprintf("%T", backend))

			ctx := context.Background()
			require.NoError(t, backend.Set(ctx, cache.KeyDreams, `{"data":[]}`))
			value, ok, err := backend.Get(ctx, cache.KeyDreams)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, `{"data":[]}`, value)

			_, lists := backend.(storage.KeyLister)
			require.True(t, lists, "every built-in backend enumerates keys")
		})
	}
}

func TestApplyCacheSettings(t *testing.T) {
	store := cache.New(storage.NewMemory(), cache.Options{Logger: newTestLogger()})
	t.Cleanup(func() {
		require.NoError(t, store.Close(context.Background()))
	})

	cfg := config.DefaultConfig().Cache
	cfg.TTL.Short = "30s"
	cfg.TTL.Long = "2h"
	cfg.Label.Template = `synced {{ dateInZone "15:04" .At .Zone }}`
	cfg.Label.Zone = "UTC"
	require.NoError(t, applyCacheSettings(store, cfg))

	require.Equal(t, 30*time.Second, store.TTL(cache.TierShort))
	require.Equal(t, 5*time.Minute, store.TTL(cache.TierMedium))
	require.Equal(t, 2*time.Hour, store.TTL(cache.TierLong))

	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	require.Equal(t, "synced 14:05", store.LastSynced(at.UnixMilli()))

	t.Run("rejects invalid settings without partial apply", func(t *testing.T) {
		bad := cfg
		bad.TTL.Short = "1m"
		bad.Label.Template = "{{ .At"
		require.Error(t, applyCacheSettings(store, bad))
		require.Equal(t, 30*time.Second, store.TTL(cache.TierShort))
		require.Equal(t, "synced 14:05", store.LastSynced(at.UnixMilli()))
	})
}
