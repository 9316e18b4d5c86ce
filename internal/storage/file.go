package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	fileSuffix    = ".entry"
	lockFileName  = ".lock"
	lockRetryWait = 10 * time.Millisecond
)

// fileStorage keeps one file per key. File names are the hex encoding of the
// key so any key is a valid name on every platform.
type fileStorage struct {
	dir string

	// mu serializes goroutines; lock serializes processes sharing dir.
	mu     sync.Mutex
	lock   *flock.Flock
	closed bool
}

// NewFile opens (creating if needed) a directory-backed store.
func NewFile(dir string) (Storage, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: file directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve directory: %w", err)
	}
	return &fileStorage{
		dir:  absDir,
		lock: flock.New(filepath.Join(absDir, lockFileName)),
	}, nil
}

func (s *fileStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.withLock(ctx, false, func() error {
		data, err := os.ReadFile(s.path(key))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("storage: read entry: %w", err)
		}
		value, found = string(data), true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (s *fileStorage) Set(ctx context.Context, key, value string) error {
	return s.withLock(ctx, true, func() error {
		tmp, err := os.CreateTemp(s.dir, ".tmp-*")
		if err != nil {
			return fmt.Errorf("storage: create temp file: %w", err)
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath)

		_, err = tmp.WriteString(value)
		closeErr := tmp.Close()
		if err != nil {
			return fmt.Errorf("storage: write temp file: %w", err)
		}
		if closeErr != nil {
			return fmt.Errorf("storage: close temp file: %w", closeErr)
		}
		// Rename is atomic so readers observe either the old or the new entry.
		if err := os.Rename(tmpPath, s.path(key)); err != nil {
			return fmt.Errorf("storage: rename entry: %w", err)
		}
		return nil
	})
}

func (s *fileStorage) Remove(ctx context.Context, key string) error {
	return s.withLock(ctx, true, func() error {
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: remove entry: %w", err)
		}
		return nil
	})
}

func (s *fileStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.withLock(ctx, false, func() error {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return fmt.Errorf("storage: list directory: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
				continue
			}
			raw, err := hex.DecodeString(strings.TrimSuffix(name, fileSuffix))
			if err != nil {
				continue
			}
			if key := string(raw); strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fileStorage) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.lock.Close()
}

func (s *fileStorage) path(key string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key))+fileSuffix)
}

func (s *fileStorage) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetryWait)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryWait)
	}
	if err != nil {
		return fmt.Errorf("storage: acquire file lock: %w", err)
	}
	if !locked {
		return errors.New("storage: file lock unavailable")
	}
	defer func() {
		_ = s.lock.Unlock()
	}()
	return fn()
}
