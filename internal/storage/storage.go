// Package storage defines the durable string-keyed store the payload cache
// persists into, plus the memory, file, sqlite and redis backends.
package storage

import (
	"context"
	"errors"
)

// Storage is the primitive key-value boundary. Values are opaque strings;
// a missing key is reported as ok=false with a nil error.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// KeyLister is implemented by backends that can enumerate their key space.
// An empty prefix lists every key.
type KeyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("storage: closed")
