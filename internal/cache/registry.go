package cache

import (
	"sort"
	"strings"
	"sync"
)

// keyRegistry tracks dynamic keys written through the store for backends
// that cannot enumerate their own key space. It only knows keys written by
// this process.
type keyRegistry struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newKeyRegistry() *keyRegistry {
	return &keyRegistry{keys: make(map[string]struct{})}
}

func (r *keyRegistry) add(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key] = struct{}{}
}

func (r *keyRegistry) remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
}

func (r *keyRegistry) withPrefix(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.keys))
	for key := range r.keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
