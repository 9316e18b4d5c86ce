package cache

import "strings"

// Cache slot names. These strings are persisted on devices, so they must not change.
const (
	KeyDreams   = "cache:dreams"
	KeyToday    = "cache:today"
	KeyProgress = "cache:progress"

	// DreamDetailPrefix namespaces the one-slot-per-dream detail records.
	DreamDetailPrefix = "cache:dreamDetail:"
)

// DreamDetailKey derives the detail slot for a dream.
func DreamDetailKey(dreamID string) string {
	return DreamDetailPrefix + dreamID
}

// IsDreamDetailKey reports whether key lives in the detail namespace.
func IsDreamDetailKey(key string) bool {
	return strings.HasPrefix(key, DreamDetailPrefix)
}

// StaticKeys lists the singleton slots cleared by ClearAll.
func StaticKeys() []string {
	return []string{KeyDreams, KeyToday, KeyProgress}
}

// KeyKind collapses a key into a low-cardinality name for logs and metrics.
func KeyKind(key string) string {
	switch {
	case key == KeyDreams:
		return "dreams"
	case key == KeyToday:
		return "today"
	case key == KeyProgress:
		return "progress"
	case IsDreamDetailKey(key):
		return "dreamDetail"
	default:
		return "other"
	}
}
