package cache

import (
	"fmt"
	"time"
)

// Tier names a freshness class. Every payload type is read under exactly one tier.
type Tier string

const (
	TierShort  Tier = "short"
	TierMedium Tier = "medium"
	TierLong   Tier = "long"
)

const (
	DefaultShortTTL  = time.Minute
	DefaultMediumTTL = 5 * time.Minute
	DefaultLongTTL   = 30 * time.Minute
)

// Policy maps tiers to durations. It is applied at read time and never persisted.
type Policy struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// DefaultPolicy returns the 1m/5m/30m tiers.
func DefaultPolicy() Policy {
	return Policy{
		Short:  DefaultShortTTL,
		Medium: DefaultMediumTTL,
		Long:   DefaultLongTTL,
	}
}

// ParsePolicy builds a Policy from duration strings such as "90s" or "5m".
// Empty strings keep the default for that tier.
func ParsePolicy(short, medium, long string) (Policy, error) {
	policy := DefaultPolicy()
	fields := []struct {
		tier  Tier
		value string
		dst   *time.Duration
	}{
		{TierShort, short, &policy.Short},
		{TierMedium, medium, &policy.Medium},
		{TierLong, long, &policy.Long},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		d, err := time.ParseDuration(field.value)
		if err != nil {
			return Policy{}, fmt.Errorf("cache: parse %s ttl: %w", field.tier, err)
		}
		if d <= 0 {
			return Policy{}, fmt.Errorf("cache: %s ttl must be positive, got %s", field.tier, d)
		}
		*field.dst = d
	}
	return policy, nil
}

// TTL returns the duration for tier. Unknown tiers get the short duration.
func (p Policy) TTL(tier Tier) time.Duration {
	switch tier {
	case TierMedium:
		return p.Medium
	case TierLong:
		return p.Long
	default:
		return p.Short
	}
}

// TierForKey returns the tier a slot is read under: today's occurrences
// change within the day, progress summaries move slowly.
func TierForKey(key string) Tier {
	switch {
	case key == KeyToday:
		return TierShort
	case key == KeyProgress:
		return TierLong
	case key == KeyDreams, IsDreamDetailKey(key):
		return TierMedium
	default:
		return TierShort
	}
}

// IsStale reports whether a payload fetched at fetchedAt (epoch millis, zero
// when unknown) has outlived ttl. A payload exactly ttl old is still fresh.
func IsStale(fetchedAt int64, ttl time.Duration) bool {
	return isStaleAt(fetchedAt, ttl, time.Now())
}

func isStaleAt(fetchedAt int64, ttl time.Duration, now time.Time) bool {
	if fetchedAt <= 0 {
		return true
	}
	return now.UnixMilli()-fetchedAt > ttl.Milliseconds()
}
