package cache

import (
	"context"
	"time"

	"constellation/internal/artifacts"
	"constellation/internal/logging"
	"constellation/internal/services"
)

// Policy bounds the store. Zero values disable the matching rule.
type Policy struct {
	MaxAge   time.Duration
	MaxBytes int64
}

// Enabled reports whether any rule is active.
func (p Policy) Enabled() bool {
	return p.MaxAge > 0 || p.MaxBytes > 0
}

// ApplyPolicy evicts artifacts older than MaxAge, then least recently used
// artifacts until the store fits MaxBytes.
func (m *Manager) ApplyPolicy(ctx context.Context, policy Policy) (artifacts.EvictionResult, error) {
	var total artifacts.EvictionResult
	if policy.MaxAge > 0 {
		res, err := m.store.EvictOlderThan(ctx, policy.MaxAge)
		if err != nil {
			return total, services.Wrap(services.ErrStoreUnavailable, "cache", "evict by age", "", err)
		}
		total = total.Add(res)
	}
	if policy.MaxBytes > 0 {
		res, err := m.store.EvictBySize(ctx, policy.MaxBytes)
		if err != nil {
			return total, services.Wrap(services.ErrStoreUnavailable, "cache", "evict by size", "", err)
		}
		total = total.Add(res)
	}
	if total.Removed > 0 {
		m.logger.Info("cache pruned",
			logging.Int("removed", total.Removed),
			logging.Int64("freed_bytes", total.FreedBytes),
			logging.Duration("max_age", policy.MaxAge),
			logging.Int64("max_bytes", policy.MaxBytes),
			logging.String(logging.FieldEventType, "cache_pruned"),
		)
	}
	return total, nil
}

// Purge removes every artifact.
func (m *Manager) Purge(ctx context.Context) (artifacts.EvictionResult, error) {
	res, err := m.store.Purge(ctx)
	if err != nil {
		return res, services.Wrap(services.ErrStoreUnavailable, "cache", "purge", "", err)
	}
	m.logger.Info("cache purged",
		logging.Int("removed", res.Removed),
		logging.Int64("freed_bytes", res.FreedBytes),
		logging.String(logging.FieldEventType, "cache_purged"),
	)
	return res, nil
}

// Stats combines store totals with session counters.
type Stats struct {
	Store    artifacts.Stats
	Counters Counters
}

// Stats returns store totals and session counters.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	storeStats, err := m.store.Stats(ctx)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrStoreUnavailable, "cache", "stats", "", err)
	}
	return Stats{Store: storeStats, Counters: m.Counters()}, nil
}
