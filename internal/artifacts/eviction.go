package artifacts

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EvictionResult reports what an eviction pass removed.
type EvictionResult struct {
	Removed    int
	FreedBytes int64
}

// Add accumulates another result.
func (r EvictionResult) Add(other EvictionResult) EvictionResult {
	return EvictionResult{Removed: r.Removed + other.Removed, FreedBytes: r.FreedBytes + other.FreedBytes}
}

// EvictOlderThan removes artifacts created more than age ago. A non-positive
// age removes nothing.
func (s *Store) EvictOlderThan(ctx context.Context, age time.Duration) (EvictionResult, error) {
	if age <= 0 {
		return EvictionResult{}, nil
	}
	cutoff := s.now().Add(-age).UTC().UnixNano()
	var result EvictionResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = EvictionResult{}
		row := tx.QueryRowContext(ctx,
			`SELECT COUNT(1), COALESCE(SUM(size_bytes), 0) FROM artifacts WHERE created_at < ?`, cutoff)
		if err := row.Scan(&result.Removed, &result.FreedBytes); err != nil {
			return err
		}
		if result.Removed == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE created_at < ?`, cutoff)
		return err
	})
	if err != nil {
		return EvictionResult{}, fmt.Errorf("evict by age: %w", err)
	}
	return result, nil
}

// EvictBySize removes least recently used artifacts until the total payload
// size is at most budgetBytes. A non-positive budget removes nothing.
func (s *Store) EvictBySize(ctx context.Context, budgetBytes int64) (EvictionResult, error) {
	if budgetBytes <= 0 {
		return EvictionResult{}, nil
	}
	var result EvictionResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = EvictionResult{}
		var total int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM artifacts`).Scan(&total); err != nil {
			return err
		}
		if total <= budgetBytes {
			return nil
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT fingerprint, size_bytes FROM artifacts
             ORDER BY coalesce(last_hit_at, created_at) ASC, fingerprint ASC`)
		if err != nil {
			return err
		}
		var victims []string
		for rows.Next() && total > budgetBytes {
			var (
				fp   string
				size int64
			)
			if err := rows.Scan(&fp, &size); err != nil {
				rows.Close()
				return err
			}
			victims = append(victims, fp)
			total -= size
			result.FreedBytes += size
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, fp := range victims {
			if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE fingerprint = ?`, fp); err != nil {
				return err
			}
		}
		result.Removed = len(victims)
		return nil
	})
	if err != nil {
		return EvictionResult{}, fmt.Errorf("evict by size: %w", err)
	}
	return result, nil
}

// Purge removes every artifact. The spend ledger is kept.
func (s *Store) Purge(ctx context.Context) (EvictionResult, error) {
	var result EvictionResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = EvictionResult{}
		row := tx.QueryRowContext(ctx, `SELECT COUNT(1), COALESCE(SUM(size_bytes), 0) FROM artifacts`)
		if err := row.Scan(&result.Removed, &result.FreedBytes); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM artifacts`)
		return err
	})
	if err != nil {
		return EvictionResult{}, fmt.Errorf("purge artifacts: %w", err)
	}
	return result, nil
}
