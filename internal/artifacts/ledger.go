package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"constellation/internal/fingerprint"
)

// SpendRecord is one estimated charge for a cache-miss computation.
type SpendRecord struct {
	RunID       string
	Stage       fingerprint.Stage
	Language    string
	Fingerprint fingerprint.Fingerprint
	CostUSD     float64
	RecordedAt  time.Time
}

// RunSpend totals the ledger for one run.
type RunSpend struct {
	RunID    string
	TotalUSD float64
	Computes int
	FirstAt  time.Time
	LastAt   time.Time
}

// RecordSpend appends rec to the ledger. RecordedAt defaults to now.
func (s *Store) RecordSpend(ctx context.Context, rec SpendRecord) error {
	if strings.TrimSpace(rec.RunID) == "" {
		return errors.New("record spend: run id is required")
	}
	if rec.CostUSD < 0 {
		return fmt.Errorf("record spend: negative cost %.4f", rec.CostUSD)
	}
	recorded := s.timestamp()
	if !rec.RecordedAt.IsZero() {
		recorded = rec.RecordedAt.UTC().UnixNano()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO spend_ledger (run_id, stage, language, fingerprint, cost_usd, recorded_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			rec.RunID, string(rec.Stage), rec.Language, string(rec.Fingerprint), rec.CostUSD, recorded,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("record spend: %w", err)
	}
	return nil
}

// SpentSince sums ledger entries recorded at or after since.
func (s *Store) SpentSince(ctx context.Context, since time.Time) (float64, error) {
	ctx = ensureContext(ctx)
	var total float64
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM spend_ledger WHERE recorded_at >= ?`,
		since.UTC().UnixNano())
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum spend: %w", err)
	}
	return total, nil
}

// SpentByRun returns per-run totals, most recent run first. limit <= 0 returns all runs.
func (s *Store) SpentByRun(ctx context.Context, limit int) ([]RunSpend, error) {
	ctx = ensureContext(ctx)
	query := `SELECT run_id, SUM(cost_usd), COUNT(1), MIN(recorded_at), MAX(recorded_at)
              FROM spend_ledger GROUP BY run_id ORDER BY MAX(recorded_at) DESC, run_id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("spend by run: %w", err)
	}
	defer rows.Close()

	var runs []RunSpend
	for rows.Next() {
		var (
			run         RunSpend
			first, last int64
		)
		if err := rows.Scan(&run.RunID, &run.TotalUSD, &run.Computes, &first, &last); err != nil {
			return nil, fmt.Errorf("scan spend: %w", err)
		}
		run.FirstAt = fromNanos(first)
		run.LastAt = fromNanos(last)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
