package artifacts

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"constellation/internal/fingerprint"
)

// ErrPayloadMismatch is returned by Put when the fingerprint already holds a
// different payload. Stored payloads are never overwritten.
var ErrPayloadMismatch = errors.New("payload differs from stored artifact")

// Entry is one cached artifact.
type Entry struct {
	Fingerprint   fingerprint.Fingerprint
	Stage         fingerprint.Stage
	Language      string
	Payload       []byte
	PayloadDigest string
	SizeBytes     int64
	CreatedAt     time.Time
	LastHitAt     time.Time
	HitCount      int64
}

// Metadata describes an artifact at write time.
type Metadata struct {
	Stage    fingerprint.Stage
	Language string
}

const entryColumns = "fingerprint, stage, language, payload, payload_digest, size_bytes, created_at, last_hit_at, hit_count"

const entrySummaryColumns = "fingerprint, stage, language, NULL, payload_digest, size_bytes, created_at, last_hit_at, hit_count"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		fp       string
		stage    string
		language string
		payload  []byte
		digest   string
		size     int64
		created  int64
		lastHit  sql.NullInt64
		hitCount int64
	)
	if err := scanner.Scan(&fp, &stage, &language, &payload, &digest, &size, &created, &lastHit, &hitCount); err != nil {
		return nil, err
	}
	entry := &Entry{
		Fingerprint:   fingerprint.Fingerprint(fp),
		Stage:         fingerprint.Stage(stage),
		Language:      language,
		Payload:       payload,
		PayloadDigest: digest,
		SizeBytes:     size,
		CreatedAt:     fromNanos(created),
		HitCount:      hitCount,
	}
	if lastHit.Valid {
		entry.LastHitAt = fromNanos(lastHit.Int64)
	}
	return entry, nil
}

// Get returns the artifact for fp and records a hit. A missing artifact returns
// (nil, nil).
func (s *Store) Get(ctx context.Context, fp fingerprint.Fingerprint) (*Entry, error) {
	var entry *Entry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		entry = nil
		row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM artifacts WHERE fingerprint = ?`, string(fp))
		found, err := scanEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`UPDATE artifacts SET hit_count = hit_count + 1, last_hit_at = ? WHERE fingerprint = ?`,
			now, string(fp),
		); err != nil {
			return err
		}
		found.HitCount++
		found.LastHitAt = fromNanos(now)
		entry = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return entry, nil
}

// Peek returns the artifact for fp without recording a hit.
func (s *Store) Peek(ctx context.Context, fp fingerprint.Fingerprint) (*Entry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM artifacts WHERE fingerprint = ?`, string(fp))
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek artifact: %w", err)
	}
	return entry, nil
}

// Put stores payload under fp. Writing an identical payload again is a no-op
// that returns the existing entry; a different payload returns
// ErrPayloadMismatch. The write is committed before Put returns.
func (s *Store) Put(ctx context.Context, fp fingerprint.Fingerprint, payload []byte, meta Metadata) (*Entry, error) {
	if strings.TrimSpace(string(fp)) == "" {
		return nil, errors.New("put artifact: empty fingerprint")
	}
	if meta.Stage == "" {
		return nil, errors.New("put artifact: stage is required")
	}
	if payload == nil {
		payload = []byte{}
	}
	digest := fingerprint.PayloadDigest(payload)

	var entry *Entry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		entry = nil
		row := tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM artifacts WHERE fingerprint = ?`, string(fp))
		existing, err := scanEntry(row)
		switch {
		case err == nil:
			if existing.PayloadDigest != digest || !bytes.Equal(existing.Payload, payload) {
				return fmt.Errorf("%w: fingerprint %s", ErrPayloadMismatch, fp.Short())
			}
			entry = existing
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		created := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (fingerprint, stage, language, payload, payload_digest, size_bytes, created_at, last_hit_at, hit_count)
             VALUES (?, ?, ?, ?, ?, ?, ?, NULL, 0)`,
			string(fp), string(meta.Stage), meta.Language, payload, digest, int64(len(payload)), created,
		); err != nil {
			return err
		}
		entry = &Entry{
			Fingerprint:   fp,
			Stage:         meta.Stage,
			Language:      meta.Language,
			Payload:       payload,
			PayloadDigest: digest,
			SizeBytes:     int64(len(payload)),
			CreatedAt:     fromNanos(created),
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPayloadMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("put artifact: %w", err)
	}
	return entry, nil
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Stage    fingerprint.Stage
	Language string
	Limit    int
}

// List returns artifact summaries (without payloads), newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + entrySummaryColumns + ` FROM artifacts`
	var (
		clauses []string
		args    []any
	)
	if filter.Stage != "" {
		clauses = append(clauses, "stage = ?")
		args = append(args, string(filter.Stage))
	}
	if filter.Language != "" {
		clauses = append(clauses, "language = ?")
		args = append(args, filter.Language)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, fingerprint"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// StageStats summarizes artifacts for one stage.
type StageStats struct {
	Stage fingerprint.Stage
	Count int
	Bytes int64
	Hits  int64
}

// Stats summarizes the whole store.
type Stats struct {
	Count      int
	TotalBytes int64
	TotalHits  int64
	Oldest     time.Time
	Newest     time.Time
	ByStage    []StageStats
}

// Stats returns aggregate counts, sizes and hits grouped by stage.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(1), COALESCE(SUM(size_bytes), 0), COALESCE(SUM(hit_count), 0),
                MIN(created_at), MAX(created_at)
         FROM artifacts GROUP BY stage ORDER BY stage`)
	if err != nil {
		return Stats{}, fmt.Errorf("artifact stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			stage          string
			row            StageStats
			oldest, newest int64
		)
		if err := rows.Scan(&stage, &row.Count, &row.Bytes, &row.Hits, &oldest, &newest); err != nil {
			return Stats{}, fmt.Errorf("scan artifact stats: %w", err)
		}
		row.Stage = fingerprint.Stage(stage)
		stats.ByStage = append(stats.ByStage, row)
		stats.Count += row.Count
		stats.TotalBytes += row.Bytes
		stats.TotalHits += row.Hits
		if o := fromNanos(oldest); stats.Oldest.IsZero() || o.Before(stats.Oldest) {
			stats.Oldest = o
		}
		if n := fromNanos(newest); n.After(stats.Newest) {
			stats.Newest = n
		}
	}
	return stats, rows.Err()
}
