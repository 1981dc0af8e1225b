package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// DatabaseHealth captures diagnostic information about the artifact database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	IntegrityCheck   bool
	TotalEntries     int
	Error            string
}

// CheckHealth returns diagnostic information about the artifact database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("artifact database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat artifact database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("artifact database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("artifact database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping artifact database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	var tables int
	if err := s.db.QueryRowContext(connCtx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name IN ('artifacts', 'spend_ledger')",
	).Scan(&tables); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("inspect tables: %w", err)
	}
	health.TableExists = tables == 2
	if !health.TableExists {
		health.Error = "artifact tables missing"
		return health, nil
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA quick_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = integrity == "ok"
	if !health.IntegrityCheck {
		health.Error = integrity
	}

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM artifacts").Scan(&health.TotalEntries); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count artifacts: %w", err)
	}
	return health, nil
}
