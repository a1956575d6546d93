// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package history

import (
	"context"
	"fmt"

	"github.com/toeirei/keysync/internal/logging"
)

// Maintain runs engine-specific housekeeping. SQLite gets PRAGMA optimize,
// VACUUM, a WAL checkpoint and an integrity check; PostgreSQL gets VACUUM
// ANALYZE; MySQL gets OPTIMIZE TABLE on the history tables.
func (s *Store) Maintain(ctx context.Context) error {
	switch s.dbType {
	case TypeSQLite:
		// optimize is not useful everywhere, e.g. on in-memory databases.
		if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			logging.Debugf("history: sqlite optimize failed (ignored): %v", err)
		}
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("sqlite vacuum failed: %w", err)
		}
		_, _ = s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
		var res string
		if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&res); err != nil {
			return fmt.Errorf("sqlite integrity_check failed: %w", err)
		}
		if res != "ok" {
			return fmt.Errorf("sqlite integrity_check failed: %s", res)
		}
	case TypePostgres:
		if _, err := s.db.ExecContext(ctx, "VACUUM ANALYZE sync_runs, sync_actions"); err != nil {
			return fmt.Errorf("postgres vacuum failed: %w", err)
		}
	case TypeMySQL:
		var lastErr error
		for _, table := range []string{"sync_runs", "sync_actions"} {
			if _, err := s.db.ExecContext(ctx, "OPTIMIZE TABLE "+table); err != nil {
				logging.Warnf("history: mysql optimize table %s failed: %v", table, err)
				lastErr = err
			}
		}
		if lastErr != nil {
			return fmt.Errorf("mysql optimize encountered errors: %w", lastErr)
		}
	default:
		return fmt.Errorf("unsupported db type for maintenance: %s", s.dbType)
	}
	return nil
}
