package learning

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one ordered schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationVersion is a row of schema_version.
type MigrationVersion struct {
	Version   int
	AppliedAt time.Time
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Per-agent aggregated performance metrics",
		SQL: `
CREATE TABLE IF NOT EXISTS agent_metrics (
    agent_name TEXT PRIMARY KEY,
    total_executions INTEGER NOT NULL DEFAULT 0,
    successful_executions INTEGER NOT NULL DEFAULT 0,
    failed_executions INTEGER NOT NULL DEFAULT 0,
    average_execution_time REAL NOT NULL DEFAULT 0,
    average_quality_score REAL NOT NULL DEFAULT 0,
    total_tokens INTEGER NOT NULL DEFAULT 0,
    total_cost REAL NOT NULL DEFAULT 0,
    failure_patterns TEXT NOT NULL DEFAULT '{}',
    recent_scores TEXT NOT NULL DEFAULT '[]',
    last_updated TIMESTAMP
);
`,
	},
	{
		Version:     2,
		Description: "Append-only execution log",
		SQL: `
CREATE TABLE IF NOT EXISTS agent_executions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    workflow_id TEXT,
    agent_name TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    quality_score REAL NOT NULL DEFAULT 0,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    cost REAL NOT NULL DEFAULT 0,
    failure_reason TEXT,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_agent_executions_agent ON agent_executions(agent_name);
CREATE INDEX IF NOT EXISTS idx_agent_executions_timestamp ON agent_executions(timestamp DESC);
`,
	},
}

// ApplyMigrations runs every pending migration in one serializable transaction.
func (r *SQLiteRepository) ApplyMigrations(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin exclusive transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := tx.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return fmt.Errorf("query schema versions: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("iterate versions: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// AppliedVersions lists applied migrations in order.
func (r *SQLiteRepository) AppliedVersions(ctx context.Context) ([]MigrationVersion, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, applied_at FROM schema_version ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("query schema versions: %w", err)
	}
	defer rows.Close()

	var out []MigrationVersion
	for rows.Next() {
		var v MigrationVersion
		if err := rows.Scan(&v.Version, &v.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
