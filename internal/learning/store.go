package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository stores metrics and the execution log in SQLite.
type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath.
// ":memory:" gives a private in-process database.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	// busy_timeout must come first so the rest wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	repo := &SQLiteRepository{db: db, dbPath: dbPath}
	if err := repo.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return repo, nil
}

// execWithRetry retries "database is locked" failures with exponential backoff.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load reads every agent_metrics row.
func (r *SQLiteRepository) Load(ctx context.Context) (map[string]*AgentPerformanceMetrics, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT agent_name, total_executions, successful_executions,
		failed_executions, average_execution_time, average_quality_score, total_tokens, total_cost,
		failure_patterns, recent_scores, last_updated FROM agent_metrics`)
	if err != nil {
		return nil, fmt.Errorf("query agent metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*AgentPerformanceMetrics)
	for rows.Next() {
		m := NewAgentPerformanceMetrics("")
		var patterns, scores string
		var updated sql.NullTime
		if err := rows.Scan(&m.AgentName, &m.TotalExecutions, &m.SuccessfulExecutions,
			&m.FailedExecutions, &m.AverageExecutionTime, &m.AverageQualityScore,
			&m.TotalTokens, &m.TotalCost, &patterns, &scores, &updated); err != nil {
			return nil, fmt.Errorf("scan agent metrics: %w", err)
		}
		if err := json.Unmarshal([]byte(patterns), &m.FailurePatterns); err != nil {
			return nil, fmt.Errorf("decode failure patterns for %s: %w", m.AgentName, err)
		}
		if err := json.Unmarshal([]byte(scores), &m.RecentScores); err != nil {
			return nil, fmt.Errorf("decode recent scores for %s: %w", m.AgentName, err)
		}
		if updated.Valid {
			m.LastUpdated = updated.Time
		}
		out[m.AgentName] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent metrics: %w", err)
	}
	return out, nil
}

// Save upserts the given agents in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, metrics map[string]*AgentPerformanceMetrics) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO agent_metrics
		(agent_name, total_executions, successful_executions, failed_executions,
		 average_execution_time, average_quality_score, total_tokens, total_cost,
		 failure_patterns, recent_scores, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_name) DO UPDATE SET
		 total_executions = excluded.total_executions,
		 successful_executions = excluded.successful_executions,
		 failed_executions = excluded.failed_executions,
		 average_execution_time = excluded.average_execution_time,
		 average_quality_score = excluded.average_quality_score,
		 total_tokens = excluded.total_tokens,
		 total_cost = excluded.total_cost,
		 failure_patterns = excluded.failure_patterns,
		 recent_scores = excluded.recent_scores,
		 last_updated = excluded.last_updated`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for name, m := range metrics {
		patterns, err := json.Marshal(m.FailurePatterns)
		if err != nil {
			return fmt.Errorf("marshal failure patterns: %w", err)
		}
		scores := []byte("[]")
		if len(m.RecentScores) > 0 {
			if scores, err = json.Marshal(m.RecentScores); err != nil {
				return fmt.Errorf("marshal recent scores: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx, name, m.TotalExecutions, m.SuccessfulExecutions,
			m.FailedExecutions, m.AverageExecutionTime, m.AverageQualityScore, m.TotalTokens,
			m.TotalCost, string(patterns), string(scores), m.LastUpdated); err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metrics: %w", err)
	}
	return nil
}

// RecordExecution appends e to the execution log.
func (r *SQLiteRepository) RecordExecution(ctx context.Context, e Execution) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO agent_executions
		(workflow_id, agent_name, success, duration_ms, quality_score, tokens_used, cost, failure_reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.WorkflowID, e.Agent, e.Success, e.Duration.Milliseconds(), e.QualityScore,
		e.TokensUsed, e.Cost, e.FailureReason, ts)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// RecentExecutions returns the newest executions of agent, newest first.
// An empty agent lists all agents.
func (r *SQLiteRepository) RecentExecutions(ctx context.Context, agent string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT COALESCE(workflow_id, ''), agent_name, success, duration_ms, quality_score,
		tokens_used, cost, COALESCE(failure_reason, ''), timestamp FROM agent_executions`
	args := []interface{}{}
	if agent != "" {
		query += ` WHERE agent_name = ?`
		args = append(args, agent)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var ms int64
		if err := rows.Scan(&e.WorkflowID, &e.Agent, &e.Success, &ms, &e.QualityScore,
			&e.TokensUsed, &e.Cost, &e.FailureReason, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}
