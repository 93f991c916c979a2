package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/me/gridflow/internal/logging"
)

// Checkpoint is the engine's own durable record of completed tasks, keyed by
// workflow and task name. A restarted run consults it to skip work that
// already finished before the interruption.
type Checkpoint struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenCheckpoint opens (or creates) the checkpoint database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func OpenCheckpoint(dbPath string, logger *slog.Logger) (*Checkpoint, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", dbPath, err)
	}

	// WAL keeps readers cheap while workers record completions.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	c := &Checkpoint{
		db:     db,
		logger: logging.Component(logger, "checkpoint"),
	}
	if err := c.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Checkpoint) migrate(ctx context.Context) error {
	c.logger.Debug("sql", "op", "migrate")
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			workflow   TEXT NOT NULL,
			started_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS completions (
			workflow     TEXT NOT NULL,
			task         TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			PRIMARY KEY (workflow, task)
		)`,
	}
	for _, stmt := range schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate checkpoint: %w", err)
		}
	}
	return nil
}

// RecordRun registers a new run of the workflow and returns its id.
func (c *Checkpoint) RecordRun(ctx context.Context, workflow string) (string, error) {
	id := uuid.NewString()
	c.logger.Debug("sql", "op", "insert", "table", "runs", "id", id)
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, started_at) VALUES (?, ?, ?)`,
		id, workflow, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// MarkDone records a task completion.
func (c *Checkpoint) MarkDone(ctx context.Context, workflow, task string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO completions (workflow, task, completed_at) VALUES (?, ?, ?)`,
		workflow, task, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("mark %s done: %w", task, err)
	}
	return nil
}

// IsDone reports whether a task completion was recorded for the workflow.
func (c *Checkpoint) IsDone(ctx context.Context, workflow, task string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx,
		`SELECT 1 FROM completions WHERE workflow = ? AND task = ?`,
		workflow, task,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query %s: %w", task, err)
	}
	return true, nil
}

// Reset drops all recorded completions for the workflow. Fresh (non-restart)
// runs call this so stale completions from earlier runs cannot mask work.
func (c *Checkpoint) Reset(ctx context.Context, workflow string) error {
	c.logger.Debug("sql", "op", "delete", "table", "completions", "workflow", workflow)
	_, err := c.db.ExecContext(ctx, `DELETE FROM completions WHERE workflow = ?`, workflow)
	if err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Checkpoint) Close() error {
	return c.db.Close()
}
