package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fixflow/fixflow/internal/domain"
)

// FixTaskRepo handles persistence for archived FixTask records.
type FixTaskRepo struct{}

// Archive inserts the terminal form of a fix task.
func (r *FixTaskRepo) Archive(ctx context.Context, db *sql.DB, rec domain.TaskRecord) error {
	const q = `INSERT INTO fix_tasks (task_id, agent, fil_level, phase, failure_reason, paths_json, created_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.TaskID,
		rec.Agent,
		rec.FilLevel.String(),
		string(rec.Phase),
		rec.FailureReason,
		rec.PathsJSON,
		rec.CreatedAt,
		rec.FinishedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.ErrDuplicateTask
		}
		return fmt.Errorf("archive fix task: %w", err)
	}
	return nil
}

// GetByID retrieves an archived fix task by its ID.
func (r *FixTaskRepo) GetByID(ctx context.Context, db *sql.DB, taskID string) (*domain.TaskRecord, error) {
	const q = `SELECT task_id, agent, fil_level, phase, failure_reason, paths_json, created_at, finished_at
FROM fix_tasks WHERE task_id = ?`

	row := db.QueryRowContext(ctx, q, taskID)

	var rec domain.TaskRecord
	var level, phase string
	err := row.Scan(&rec.TaskID, &rec.Agent, &level, &phase,
		&rec.FailureReason, &rec.PathsJSON, &rec.CreatedAt, &rec.FinishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get fix task: %w", err)
	}
	if parsed, ok := domain.ParseFilLevel(level); ok {
		rec.FilLevel = parsed
	}
	rec.Phase = domain.TddPhase(phase)
	return &rec, nil
}

// ListByAgent returns archived tasks for an agent, newest first.
func (r *FixTaskRepo) ListByAgent(ctx context.Context, db *sql.DB, agent string) ([]domain.TaskRecord, error) {
	const q = `SELECT task_id, agent, fil_level, phase, failure_reason, paths_json, created_at, finished_at
FROM fix_tasks WHERE agent = ? ORDER BY finished_at DESC`

	rows, err := db.QueryContext(ctx, q, agent)
	if err != nil {
		return nil, fmt.Errorf("list fix tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.TaskRecord
	for rows.Next() {
		var rec domain.TaskRecord
		var level, phase string
		if err := rows.Scan(&rec.TaskID, &rec.Agent, &level, &phase,
			&rec.FailureReason, &rec.PathsJSON, &rec.CreatedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan fix task: %w", err)
		}
		if parsed, ok := domain.ParseFilLevel(level); ok {
			rec.FilLevel = parsed
		}
		rec.Phase = domain.TddPhase(phase)
		out = append(out, rec)
	}
	return out, rows.Err()
}
