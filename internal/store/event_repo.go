package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fixflow/fixflow/internal/domain"
)

// CycleEventRepo handles persistence for CycleEvent records.
type CycleEventRepo struct{}

// Append inserts a cycle event.
func (r *CycleEventRepo) Append(ctx context.Context, db *sql.DB, event domain.CycleEvent) error {
	const q = `INSERT INTO cycle_events (task_id, seq_no, from_phase, to_phase, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		event.TaskID,
		event.SeqNo,
		string(event.FromPhase),
		string(event.ToPhase),
		event.Reason,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append cycle event: %w", err)
	}
	return nil
}

// ListByTask returns all cycle events for a task ordered by sequence number.
func (r *CycleEventRepo) ListByTask(ctx context.Context, db *sql.DB, taskID string) ([]domain.CycleEvent, error) {
	const q = `SELECT id, task_id, seq_no, from_phase, to_phase, reason, created_at
FROM cycle_events
WHERE task_id = ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("list cycle events: %w", err)
	}
	defer rows.Close()

	var events []domain.CycleEvent
	for rows.Next() {
		var e domain.CycleEvent
		var from, to string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.SeqNo, &from, &to, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cycle event: %w", err)
		}
		e.FromPhase = domain.TddPhase(from)
		e.ToPhase = domain.TddPhase(to)
		events = append(events, e)
	}
	return events, rows.Err()
}
