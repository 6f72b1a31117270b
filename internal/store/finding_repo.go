package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fixflow/fixflow/internal/domain"
)

// FindingRepo handles persistence for merged assessment findings.
type FindingRepo struct{}

// SaveRun inserts all findings of one assessment run in a single transaction.
func (r *FindingRepo) SaveRun(ctx context.Context, db *sql.DB, recs []domain.FindingRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO findings (id, run_id, path, type, severity, message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, q,
			rec.ID, rec.RunID, rec.Path, rec.Type, rec.Severity, rec.Message, rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}
	return tx.Commit()
}

// ListByRun returns all findings of a run ordered by path then type.
func (r *FindingRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]domain.FindingRecord, error) {
	const q = `SELECT id, run_id, path, type, severity, message, created_at
FROM findings
WHERE run_id = ?
ORDER BY path ASC, type ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []domain.FindingRecord
	for rows.Next() {
		var f domain.FindingRecord
		if err := rows.Scan(&f.ID, &f.RunID, &f.Path, &f.Type, &f.Severity, &f.Message, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
