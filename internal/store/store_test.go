package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fixflow/fixflow/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFixTaskArchiveAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &FixTaskRepo{}

	rec := domain.TaskRecord{
		TaskID:     "fix-1",
		Agent:      "EXECUTOR",
		FilLevel:   domain.Fil2,
		Phase:      domain.PhaseCompleted,
		PathsJSON:  `["a.go"]`,
		CreatedAt:  100,
		FinishedAt: 200,
	}
	if err := repo.Archive(ctx, db, rec); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	got, err := repo.GetByID(ctx, db, "fix-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Agent != "EXECUTOR" || got.FilLevel != domain.Fil2 || got.Phase != domain.PhaseCompleted {
		t.Errorf("got = %+v, want the archived record back", got)
	}
}

func TestFixTaskArchiveDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &FixTaskRepo{}

	rec := domain.TaskRecord{TaskID: "fix-1", Agent: "EXECUTOR", Phase: domain.PhaseFailed}
	if err := repo.Archive(ctx, db, rec); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if err := repo.Archive(ctx, db, rec); !errors.Is(err, domain.ErrDuplicateTask) {
		t.Errorf("second Archive = %v, want ErrDuplicateTask", err)
	}
}

func TestFixTaskGetMissing(t *testing.T) {
	db := newTestDB(t)

	if _, err := (&FixTaskRepo{}).GetByID(context.Background(), db, "nope"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("GetByID = %v, want ErrTaskNotFound", err)
	}
}

func TestFixTaskListByAgent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &FixTaskRepo{}

	for i, rec := range []domain.TaskRecord{
		{TaskID: "fix-1", Agent: "EXECUTOR", Phase: domain.PhaseCompleted, FinishedAt: 100},
		{TaskID: "fix-2", Agent: "EXECUTOR", Phase: domain.PhaseFailed, FinishedAt: 200},
		{TaskID: "fix-3", Agent: "AUDITOR", Phase: domain.PhaseCompleted, FinishedAt: 300},
	} {
		if err := repo.Archive(ctx, db, rec); err != nil {
			t.Fatalf("Archive %d failed: %v", i, err)
		}
	}

	got, err := repo.ListByAgent(ctx, db, "EXECUTOR")
	if err != nil {
		t.Fatalf("ListByAgent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("list = %d records, want 2", len(got))
	}
	if got[0].TaskID != "fix-2" {
		t.Errorf("first record = %s, want fix-2 (newest first)", got[0].TaskID)
	}
}

func TestCycleEventAppendAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &CycleEventRepo{}

	events := []domain.CycleEvent{
		{TaskID: "fix-1", SeqNo: 1, ToPhase: domain.PhaseRed, Reason: "admitted", CreatedAt: 100},
		{TaskID: "fix-1", SeqNo: 2, FromPhase: domain.PhaseRed, ToPhase: domain.PhaseGreen, Reason: "failing test confirmed", CreatedAt: 101},
		{TaskID: "fix-2", SeqNo: 1, ToPhase: domain.PhaseRed, Reason: "admitted", CreatedAt: 102},
	}
	for i, e := range events {
		if err := repo.Append(ctx, db, e); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	got, err := repo.ListByTask(ctx, db, "fix-1")
	if err != nil {
		t.Fatalf("ListByTask failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].SeqNo != 1 || got[1].SeqNo != 2 {
		t.Errorf("sequence = %d,%d, want 1,2", got[0].SeqNo, got[1].SeqNo)
	}
	if got[1].FromPhase != domain.PhaseRed || got[1].ToPhase != domain.PhaseGreen {
		t.Errorf("transition = %s->%s, want red->green", got[1].FromPhase, got[1].ToPhase)
	}
}

func TestAuditRecordAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &AuditRepo{}

	rec := domain.AuditRecord{
		ID:           "aud-1",
		TaskID:       "fix-1",
		Category:     "fil",
		Actor:        "system",
		Action:       "fil_blocked",
		RequestJSON:  `{"agent":"EXECUTOR"}`,
		DecisionJSON: `{"escalation_required":true}`,
		Severity:     "warning",
		CreatedAt:    100,
	}
	if err := repo.Record(ctx, db, rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := repo.ListByTask(ctx, db, "fix-1")
	if err != nil {
		t.Fatalf("ListByTask failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("records = %d, want 1", len(got))
	}
	if got[0].Action != "fil_blocked" || got[0].DecisionJSON != `{"escalation_required":true}` {
		t.Errorf("got = %+v, want the escalation marker preserved", got[0])
	}
}

func TestFindingSaveRunAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &FindingRepo{}

	recs := []domain.FindingRecord{
		{ID: "fnd-1", RunID: "run-1", Path: "b.go", Type: "long-line", Severity: "low", CreatedAt: 100},
		{ID: "fnd-2", RunID: "run-1", Path: "a.go", Type: "marker-comment", Severity: "low", CreatedAt: 100},
		{ID: "fnd-3", RunID: "run-2", Path: "a.go", Type: "marker-comment", Severity: "low", CreatedAt: 101},
	}
	if err := repo.SaveRun(ctx, db, recs[:2]); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := repo.SaveRun(ctx, db, recs[2:]); err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	got, err := repo.ListByRun(ctx, db, "run-1")
	if err != nil {
		t.Fatalf("ListByRun failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("findings = %d, want 2", len(got))
	}
	if got[0].Path != "a.go" {
		t.Errorf("first finding = %s, want a.go (ordered by path)", got[0].Path)
	}
}

func TestFindingSaveRunRollsBackOnDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &FindingRepo{}

	recs := []domain.FindingRecord{
		{ID: "fnd-1", RunID: "run-1", Path: "a.go", Type: "long-line", CreatedAt: 100},
		{ID: "fnd-2", RunID: "run-1", Path: "a.go", Type: "long-line", CreatedAt: 100},
	}
	if err := repo.SaveRun(ctx, db, recs); err == nil {
		t.Fatal("duplicate findings saved, want unique violation")
	}

	got, err := repo.ListByRun(ctx, db, "run-1")
	if err != nil {
		t.Fatalf("ListByRun failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("findings = %d, want 0 after rollback", len(got))
	}
}
