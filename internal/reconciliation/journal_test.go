package reconciliation

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/testutil"
)

func TestJournal_CreateJob_UpsertsOnRerun(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	j := NewJournal(db)
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	first, err := j.CreateJob(context.Background(), date, "csv")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if first.Status != JobRunning {
		t.Errorf("Status = %v, want JobRunning", first.Status)
	}

	if err := j.FinalizeJob(context.Background(), first.ID, JobCompleted, 5, 5, 5, 0, ""); err != nil {
		t.Fatalf("FinalizeJob: %v", err)
	}

	second, err := j.CreateJob(context.Background(), date, "csv")
	if err != nil {
		t.Fatalf("CreateJob (rerun): %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("rerun created a new row: first=%s second=%s, want the same (date, source) row reused", first.ID, second.ID)
	}
	if second.Status != JobRunning {
		t.Errorf("rerun Status = %v, want JobRunning (reset)", second.Status)
	}
}

func TestJournal_FinalizeJob_RecordsCounters(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	j := NewJournal(db)
	date := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	job, err := j.CreateJob(context.Background(), date, "api")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := j.FinalizeJob(context.Background(), job.ID, JobCompleted, 10, 8, 7, 3, ""); err != nil {
		t.Fatalf("FinalizeJob: %v", err)
	}

	status, err := j.JobStatusByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("JobStatusByID: %v", err)
	}
	if status != JobCompleted {
		t.Errorf("status = %v, want JobCompleted", status)
	}
}

func TestJournal_MarkFailed(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	j := NewJournal(db)
	date := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	job, err := j.CreateJob(context.Background(), date, "payment_processor")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := j.MarkFailed(context.Background(), job.ID, "operator cancelled"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	status, err := j.JobStatusByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("JobStatusByID: %v", err)
	}
	if status != JobFailed {
		t.Errorf("status = %v, want JobFailed", status)
	}
}

func TestJournal_LogResultAndGetSummary(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	j := NewJournal(db)
	date := time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC)
	source := "csv"

	if err := j.LogResult(context.Background(), date, source, MatchResult{
		ExternalTxnID: "ext-1", Matched: true, MatchScore: 1.0,
		AmountDifference: big.NewInt(0),
	}); err != nil {
		t.Fatalf("LogResult (matched): %v", err)
	}
	if err := j.LogResult(context.Background(), date, source, MatchResult{
		ExternalTxnID: "ext-2", Matched: false, MatchScore: 0.4, MismatchReason: "below threshold",
		AmountDifference: big.NewInt(500),
	}); err != nil {
		t.Fatalf("LogResult (unmatched): %v", err)
	}

	summary, err := j.GetSummary(context.Background(), date, source)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.Total != 2 {
		t.Errorf("Total = %d, want 2", summary.Total)
	}
	if summary.Matched != 1 {
		t.Errorf("Matched = %d, want 1", summary.Matched)
	}
	if summary.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", summary.Unmatched)
	}
}

func TestJournal_JobStatusByID_NotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	j := NewJournal(db)
	_, err := j.JobStatusByID(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected an error for an unknown job id")
	}
}
