package reconciliation

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/apperr"
	"github.com/mbd888/ledger/internal/idgen"
	"github.com/mbd888/ledger/internal/money"
)

// Journal persists reconciliation jobs and their per-row log entries.
type Journal struct {
	db *sql.DB
}

// NewJournal wraps an open database handle.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// CreateJob upserts the job row for (date, source), resetting it to
// RUNNING on reuse — restarting a job for the same key reuses the row
// rather than creating a duplicate.
func (j *Journal) CreateJob(ctx context.Context, date time.Time, source string) (ReconJob, error) {
	id := idgen.New()
	now := time.Now()

	var job ReconJob
	err := j.db.QueryRowContext(ctx, `
		INSERT INTO recon_jobs (id, job_date, source_name, status, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, $5)
		ON CONFLICT (job_date, source_name) DO UPDATE SET
			status     = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			updated_at = now()
		RETURNING id, job_date, source_name, status, started_at, created_at, updated_at
	`, id, date, source, string(JobRunning), now).Scan(
		&job.ID, &job.JobDate, &job.SourceName, &job.Status, &job.StartedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return ReconJob{}, apperr.Wrap(apperr.Database, "create recon job", err)
	}
	return job, nil
}

// FinalizeJob records a job's terminal status and its summary counters.
func (j *Journal) FinalizeJob(ctx context.Context, id uuid.UUID, status JobStatus, totalExternal, totalLedger, matched, unmatched int, errorMessage string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE recon_jobs SET
			status              = $2,
			total_external_txns = $3,
			total_ledger_txns   = $4,
			matched_count       = $5,
			unmatched_count     = $6,
			error_message       = $7,
			completed_at        = now(),
			updated_at          = now()
		WHERE id = $1
	`, id, string(status), totalExternal, totalLedger, matched, unmatched, nullString(errorMessage))
	if err != nil {
		return apperr.Wrap(apperr.Database, "finalize recon job", err)
	}
	return nil
}

// MarkFailed sets a job's status directly, used for the user-cancel path
// (DELETE /recon/jobs/{id}).
func (j *Journal) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE recon_jobs SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1
	`, id, string(JobFailed), nullString(errorMessage))
	if err != nil {
		return apperr.Wrap(apperr.Database, "mark recon job failed", err)
	}
	return nil
}

// JobStatusByID reads a job's current status, used by the orchestrator's
// between-row cancellation check.
func (j *Journal) JobStatusByID(ctx context.Context, id uuid.UUID) (JobStatus, error) {
	var status string
	err := j.db.QueryRowContext(ctx, `SELECT status FROM recon_jobs WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", apperr.New(apperr.NotFound, "recon job not found")
	}
	if err != nil {
		return "", apperr.Wrap(apperr.Database, "read recon job status", err)
	}
	return JobStatus(status), nil
}

// LogResult appends one match-outcome row.
func (j *Journal) LogResult(ctx context.Context, date time.Time, source string, result MatchResult) error {
	metaJSON, err := json.Marshal(result.Metadata)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal match result metadata", err)
	}

	var ledgerAmount, externalAmount *string
	var currency *string
	if v, ok := result.Metadata["ledger_amount"].(string); ok {
		ledgerAmount = &v
	}
	if v, ok := result.Metadata["external_amount"].(string); ok {
		externalAmount = &v
	}
	if v, ok := result.Metadata["currency"].(string); ok {
		currency = &v
	}

	var matchScore *float64
	if result.MatchScore != 0 || result.Matched {
		matchScore = &result.MatchScore
	}

	amountDiff := result.AmountDifference
	if amountDiff == nil {
		amountDiff = big.NewInt(0)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO recon_logs (
			id, recon_date, source_name, external_txn_id, ledger_txn_id, matched,
			mismatch_reason, match_score, amount_difference, ledger_amount,
			external_amount, currency, timestamp_diff_seconds, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::NUMERIC(20,6), $10::NUMERIC(20,6),
			$11::NUMERIC(20,6), $12, $13, $14, now())
	`, idgen.New(), date, source, result.ExternalTxnID, nullableUUID(result.LedgerTxnID), result.Matched,
		nullString(result.MismatchReason), matchScore, money.Format(amountDiff),
		nullableAmount(ledgerAmount), nullableAmount(externalAmount), currency,
		result.TimestampDiffSecs, metaJSON)
	if err != nil {
		return apperr.Wrap(apperr.Database, "log recon result", err)
	}
	return nil
}

// GetJobStatus returns job rows for a date, optionally filtered by source.
func (j *Journal) GetJobStatus(ctx context.Context, date time.Time, source *string) ([]ReconJob, error) {
	var rows *sql.Rows
	var err error
	if source != nil {
		rows, err = j.db.QueryContext(ctx, `
			SELECT id, job_date, source_name, status, total_external_txns, total_ledger_txns,
			       matched_count, unmatched_count, error_message, started_at, completed_at, created_at, updated_at
			FROM recon_jobs WHERE job_date = $1 AND source_name = $2
			ORDER BY created_at DESC
		`, date, *source)
	} else {
		rows, err = j.db.QueryContext(ctx, `
			SELECT id, job_date, source_name, status, total_external_txns, total_ledger_txns,
			       matched_count, unmatched_count, error_message, started_at, completed_at, created_at, updated_at
			FROM recon_jobs WHERE job_date = $1
			ORDER BY created_at DESC
		`, date)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "get recon job status", err)
	}
	defer rows.Close()

	var jobs []ReconJob
	for rows.Next() {
		var job ReconJob
		var errMsg sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&job.ID, &job.JobDate, &job.SourceName, &job.Status, &job.TotalExternalTxns,
			&job.TotalLedgerTxns, &job.MatchedCount, &job.UnmatchedCount, &errMsg, &job.StartedAt,
			&completedAt, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Database, "scan recon job", err)
		}
		job.ErrorMessage = errMsg.String
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetLogs returns log entries for a date, optionally filtered.
func (j *Journal) GetLogs(ctx context.Context, date time.Time, source *string, matched *bool, limit, offset int) ([]ReconLogEntry, error) {
	query := `
		SELECT id, recon_date, source_name, external_txn_id, ledger_txn_id, matched,
		       mismatch_reason, match_score, amount_difference, ledger_amount, external_amount,
		       currency, timestamp_diff_seconds, metadata, created_at
		FROM recon_logs WHERE recon_date = $1`
	args := []any{date}

	if source != nil {
		args = append(args, *source)
		query += " AND source_name = $" + strconv.Itoa(len(args))
	}
	if matched != nil {
		args = append(args, *matched)
		query += " AND matched = $" + strconv.Itoa(len(args))
	}
	args = append(args, limit, offset)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "get recon logs", err)
	}
	defer rows.Close()

	var entries []ReconLogEntry
	for rows.Next() {
		var e ReconLogEntry
		var ledgerTxnID uuid.NullUUID
		var mismatch sql.NullString
		var matchScore sql.NullFloat64
		var amountDiff, ledgerAmount, externalAmount sql.NullString
		var currency sql.NullString
		var tsDiff sql.NullFloat64
		var metaJSON []byte

		if err := rows.Scan(&e.ID, &e.ReconDate, &e.SourceName, &e.ExternalTxnID, &ledgerTxnID, &e.Matched,
			&mismatch, &matchScore, &amountDiff, &ledgerAmount, &externalAmount, &currency, &tsDiff,
			&metaJSON, &e.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Database, "scan recon log", err)
		}

		if ledgerTxnID.Valid {
			id := ledgerTxnID.UUID
			e.LedgerTxnID = &id
		}
		e.MismatchReason = mismatch.String
		if matchScore.Valid {
			e.MatchScore = &matchScore.Float64
		}
		if v, ok := money.Parse(amountDiff.String); ok {
			e.AmountDifference = v
		}
		if v, ok := money.Parse(ledgerAmount.String); ok && ledgerAmount.Valid {
			e.LedgerAmount = v
		}
		if v, ok := money.Parse(externalAmount.String); ok && externalAmount.Valid {
			e.ExternalAmount = v
		}
		e.Currency = currency.String
		if tsDiff.Valid {
			e.TimestampDiffSecs = &tsDiff.Float64
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSummary aggregates the log entries for a (date, source) job run.
func (j *Journal) GetSummary(ctx context.Context, date time.Time, source string) (ReconSummary, error) {
	var summary ReconSummary
	var avgScore sql.NullFloat64
	var totalVariance sql.NullString

	err := j.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE matched = true),
			COUNT(*) FILTER (WHERE matched = false),
			AVG(match_score),
			SUM(ABS(amount_difference)),
			COUNT(DISTINCT external_txn_id),
			COUNT(DISTINCT ledger_txn_id)
		FROM recon_logs WHERE recon_date = $1 AND source_name = $2
	`, date, source).Scan(&summary.Total, &summary.Matched, &summary.Unmatched, &avgScore,
		&totalVariance, &summary.UniqueExternalTxns, &summary.UniqueLedgerTxns)
	if err == sql.ErrNoRows || summary.Total == 0 {
		return ReconSummary{}, apperr.New(apperr.NotFound, "no reconciliation logs for date/source")
	}
	if err != nil {
		return ReconSummary{}, apperr.Wrap(apperr.Database, "get recon summary", err)
	}

	summary.AvgMatchScore = avgScore.Float64
	if v, ok := money.Parse(totalVariance.String); ok {
		summary.TotalAmountVariance = v
	} else {
		summary.TotalAmountVariance = big.NewInt(0)
	}
	return summary, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableAmount(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

