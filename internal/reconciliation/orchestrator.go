package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/apperr"
	"github.com/mbd888/ledger/internal/logging"
	"github.com/mbd888/ledger/internal/money"
	"github.com/mbd888/ledger/internal/traces"
)

// EventSink receives job-lifecycle notifications as the orchestrator runs.
// internal/realtime's Hub implements this; a nil sink is a silent no-op.
type EventSink interface {
	Publish(event string, payload map[string]any)
}

// Orchestrator runs one reconciliation pass: load both sides of the day's
// activity, match each external transaction against the ledger, and
// persist the outcome.
type Orchestrator struct {
	journal *Journal
	ledger  *LedgerReader
	exact   *ExactMatcher
	fuzzy   *FuzzyMatcher
	sink    EventSink
}

// NewOrchestrator wires a journal, ledger reader, and the two matchers.
// sink may be nil.
func NewOrchestrator(journal *Journal, ledger *LedgerReader, exact *ExactMatcher, fuzzy *FuzzyMatcher, sink EventSink) *Orchestrator {
	return &Orchestrator{journal: journal, ledger: ledger, exact: exact, fuzzy: fuzzy, sink: sink}
}

func (o *Orchestrator) publish(event string, payload map[string]any) {
	if o.sink == nil {
		return
	}
	o.sink.Publish(event, payload)
}

// Run executes one reconciliation job for (date, source). It creates or
// reuses the job row, loads both sides, matches row by row, logs each
// outcome, and finalizes the job with its totals.
func (o *Orchestrator) Run(ctx context.Context, date time.Time, source SourceTag, params LoadParams) (uuid.UUID, error) {
	ctx, span := traces.StartSpan(ctx, "reconciliation.run", traces.SourceName(string(source)))
	defer span.End()
	logger := logging.L(ctx).With("source", string(source), "date", date.Format("2006-01-02"))

	if err := ValidateParams(source, params); err != nil {
		return uuid.Nil, err
	}
	loader, err := NewSourceLoader(source)
	if err != nil {
		return uuid.Nil, err
	}

	job, err := o.journal.CreateJob(ctx, date, string(source))
	if err != nil {
		return uuid.Nil, err
	}
	span.SetAttributes(traces.JobID(job.ID.String()))
	o.publish("recon.job.started", map[string]any{"job_id": job.ID.String(), "source": string(source), "date": date.Format("2006-01-02")})

	external, ledgerTxns, err := o.loadBothSides(ctx, loader, date, params)
	if err != nil {
		o.fail(ctx, job.ID, err)
		return job.ID, err
	}
	logger.Info("reconciliation inputs loaded", "external_count", len(external), "ledger_count", len(ledgerTxns))

	matched, unmatched, err := o.matchAll(ctx, job.ID, date, source, external, ledgerTxns)
	if err != nil {
		o.fail(ctx, job.ID, err)
		return job.ID, err
	}

	if err := o.journal.FinalizeJob(ctx, job.ID, JobCompleted, len(external), len(ledgerTxns), matched, unmatched, ""); err != nil {
		return job.ID, err
	}
	logger.Info("reconciliation job completed", "matched", matched, "unmatched", unmatched)
	o.publish("recon.job.completed", map[string]any{
		"job_id": job.ID.String(), "source": string(source), "matched": matched, "unmatched": unmatched,
	})
	return job.ID, nil
}

func (o *Orchestrator) loadBothSides(ctx context.Context, loader SourceLoader, date time.Time, params LoadParams) ([]ExternalTxn, []LedgerTxn, error) {
	external, err := loader.Load(ctx, date, params)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.SourceIO, "load external transactions", err)
	}
	ledgerTxns, err := o.ledger.ForDate(ctx, date)
	if err != nil {
		return nil, nil, err
	}
	return external, ledgerTxns, nil
}

func (o *Orchestrator) matchAll(ctx context.Context, jobID uuid.UUID, date time.Time, source SourceTag, external []ExternalTxn, ledgerTxns []LedgerTxn) (matched, unmatched int, err error) {
	for _, ext := range external {
		status, statusErr := o.journal.JobStatusByID(ctx, jobID)
		if statusErr == nil && status == JobFailed {
			return matched, unmatched, apperr.New(apperr.Internal, "recon job was marked failed during processing")
		}

		result := o.matchOne(ext, ledgerTxns)
		enrichResult(&result, ext, ledgerTxns)

		if logErr := o.journal.LogResult(ctx, date, string(source), result); logErr != nil {
			return matched, unmatched, logErr
		}
		if result.Matched {
			matched++
		} else {
			unmatched++
		}
		o.publish("recon.job.row", map[string]any{
			"job_id": jobID.String(), "external_txn_id": result.ExternalTxnID, "matched": result.Matched,
		})
	}
	return matched, unmatched, nil
}

// matchOne runs the exact cascade first, falling back to fuzzy scoring.
// A confirmed match from either side returns immediately; otherwise the
// higher-scoring of the two unmatched results is kept, exact winning ties,
// so the persisted match_score reflects the best evidence found rather
// than whichever matcher happened to set a MismatchReason.
func (o *Orchestrator) matchOne(ext ExternalTxn, ledgerTxns []LedgerTxn) (result MatchResult) {
	defer func() {
		if r := recover(); r != nil {
			result = MatchResult{
				ExternalTxnID:  ext.TxnID,
				Matched:        false,
				MismatchReason: fmt.Sprintf("Processing error: %v", r),
				Metadata:       Metadata{},
			}
		}
	}()

	candidates := FilterByCurrency(ledgerTxns, ext.Currency)

	exactResult := o.exact.Match(ext, candidates)
	if exactResult.Matched {
		return exactResult
	}

	fuzzyResult := o.fuzzy.Match(ext, candidates)
	if fuzzyResult.Matched {
		return fuzzyResult
	}

	if fuzzyResult.MatchScore > exactResult.MatchScore {
		return fuzzyResult
	}
	return exactResult
}

func enrichResult(result *MatchResult, ext ExternalTxn, ledgerTxns []LedgerTxn) {
	if result.Metadata == nil {
		result.Metadata = Metadata{}
	}
	result.Metadata["external_amount"] = money.Format(ext.Amount)
	result.Metadata["currency"] = ext.Currency
	if result.LedgerTxnID != nil {
		for _, lt := range ledgerTxns {
			if lt.ID == *result.LedgerTxnID {
				result.Metadata["ledger_amount"] = money.Format(lt.Amount)
				break
			}
		}
	}
}

func (o *Orchestrator) fail(ctx context.Context, jobID uuid.UUID, cause error) {
	logging.L(ctx).Error("reconciliation job failed", "job_id", jobID.String(), "error", cause)
	_ = o.journal.FinalizeJob(ctx, jobID, JobFailed, 0, 0, 0, 0, cause.Error())
	o.publish("recon.job.failed", map[string]any{"job_id": jobID.String(), "error": cause.Error()})
}

// LedgerTxn looks up a single ledger-side transaction by id, for drilling
// into the ledger_txn_id recorded on a recon_logs row.
func (o *Orchestrator) LedgerTxn(ctx context.Context, id uuid.UUID) (LedgerTxn, error) {
	return o.ledger.ByID(ctx, id)
}
