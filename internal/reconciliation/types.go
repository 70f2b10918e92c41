// Package reconciliation compares the ledger's internal record of activity
// against external sources (bank statements, payment-processor
// settlements, third-party APIs) for a given business day.
package reconciliation

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a ReconJob.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Metadata is a dynamically typed key/value bag.
type Metadata map[string]any

// ExternalTxn is one transaction read from an external source, normalised
// to a common shape regardless of which SourceLoader produced it.
type ExternalTxn struct {
	TxnID       string
	Amount      *big.Int
	Currency    string
	Timestamp   time.Time
	Description string
	Metadata    Metadata
}

// LedgerTxn is one side of a ledger event, as seen by the reconciliation
// engine (the orchestrator matches against individual DEBIT/CREDIT rows,
// not transaction pairs).
type LedgerTxn struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	Amount        *big.Int
	Currency      string
	Timestamp     time.Time
	EventType     string
	Description   string
	Metadata      Metadata
}

// MatchResult is the outcome of running one matcher against one
// ExternalTxn.
type MatchResult struct {
	ExternalTxnID     string
	LedgerTxnID       *uuid.UUID
	Matched           bool
	MismatchReason    string
	MatchScore        float64
	AmountDifference  *big.Int
	TimestampDiffSecs float64
	Metadata          Metadata
}

// ReconJob is the persisted record of one reconciliation run for a
// (job_date, source_name) pair.
type ReconJob struct {
	ID                 uuid.UUID
	JobDate            time.Time
	SourceName         string
	Status             JobStatus
	TotalExternalTxns  int
	TotalLedgerTxns    int
	MatchedCount       int
	UnmatchedCount     int
	ErrorMessage       string
	StartedAt          time.Time
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReconLogEntry is one durable row recording the match outcome for a
// single external transaction within a job run.
type ReconLogEntry struct {
	ID                  uuid.UUID
	ReconDate           time.Time
	SourceName          string
	ExternalTxnID       string
	LedgerTxnID         *uuid.UUID
	Matched             bool
	MismatchReason      string
	MatchScore          *float64
	AmountDifference    *big.Int
	LedgerAmount        *big.Int
	ExternalAmount      *big.Int
	Currency            string
	TimestampDiffSecs   *float64
	Metadata            Metadata
	CreatedAt           time.Time
}

// ReconSummary aggregates the log entries for a (date, source) job run.
type ReconSummary struct {
	Total                int
	Matched              int
	Unmatched            int
	AvgMatchScore        float64
	TotalAmountVariance  *big.Int
	UniqueExternalTxns   int
	UniqueLedgerTxns     int
}

// LoadParams carries the per-source parameters needed to load a day's
// external transactions.
type LoadParams struct {
	FilePath  string
	BaseURL   string
	AuthToken string
}
