package reconciliation

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/apperr"
	"github.com/mbd888/ledger/internal/money"
)

// LedgerReader reads the ledger's own event rows for reconciliation,
// independent of internal/ledger's package boundary.
type LedgerReader struct {
	db *sql.DB
}

// NewLedgerReader wraps an open database handle.
func NewLedgerReader(db *sql.DB) *LedgerReader {
	return &LedgerReader{db: db}
}

// ForDate returns every ledger event whose event_timestamp falls on date,
// ordered chronologically.
func (r *LedgerReader) ForDate(ctx context.Context, date time.Time) ([]LedgerTxn, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, transaction_id, amount, currency, event_timestamp, event_type, metadata
		FROM ledger_events
		WHERE event_timestamp::date = $1::date
		ORDER BY event_timestamp ASC
	`, date)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "read ledger events for date", err)
	}
	defer rows.Close()

	var txns []LedgerTxn
	for rows.Next() {
		var txn LedgerTxn
		var amountStr string
		var metaJSON []byte
		if err := rows.Scan(&txn.ID, &txn.TransactionID, &amountStr, &txn.Currency, &txn.Timestamp, &txn.EventType, &metaJSON); err != nil {
			return nil, apperr.Wrap(apperr.Database, "scan ledger event", err)
		}
		amount, ok := money.Parse(amountStr)
		if !ok {
			return nil, apperr.New(apperr.Database, "malformed ledger event amount")
		}
		txn.Amount = amount
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &txn.Metadata); err != nil {
				return nil, apperr.Wrap(apperr.Database, "unmarshal ledger event metadata", err)
			}
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// ByID returns a single ledger event by its id.
func (r *LedgerReader) ByID(ctx context.Context, id uuid.UUID) (LedgerTxn, error) {
	var txn LedgerTxn
	var amountStr string
	var metaJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, amount, currency, event_timestamp, event_type, metadata
		FROM ledger_events WHERE id = $1
	`, id).Scan(&txn.ID, &txn.TransactionID, &amountStr, &txn.Currency, &txn.Timestamp, &txn.EventType, &metaJSON)
	if err == sql.ErrNoRows {
		return LedgerTxn{}, apperr.New(apperr.NotFound, "ledger transaction not found")
	}
	if err != nil {
		return LedgerTxn{}, apperr.Wrap(apperr.Database, "get ledger event", err)
	}
	amount, ok := money.Parse(amountStr)
	if !ok {
		return LedgerTxn{}, apperr.New(apperr.Database, "malformed ledger event amount")
	}
	txn.Amount = amount
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &txn.Metadata); err != nil {
			return LedgerTxn{}, apperr.Wrap(apperr.Database, "unmarshal ledger event metadata", err)
		}
	}
	return txn, nil
}

// FilterByCurrency returns the subset of txns matching currency.
func FilterByCurrency(txns []LedgerTxn, currency string) []LedgerTxn {
	var out []LedgerTxn
	for _, t := range txns {
		if t.Currency == currency {
			out = append(out, t)
		}
	}
	return out
}
