package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/idgen"
	"github.com/mbd888/ledger/internal/money"
)

// EventAppender writes the paired DEBIT/CREDIT rows for a transfer within
// a caller-supplied transaction.
type EventAppender struct{}

// NewEventAppender constructs an EventAppender. It holds no state; the
// transaction is supplied per call.
func NewEventAppender() *EventAppender { return &EventAppender{} }

// AppendTransfer writes one DEBIT event (source) and one CREDIT event
// (destination) sharing a freshly generated transaction_id.
func (a *EventAppender) AppendTransfer(
	ctx context.Context, tx *sql.Tx,
	sourceID, destID uuid.UUID, amount *big.Int, currency string, metadata Metadata,
) ([2]LedgerEvent, error) {
	txnID := idgen.New()
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return [2]LedgerEvent{}, fmt.Errorf("marshal metadata: %w", err)
	}

	debit, err := insertEvent(ctx, tx, txnID, EventDebit, &sourceID, nil, amount, currency, metaJSON)
	if err != nil {
		return [2]LedgerEvent{}, fmt.Errorf("insert debit event: %w", err)
	}

	credit, err := insertEvent(ctx, tx, txnID, EventCredit, nil, &destID, amount, currency, metaJSON)
	if err != nil {
		return [2]LedgerEvent{}, fmt.Errorf("insert credit event: %w", err)
	}

	debit.Metadata = metadata
	credit.Metadata = metadata
	return [2]LedgerEvent{debit, credit}, nil
}

func insertEvent(
	ctx context.Context, tx *sql.Tx,
	txnID uuid.UUID, eventType EventType, sourceID, destID *uuid.UUID,
	amount *big.Int, currency string, metaJSON []byte,
) (LedgerEvent, error) {
	ev := LedgerEvent{
		ID:                   idgen.New(),
		TransactionID:        txnID,
		SourceAccountID:      sourceID,
		DestinationAccountID: destID,
		Amount:               amount,
		Currency:             currency,
		EventType:            eventType,
		Status:               StatusSettled,
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO ledger_events
			(id, transaction_id, source_account_id, destination_account_id,
			 amount, currency, event_type, status, metadata, created_at, event_timestamp)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(20,6), $6, $7, $8, $9, now(), now())
		RETURNING created_at, event_timestamp
	`, ev.ID, ev.TransactionID, nullUUID(sourceID), nullUUID(destID),
		amountString(amount), currency, string(eventType), string(StatusSettled), metaJSON)

	if err := row.Scan(&ev.CreatedAt, &ev.Timestamp); err != nil {
		return LedgerEvent{}, err
	}
	return ev, nil
}

func amountString(amount *big.Int) string {
	return money.Format(amount)
}

func marshalMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}
