// Package ledger implements the event-sourced double-entry ledger: account
// creation, transfer validation, paired debit/credit event append, and
// balance projection.
package ledger

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a LedgerEvent row.
type EventType string

const (
	EventDebit    EventType = "DEBIT"
	EventCredit   EventType = "CREDIT"
	EventTransfer EventType = "TRANSFER"
)

// EventStatus is the settlement state of a LedgerEvent.
type EventStatus string

const (
	StatusPending EventStatus = "PENDING"
	StatusSettled EventStatus = "SETTLED"
	StatusFailed  EventStatus = "FAILED"
)

// Metadata is a dynamically typed key/value bag attached to accounts,
// events, and transient external transactions. Numeric values carried in
// metadata remain strings on the wire.
type Metadata map[string]any

// Account is a holder of funds in a single currency.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Currency  string    `json:"currency"`
	Type      string    `json:"type"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Balance is the materialised projection of an account's ledger events.
type Balance struct {
	AccountID    uuid.UUID `json:"account_id"`
	Currency     string    `json:"currency"`
	Available    *big.Int  `json:"-"`
	Pending      *big.Int  `json:"-"`
	LastUpdated  time.Time `json:"last_updated"`
	Version      int64     `json:"version"`
}

// LedgerEvent is an immutable record of one side of a transfer.
type LedgerEvent struct {
	ID                   uuid.UUID   `json:"id"`
	TransactionID        uuid.UUID   `json:"transaction_id"`
	Timestamp            time.Time   `json:"timestamp"`
	SourceAccountID      *uuid.UUID  `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID  `json:"destination_account_id,omitempty"`
	Amount               *big.Int    `json:"-"`
	Currency             string      `json:"currency"`
	EventType            EventType   `json:"event_type"`
	Status               EventStatus `json:"status"`
	Metadata             Metadata    `json:"metadata,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
}

// TransferRequest is the input to TransferCoordinator.Transfer.
type TransferRequest struct {
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               *big.Int
	Currency             string
	Metadata             Metadata
}

// TransferResult is the outcome of a transfer attempt.
type TransferResult struct {
	Success       bool          `json:"success"`
	TransactionID uuid.UUID     `json:"transaction_id,omitempty"`
	Events        []LedgerEvent `json:"events,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
}
