package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/apperr"
	"github.com/mbd888/ledger/internal/logging"
	"github.com/mbd888/ledger/internal/money"
	"github.com/mbd888/ledger/internal/traces"
)

// TransferSink receives a notification once a transfer settles.
// internal/realtime's Hub implements this; a nil sink is a silent no-op.
type TransferSink interface {
	Publish(event string, payload map[string]any)
}

// TransferCoordinator orchestrates validate -> open txn -> funds-check ->
// append -> project -> commit, per spec.md §4.5.
type TransferCoordinator struct {
	db             *sql.DB
	validator      *CommandValidator
	appender       *EventAppender
	projector      *BalanceProjector
	allowOverdraft bool
	sink           TransferSink
}

// NewTransferCoordinator builds a coordinator over an open database
// handle. allowOverdraft, when true, skips the in-transaction funds check.
// sink may be nil.
func NewTransferCoordinator(db *sql.DB, validator *CommandValidator, allowOverdraft bool, sink TransferSink) *TransferCoordinator {
	return &TransferCoordinator{
		db:             db,
		validator:      validator,
		appender:       NewEventAppender(),
		projector:      NewBalanceProjector(),
		allowOverdraft: allowOverdraft,
		sink:           sink,
	}
}

// Transfer runs the full transfer protocol. Validation failures and
// insufficient-funds failures return a TransferResult with Success=false
// and a nil error; DATABASE-class failures return a non-nil error.
func (c *TransferCoordinator) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	ctx, span := traces.StartSpan(ctx, "ledger.transfer",
		traces.Amount(money.Format(req.Amount)),
		traces.Currency(req.Currency),
	)
	defer span.End()

	logger := logging.L(ctx)

	if errs := c.validator.Validate(ctx, req); !errs.Empty() {
		logger.Warn("transfer rejected by validation", "errors", []string(errs))
		return TransferResult{Success: false, Errors: []string(errs)}, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return TransferResult{}, apperr.Wrap(apperr.Database, "begin transfer transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if !c.allowOverdraft {
		sufficient, err := fundsSufficient(ctx, tx, req.SourceAccountID, req.Amount)
		if err != nil {
			return TransferResult{}, apperr.Wrap(apperr.Database, "check available funds", err)
		}
		if !sufficient {
			logger.Info("transfer declined: insufficient funds",
				"source_account_id", req.SourceAccountID, "amount", money.Format(req.Amount))
			return TransferResult{Success: false, Errors: []string{"Insufficient funds"}}, nil
		}
	}

	events, err := c.appender.AppendTransfer(ctx, tx, req.SourceAccountID, req.DestinationAccountID, req.Amount, req.Currency, req.Metadata)
	if err != nil {
		return TransferResult{}, apperr.Wrap(apperr.Database, "append transfer events", err)
	}

	if _, err := c.projector.Project(ctx, tx, events[:]); err != nil {
		return TransferResult{}, apperr.Wrap(apperr.Database, "project balances", err)
	}

	if err := tx.Commit(); err != nil {
		return TransferResult{}, apperr.Wrap(apperr.Database, "commit transfer transaction", err)
	}
	committed = true

	logger.Info("transfer settled",
		"transaction_id", events[0].TransactionID,
		"source_account_id", req.SourceAccountID,
		"destination_account_id", req.DestinationAccountID,
		"amount", money.Format(req.Amount),
	)

	if c.sink != nil {
		c.sink.Publish("transfer.completed", map[string]any{
			"transaction_id":         events[0].TransactionID.String(),
			"source_account_id":      req.SourceAccountID.String(),
			"destination_account_id": req.DestinationAccountID.String(),
			"amount":                 money.Format(req.Amount),
			"currency":               req.Currency,
		})
	}

	return TransferResult{
		Success:       true,
		TransactionID: events[0].TransactionID,
		Events:        events[:],
	}, nil
}

// fundsSufficient reads the source account's available balance within the
// open transaction — the row lock taken here is released only at commit,
// so a concurrent transfer touching the same account serialises behind
// this one rather than racing it.
func fundsSufficient(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount *big.Int) (bool, error) {
	var availableStr string
	err := tx.QueryRowContext(ctx, `
		SELECT available FROM balances WHERE account_id = $1 FOR UPDATE
	`, accountID).Scan(&availableStr)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	available, ok := money.Parse(availableStr)
	if !ok {
		return false, fmt.Errorf("malformed available balance %q", availableStr)
	}
	return available.Cmp(amount) >= 0, nil
}
