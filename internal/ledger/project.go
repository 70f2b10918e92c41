package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/money"
)

// BalanceProjector applies the net effect of a batch of events to their
// accounts' balance rows, within the caller's transaction.
type BalanceProjector struct{}

// NewBalanceProjector constructs a BalanceProjector.
func NewBalanceProjector() *BalanceProjector { return &BalanceProjector{} }

// Project accumulates a per-account available-balance delta across events
// — DEBIT subtracts from its source, CREDIT adds to its destination — and
// applies each aggregated delta via a single atomic upsert per account.
func (p *BalanceProjector) Project(ctx context.Context, tx *sql.Tx, events []LedgerEvent) ([]Balance, error) {
	deltas := make(map[uuid.UUID]*big.Int)
	currencies := make(map[uuid.UUID]string)

	addDelta := func(id uuid.UUID, currency string, delta *big.Int) {
		if existing, ok := deltas[id]; ok {
			existing.Add(existing, delta)
		} else {
			deltas[id] = new(big.Int).Set(delta)
		}
		currencies[id] = currency
	}

	for _, ev := range events {
		switch ev.EventType {
		case EventDebit:
			if ev.SourceAccountID != nil {
				addDelta(*ev.SourceAccountID, ev.Currency, new(big.Int).Neg(ev.Amount))
			}
		case EventCredit:
			if ev.DestinationAccountID != nil {
				addDelta(*ev.DestinationAccountID, ev.Currency, new(big.Int).Set(ev.Amount))
			}
		}
	}

	balances := make([]Balance, 0, len(deltas))
	for id, delta := range deltas {
		bal, err := upsertBalance(ctx, tx, id, currencies[id], delta)
		if err != nil {
			return nil, fmt.Errorf("project balance for account %s: %w", id, err)
		}
		balances = append(balances, bal)
	}
	return balances, nil
}

// upsertBalance applies delta to the account's available balance using
// server-side arithmetic, so concurrent disjoint transfers never clobber
// each other and overlapping ones serialise on the row lock this statement
// takes.
func upsertBalance(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, currency string, delta *big.Int) (Balance, error) {
	var bal Balance
	bal.AccountID = accountID

	row := tx.QueryRowContext(ctx, `
		INSERT INTO balances (account_id, currency, available, pending, version, last_updated)
		VALUES ($1, $2, $3::NUMERIC(20,6), 0, 0, now())
		ON CONFLICT (account_id) DO UPDATE SET
			available    = balances.available + $3::NUMERIC(20,6),
			last_updated = now(),
			version      = balances.version + 1
		RETURNING currency, available, pending, version, last_updated
	`, accountID, currency, money.Format(delta))

	var availableStr, pendingStr string
	if err := row.Scan(&bal.Currency, &availableStr, &pendingStr, &bal.Version, &bal.LastUpdated); err != nil {
		return Balance{}, err
	}

	available, ok := money.Parse(availableStr)
	if !ok {
		return Balance{}, fmt.Errorf("malformed available balance %q", availableStr)
	}
	pending, ok := money.Parse(pendingStr)
	if !ok {
		return Balance{}, fmt.Errorf("malformed pending balance %q", pendingStr)
	}
	bal.Available = available
	bal.Pending = pending
	return bal, nil
}
