package ledger

import (
	"context"
	"math/big"

	"github.com/mbd888/ledger/internal/apperr"
)

// CommandValidator checks a transfer request against the ordered rules in
// spec.md §4.2. Rules accumulate — every violated rule is appended to the
// result, none short-circuits the rest except where a later rule depends
// on an earlier one having passed (currency match requires both accounts
// to exist).
type CommandValidator struct {
	accounts             AccountStore
	maxTransactionAmount *big.Int
}

// NewCommandValidator builds a validator bound to the given maximum
// transaction amount (smallest-unit).
func NewCommandValidator(accounts AccountStore, maxTransactionAmount *big.Int) *CommandValidator {
	return &CommandValidator{accounts: accounts, maxTransactionAmount: maxTransactionAmount}
}

// Validate runs the ordered rule set and returns the accumulated
// violations. An empty result means the request may proceed.
func (v *CommandValidator) Validate(ctx context.Context, req TransferRequest) apperr.ValidationErrors {
	var errs apperr.ValidationErrors

	if req.Amount == nil || req.Amount.Sign() <= 0 {
		errs = append(errs, "amount must be greater than zero")
	}
	if req.Amount != nil && v.maxTransactionAmount != nil && req.Amount.Cmp(v.maxTransactionAmount) > 0 {
		errs = append(errs, "amount exceeds maximum transaction amount")
	}
	if req.SourceAccountID == req.DestinationAccountID {
		errs = append(errs, "source and destination must not be the same account")
	}

	sourceExists, destExists := true, true
	source, err := v.accounts.GetAccount(ctx, req.SourceAccountID)
	if err != nil {
		sourceExists = false
		errs = append(errs, "source account does not exist")
	}
	dest, err := v.accounts.GetAccount(ctx, req.DestinationAccountID)
	if err != nil {
		destExists = false
		errs = append(errs, "destination account does not exist")
	}

	if sourceExists && destExists {
		if source.Currency != req.Currency || dest.Currency != req.Currency {
			errs = append(errs, "source, destination, and request currency must match")
		}
	}

	return errs
}
