package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/ledger/internal/testutil"
)

func newCoordinator(store *PostgresStore, maxAmount *big.Int, allowOverdraft bool) *TransferCoordinator {
	validator := NewCommandValidator(store, maxAmount)
	return NewTransferCoordinator(store.db, validator, allowOverdraft, nil)
}

// TestTransferCoordinator_ConservationAcrossMultipleTransfers is S1: Float
// seeds Alice, Alice pays Bob, Bob refunds part of it back to Alice. The
// three-account total must stay at zero and every transaction_id must pair
// exactly one DEBIT with one CREDIT.
func TestTransferCoordinator_ConservationAcrossMultipleTransfers(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	coord := newCoordinator(store, big.NewInt(1_000_000_00), true)
	ctx := context.Background()

	alice, err := store.CreateAccount(ctx, "USD", "customer", nil)
	require.NoError(t, err)
	bob, err := store.CreateAccount(ctx, "USD", "customer", nil)
	require.NoError(t, err)
	float, err := store.CreateAccount(ctx, "USD", "float", nil)
	require.NoError(t, err)

	transfers := []struct {
		from, to Account
		amount   int64
	}{
		{float, alice, 50000},
		{alice, bob, 10000},
		{bob, alice, 5000},
	}

	for _, tr := range transfers {
		result, err := coord.Transfer(ctx, TransferRequest{
			SourceAccountID:      tr.from.ID,
			DestinationAccountID: tr.to.ID,
			Amount:               big.NewInt(tr.amount),
			Currency:             "USD",
		})
		require.NoError(t, err)
		require.True(t, result.Success, "errors: %v", result.Errors)
	}

	aliceBal, err := store.GetBalance(ctx, alice.ID)
	require.NoError(t, err)
	bobBal, err := store.GetBalance(ctx, bob.ID)
	require.NoError(t, err)
	floatBal, err := store.GetBalance(ctx, float.ID)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(45000), aliceBal.Available)
	assert.Equal(t, big.NewInt(5000), bobBal.Available)
	assert.Equal(t, big.NewInt(-50000), floatBal.Available)

	events, err := store.ListEvents(ctx, nil, 100)
	require.NoError(t, err)

	byTxn := make(map[string][]LedgerEvent)
	for _, ev := range events {
		byTxn[ev.TransactionID.String()] = append(byTxn[ev.TransactionID.String()], ev)
	}
	require.Len(t, byTxn, 3, "expected three distinct transaction_ids")
	for txnID, pair := range byTxn {
		require.Lenf(t, pair, 2, "transaction %s did not pair exactly one debit with one credit", txnID)
		var debits, credits int
		for _, ev := range pair {
			switch ev.EventType {
			case EventDebit:
				debits++
			case EventCredit:
				credits++
			}
		}
		assert.Equal(t, 1, debits)
		assert.Equal(t, 1, credits)
	}
}

// TestTransferCoordinator_InsufficientFundsRejected is S2.
func TestTransferCoordinator_InsufficientFundsRejected(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	coord := newCoordinator(store, big.NewInt(1_000_000_00), false)
	ctx := context.Background()

	alice, err := store.CreateAccount(ctx, "USD", "customer", nil)
	require.NoError(t, err)
	bob, err := store.CreateAccount(ctx, "USD", "customer", nil)
	require.NoError(t, err)

	result, err := coord.Transfer(ctx, TransferRequest{
		SourceAccountID:      alice.ID,
		DestinationAccountID: bob.ID,
		Amount:               big.NewInt(1000000),
		Currency:             "USD",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors, "Insufficient funds")

	events, err := store.ListEvents(ctx, nil, 100)
	require.NoError(t, err)
	assert.Empty(t, events, "no events should be written for a declined transfer")
}

// TestTransferCoordinator_SelfTransferRejected is S3.
func TestTransferCoordinator_SelfTransferRejected(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	coord := newCoordinator(store, big.NewInt(1_000_000_00), true)
	ctx := context.Background()

	alice, err := store.CreateAccount(ctx, "USD", "customer", nil)
	require.NoError(t, err)

	result, err := coord.Transfer(ctx, TransferRequest{
		SourceAccountID:      alice.ID,
		DestinationAccountID: alice.ID,
		Amount:               big.NewInt(10),
		Currency:             "USD",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)

	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "same")
}

// TestTransferCoordinator_AtomicRollbackOnOverdraftDecline confirms balances
// are untouched when a transfer is declined for insufficient funds: the
// transaction check happens before any event append.
func TestTransferCoordinator_AtomicRollbackOnOverdraftDecline(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	coord := newCoordinator(store, big.NewInt(1_000_000_00), false)
	ctx := context.Background()

	alice, err := store.CreateAccount(ctx, "USD", "customer", nil)
	require.NoError(t, err)
	bob, err := store.CreateAccount(ctx, "USD", "customer", nil)
	require.NoError(t, err)

	beforeAlice, err := store.GetBalance(ctx, alice.ID)
	require.NoError(t, err)
	beforeBob, err := store.GetBalance(ctx, bob.ID)
	require.NoError(t, err)

	_, err = coord.Transfer(ctx, TransferRequest{
		SourceAccountID:      alice.ID,
		DestinationAccountID: bob.ID,
		Amount:               big.NewInt(100),
		Currency:             "USD",
	})
	require.NoError(t, err)

	afterAlice, err := store.GetBalance(ctx, alice.ID)
	require.NoError(t, err)
	afterBob, err := store.GetBalance(ctx, bob.ID)
	require.NoError(t, err)

	assert.Equal(t, beforeAlice.Available, afterAlice.Available)
	assert.Equal(t, beforeBob.Available, afterBob.Available)
}
