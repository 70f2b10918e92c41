package ledger

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// AccountStore creates and reads accounts and their balances.
type AccountStore interface {
	CreateAccount(ctx context.Context, currency, accountType string, metadata Metadata) (Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	AccountExists(ctx context.Context, id uuid.UUID) (bool, error)
	GetBalance(ctx context.Context, id uuid.UUID) (Balance, error)
	ListEvents(ctx context.Context, accountID *uuid.UUID, limit int) ([]LedgerEvent, error)
}

// TxBeginner opens a storage transaction, the one connection-acquiring
// operation the domain core is allowed to call; everything downstream of
// it takes the resulting *sql.Tx instead of opening its own.
type TxBeginner interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
}
