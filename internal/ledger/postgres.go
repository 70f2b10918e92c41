package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/apperr"
	"github.com/mbd888/ledger/internal/idgen"
	"github.com/mbd888/ledger/internal/money"
)

// PostgresStore implements AccountStore and TxBeginner against Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// BeginTx opens a transaction for the TransferCoordinator's caller-supplied-
// transaction protocol.
func (s *PostgresStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// CreateAccount inserts a new account and seeds its zero balance row in a
// single transaction.
func (s *PostgresStore) CreateAccount(ctx context.Context, currency, accountType string, metadata Metadata) (Account, error) {
	if len(currency) != 3 {
		return Account{}, apperr.New(apperr.Validation, "currency must be a 3-character ISO code")
	}

	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return Account{}, apperr.Wrap(apperr.Validation, "marshal account metadata", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, apperr.Wrap(apperr.Database, "begin create account transaction", err)
	}
	defer tx.Rollback()

	acct := Account{ID: idgen.New(), Currency: currency, Type: accountType, Metadata: metadata}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO accounts (id, currency, account_type, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING created_at, updated_at
	`, acct.ID, acct.Currency, acct.Type, metaJSON)
	if err := row.Scan(&acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return Account{}, apperr.Wrap(apperr.Database, "insert account", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balances (account_id, currency, available, pending, version, last_updated)
		VALUES ($1, $2, 0, 0, 0, now())
	`, acct.ID, acct.Currency); err != nil {
		return Account{}, apperr.Wrap(apperr.Database, "seed balance", err)
	}

	if err := tx.Commit(); err != nil {
		return Account{}, apperr.Wrap(apperr.Database, "commit create account transaction", err)
	}
	return acct, nil
}

// GetAccount reads a single account by id.
func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	var acct Account
	var metaJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, currency, account_type, metadata, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id).Scan(&acct.ID, &acct.Currency, &acct.Type, &metaJSON, &acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return Account{}, apperr.New(apperr.NotFound, "account not found")
	}
	if err != nil {
		return Account{}, apperr.Wrap(apperr.Database, "get account", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &acct.Metadata); err != nil {
			return Account{}, apperr.Wrap(apperr.Database, "unmarshal account metadata", err)
		}
	}
	return acct, nil
}

// AccountExists reports whether an account id is known.
func (s *PostgresStore) AccountExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.Database, "check account existence", err)
	}
	return exists, nil
}

// GetBalance reads an account's current balance projection.
func (s *PostgresStore) GetBalance(ctx context.Context, id uuid.UUID) (Balance, error) {
	var bal Balance
	bal.AccountID = id
	var availableStr, pendingStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT currency, available, pending, version, last_updated
		FROM balances WHERE account_id = $1
	`, id).Scan(&bal.Currency, &availableStr, &pendingStr, &bal.Version, &bal.LastUpdated)
	if err == sql.ErrNoRows {
		return Balance{}, apperr.New(apperr.NotFound, "balance not found")
	}
	if err != nil {
		return Balance{}, apperr.Wrap(apperr.Database, "get balance", err)
	}

	available, ok := money.Parse(availableStr)
	if !ok {
		return Balance{}, apperr.Wrap(apperr.Database, "parse available balance", fmt.Errorf("malformed value %q", availableStr))
	}
	pending, ok := money.Parse(pendingStr)
	if !ok {
		return Balance{}, apperr.Wrap(apperr.Database, "parse pending balance", fmt.Errorf("malformed value %q", pendingStr))
	}
	bal.Available = available
	bal.Pending = pending
	return bal, nil
}

// ListEvents returns the most recent events, optionally filtered to a
// single account on either side of the transfer.
func (s *PostgresStore) ListEvents(ctx context.Context, accountID *uuid.UUID, limit int) ([]LedgerEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if accountID != nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, transaction_id, event_timestamp, source_account_id, destination_account_id,
			       amount, currency, event_type, status, metadata, created_at
			FROM ledger_events
			WHERE source_account_id = $1 OR destination_account_id = $1
			ORDER BY event_timestamp DESC
			LIMIT $2
		`, *accountID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, transaction_id, event_timestamp, source_account_id, destination_account_id,
			       amount, currency, event_type, status, metadata, created_at
			FROM ledger_events
			ORDER BY event_timestamp DESC
			LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "list events", err)
	}
	defer rows.Close()

	var events []LedgerEvent
	for rows.Next() {
		var ev LedgerEvent
		var amountStr string
		var metaJSON []byte
		var sourceID, destID uuid.NullUUID
		if err := rows.Scan(&ev.ID, &ev.TransactionID, &ev.Timestamp, &sourceID, &destID,
			&amountStr, &ev.Currency, &ev.EventType, &ev.Status, &metaJSON, &ev.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Database, "scan event", err)
		}
		amount, ok := money.Parse(amountStr)
		if !ok {
			return nil, apperr.Wrap(apperr.Database, "parse event amount", fmt.Errorf("malformed value %q", amountStr))
		}
		ev.Amount = amount
		if sourceID.Valid {
			id := sourceID.UUID
			ev.SourceAccountID = &id
		}
		if destID.Valid {
			id := destID.UUID
			ev.DestinationAccountID = &id
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
				return nil, apperr.Wrap(apperr.Database, "unmarshal event metadata", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
