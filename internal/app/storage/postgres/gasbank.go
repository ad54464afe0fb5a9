package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/cause_registry/internal/gasbank"
)

// GasBankStore implements gasbank.Store backed by PostgreSQL.
type GasBankStore struct {
	db *sqlx.DB
}

var _ gasbank.Store = (*GasBankStore)(nil)

func NewGasBankStore(db *sqlx.DB) *GasBankStore {
	return &GasBankStore{db: db}
}

func (s *GasBankStore) GetAccount(ctx context.Context, address string) (gasbank.Account, error) {
	var acct gasbank.Account
	err := s.db.GetContext(ctx, &acct, `
		SELECT id, address, balance, reserved, suspended, created_at, updated_at
		FROM gasbank_accounts
		WHERE address = $1
	`, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return gasbank.Account{}, fmt.Errorf("%w: %s", gasbank.ErrAccountNotFound, address)
		}
		return gasbank.Account{}, err
	}
	return acct, nil
}

func (s *GasBankStore) CreateAccount(ctx context.Context, acct gasbank.Account) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO gasbank_accounts (id, address, balance, reserved, suspended, created_at, updated_at)
		VALUES (:id, :address, :balance, :reserved, :suspended, :created_at, :updated_at)
		ON CONFLICT (address) DO NOTHING
	`, acct)
	return err
}

// Update locks the rows of addresses with SELECT ... FOR UPDATE so that
// concurrent writers serialise on the accounts they touch. Rows are locked in
// address order.
func (s *GasBankStore) Update(ctx context.Context, addresses []string, fn func(accounts []*gasbank.Account) ([]gasbank.Transaction, error)) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked []gasbank.Account
	if err := tx.SelectContext(ctx, &locked, `
		SELECT id, address, balance, reserved, suspended, created_at, updated_at
		FROM gasbank_accounts
		WHERE address = ANY($1)
		ORDER BY address
		FOR UPDATE
	`, pq.Array(addresses)); err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}

	byAddress := make(map[string]*gasbank.Account, len(locked))
	for i := range locked {
		byAddress[locked[i].Address] = &locked[i]
	}
	accounts := make([]*gasbank.Account, len(addresses))
	for i, addr := range addresses {
		acct, ok := byAddress[addr]
		if !ok {
			return fmt.Errorf("%w: %s", gasbank.ErrAccountNotFound, addr)
		}
		accounts[i] = acct
	}

	entries, err := fn(accounts)
	if err != nil {
		return err
	}

	for _, acct := range locked {
		if _, err := tx.NamedExecContext(ctx, `
			UPDATE gasbank_accounts
			SET balance = :balance, reserved = :reserved, suspended = :suspended, updated_at = :updated_at
			WHERE id = :id
		`, acct); err != nil {
			return fmt.Errorf("update account %s: %w", acct.Address, err)
		}
	}
	for _, entry := range entries {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO gasbank_transactions (id, account_id, tx_type, amount, balance_after, reference_id, status, created_at)
			VALUES (:id, :account_id, :tx_type, :amount, :balance_after, :reference_id, :status, :created_at)
		`, entry); err != nil {
			return fmt.Errorf("insert transaction %s: %w", entry.ID, err)
		}
	}
	return tx.Commit()
}

func (s *GasBankStore) ListTransactions(ctx context.Context, accountID string, limit int) ([]gasbank.Transaction, error) {
	lim := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
	txs := make([]gasbank.Transaction, 0)
	err := s.db.SelectContext(ctx, &txs, `
		SELECT id, account_id, tx_type, amount, balance_after, reference_id, status, created_at
		FROM gasbank_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, accountID, lim)
	if err != nil {
		return nil, err
	}
	return txs, nil
}
