// Package gasbank is the registry's internal GAS ledger. Donors hold
// balances credited from verified deposits, and donations move funds from a
// donor account to the cause's payout account.
//
// Fund flow:
// 1. A donor sends GAS to the registry deposit address
// 2. The operator verifies the deposit and credits the donor's balance
// 3. A donation debits the donor and credits the cause payout account, or in
//    custody mode debits the donor while custody pays the cause on chain
// 4. If the donation cannot be recorded, the transfer is refunded
package gasbank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/cause_registry/internal/logging"
)

// Manager handles all balance operations of the ledger. Balance changes are
// read and written under the store's account locks, so several managers may
// share one database.
type Manager struct {
	store Store
	log   *logging.Logger
	now   func() time.Time
}

// NewManager creates a new balance manager.
func NewManager(store Store, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.New("gasbank", "info", "json")
	}
	return &Manager{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// Accounts
// =============================================================================

// OpenAccount creates an empty account for address, or returns the existing
// one.
func (m *Manager) OpenAccount(ctx context.Context, address string) (Account, error) {
	acct, err := m.store.GetAccount(ctx, address)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}

	now := m.now()
	acct = Account{
		ID:        uuid.New().String(),
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateAccount(ctx, acct); err != nil {
		return Account{}, fmt.Errorf("create account %s: %w", address, err)
	}
	// another writer may have opened it first
	acct, err = m.store.GetAccount(ctx, address)
	if err != nil {
		return Account{}, err
	}
	m.log.WithContext(ctx).WithField("address", address).Info("gas bank account opened")
	return acct, nil
}

// Suspend stops or resumes an account from receiving funds.
func (m *Manager) Suspend(ctx context.Context, address string, suspended bool) error {
	return m.store.Update(ctx, []string{address}, func(accts []*Account) ([]Transaction, error) {
		accts[0].Suspended = suspended
		accts[0].UpdatedAt = m.now()
		return nil, nil
	})
}

// =============================================================================
// Core Balance Operations
// =============================================================================

// GetBalance returns the balance information of address.
func (m *Manager) GetBalance(ctx context.Context, address string) (balance, reserved, available int64, err error) {
	account, err := m.store.GetAccount(ctx, address)
	if err != nil {
		return 0, 0, 0, err
	}
	return account.Balance, account.Reserved, account.Available(), nil
}

// Deposit credits a verified on-chain deposit to address, opening the
// account if needed.
func (m *Manager) Deposit(ctx context.Context, address string, amount int64, txHash string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if _, err := m.OpenAccount(ctx, address); err != nil {
		return Transaction{}, err
	}

	entry, err := m.adjust(ctx, address, amount, TxTypeDeposit, txHash)
	if err != nil {
		return Transaction{}, err
	}

	m.log.WithContext(ctx).
		WithField("address", address).
		WithField("amount", amount).
		WithField("tx_hash", txHash).
		Info("gas bank deposit credited")
	return entry, nil
}

// GetTransactions returns the most recent transactions of address, newest
// first.
func (m *Manager) GetTransactions(ctx context.Context, address string, limit int) ([]Transaction, error) {
	account, err := m.store.GetAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	return m.store.ListTransactions(ctx, account.ID, limit)
}

// adjust adds delta to the balance of address and records one entry. A
// negative delta may not exceed the available balance.
func (m *Manager) adjust(ctx context.Context, address string, delta int64, txType, reference string) (Transaction, error) {
	if reference == "" {
		reference = uuid.New().String()
	}
	var entry Transaction
	err := m.store.Update(ctx, []string{address}, func(accts []*Account) ([]Transaction, error) {
		acct := accts[0]
		switch {
		case delta < 0 && -delta > acct.Available():
			return nil, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientBalance, acct.Available(), -delta)
		case delta > 0 && acct.Balance > math.MaxInt64-delta:
			return nil, ErrBalanceOverflow
		}

		now := m.now()
		acct.Balance += delta
		acct.UpdatedAt = now
		entry = m.entry(acct, txType, delta, reference, now)
		return []Transaction{entry}, nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return entry, nil
}

// transfer moves amount from one account to another and records a debit
// and a credit entry sharing reference. It returns the debit entry. Refunds
// skip the suspension check on the receiving side.
func (m *Manager) transfer(ctx context.Context, from, to string, amount int64, debitType, creditType, reference string) (Transaction, error) {
	if _, err := m.store.GetAccount(ctx, to); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Transaction{}, fmt.Errorf("%w: %s has no account", ErrRecipientRejected, to)
		}
		return Transaction{}, err
	}
	if reference == "" {
		reference = uuid.New().String()
	}

	addresses := []string{from, to}
	if from == to {
		addresses = addresses[:1]
	}

	var debitEntry Transaction
	err := m.store.Update(ctx, addresses, func(accts []*Account) ([]Transaction, error) {
		debit, credit := accts[0], accts[len(accts)-1]
		if credit.Suspended && creditType != TxTypeRefund {
			return nil, fmt.Errorf("%w: %s is suspended", ErrRecipientRejected, to)
		}
		if amount > debit.Available() {
			return nil, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientBalance, debit.Available(), amount)
		}
		if debit != credit && credit.Balance > math.MaxInt64-amount {
			return nil, ErrBalanceOverflow
		}

		// a self-transfer leaves the balance as it is
		now := m.now()
		debit.Balance -= amount
		credit.Balance += amount
		debit.UpdatedAt = now
		credit.UpdatedAt = now

		debitEntry = m.entry(debit, debitType, -amount, reference, now)
		return []Transaction{
			debitEntry,
			m.entry(credit, creditType, amount, reference, now),
		}, nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return debitEntry, nil
}

func (m *Manager) entry(acct *Account, txType string, amount int64, reference string, at time.Time) Transaction {
	return Transaction{
		ID:           uuid.New().String(),
		AccountID:    acct.ID,
		TxType:       txType,
		Amount:       amount,
		BalanceAfter: acct.Balance,
		ReferenceID:  reference,
		Status:       StatusCompleted,
		CreatedAt:    at,
	}
}
