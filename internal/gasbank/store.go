package gasbank

import (
	"context"
	"fmt"
	"sync"
)

// Store persists ledger accounts and their transactions.
type Store interface {
	GetAccount(ctx context.Context, address string) (Account, error)
	// CreateAccount inserts acct unless an account for its address exists.
	CreateAccount(ctx context.Context, acct Account) error
	// Update locks the accounts at addresses and hands them to fn in the same
	// order. The accounts as fn leaves them are saved together with the
	// entries it returns, all or nothing. A missing address fails with
	// ErrAccountNotFound before fn runs.
	Update(ctx context.Context, addresses []string, fn func(accounts []*Account) ([]Transaction, error)) error
	ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error)
}

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	txs      []Transaction
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]Account)}
}

func (s *MemoryStore) GetAccount(_ context.Context, address string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[address]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	return acct, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.Address]; !ok {
		s.accounts[acct.Address] = acct
	}
	return nil
}

func (s *MemoryStore) Update(_ context.Context, addresses []string, fn func(accounts []*Account) ([]Transaction, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]*Account, len(addresses))
	for i, addr := range addresses {
		acct, ok := s.accounts[addr]
		if !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
		}
		accounts[i] = &acct
	}
	entries, err := fn(accounts)
	if err != nil {
		return err
	}
	for _, acct := range accounts {
		s.accounts[acct.Address] = *acct
	}
	s.txs = append(s.txs, entries...)
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, accountID string, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0)
	for i := len(s.txs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if s.txs[i].AccountID == accountID {
			out = append(out, s.txs[i])
		}
	}
	return out, nil
}
