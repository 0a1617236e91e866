package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

// Store is a thread-safe in-memory AccountStore. Transactions hold the
// store lock for their whole duration and stage writes until commit.
type Store struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
}

func NewStore() *Store {
	return &Store{accounts: make(map[string]domain.Account)}
}

func (s *Store) GetBalance(ctx context.Context, id string) (domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBalance(ctx, id)
}

func (s *Store) GetCredentialHash(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCredentialHash(ctx, id)
}

func (s *Store) SetBalance(ctx context.Context, id string, expectedVersion int64, amount decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setBalance(ctx, s.accounts, id, expectedVersion, amount)
}

func (s *Store) SetCredentialHash(ctx context.Context, id, expectedHash, newHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCredentialHash(ctx, s.accounts, id, expectedHash, newHash)
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[id]
	return ok, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; ok {
		return domain.ErrAccountAlreadyExists
	}
	s.accounts[account.ID] = *account
	return nil
}

// Snapshot returns a copy of every account, for tests and diagnostics.
func (s *Store) Snapshot() map[string]domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Account, len(s.accounts))
	for id, a := range s.accounts {
		out[id] = a
	}
	return out
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, store accounts_repo.AccountStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{parent: s, staged: make(map[string]domain.Account)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, a := range tx.staged {
		s.accounts[id] = a
	}
	return nil
}

func (s *Store) getBalance(ctx context.Context, id string) (domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return domain.Balance{}, err
	}
	a, ok := s.accounts[id]
	if !ok {
		return domain.Balance{}, domain.ErrAccountNotFound
	}
	return domain.Balance{Amount: a.Balance, Version: a.Version}, nil
}

func (s *Store) getCredentialHash(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a, ok := s.accounts[id]
	if !ok {
		return "", domain.ErrAccountNotFound
	}
	return a.CredentialHash, nil
}

// setBalance reads from the committed map and writes into dst, which is
// either the committed map or a transaction's staging map.
func (s *Store) setBalance(ctx context.Context, dst map[string]domain.Account, id string, expectedVersion int64, amount decimal.Decimal) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("refusing to store negative balance %s for account %s", amount, id)
	}
	a, ok := dst[id]
	if !ok {
		if a, ok = s.accounts[id]; !ok {
			return 0, nil
		}
	}
	if a.Version != expectedVersion {
		return 0, nil
	}
	a.Balance = amount
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	dst[id] = a
	return 1, nil
}

func (s *Store) setCredentialHash(ctx context.Context, dst map[string]domain.Account, id, expectedHash, newHash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a, ok := dst[id]
	if !ok {
		if a, ok = s.accounts[id]; !ok {
			return 0, nil
		}
	}
	if a.CredentialHash != expectedHash {
		return 0, nil
	}
	a.CredentialHash = newHash
	a.UpdatedAt = time.Now().UTC()
	dst[id] = a
	return 1, nil
}

// txStore reads through its staging map so a transaction sees its own writes.
type txStore struct {
	parent *Store
	staged map[string]domain.Account
}

func (t *txStore) GetBalance(ctx context.Context, id string) (domain.Balance, error) {
	if a, ok := t.staged[id]; ok {
		return domain.Balance{Amount: a.Balance, Version: a.Version}, nil
	}
	return t.parent.getBalance(ctx, id)
}

func (t *txStore) GetCredentialHash(ctx context.Context, id string) (string, error) {
	if a, ok := t.staged[id]; ok {
		return a.CredentialHash, nil
	}
	return t.parent.getCredentialHash(ctx, id)
}

func (t *txStore) SetBalance(ctx context.Context, id string, expectedVersion int64, amount decimal.Decimal) (int64, error) {
	return t.parent.setBalance(ctx, t.staged, id, expectedVersion, amount)
}

func (t *txStore) SetCredentialHash(ctx context.Context, id, expectedHash, newHash string) (int64, error) {
	return t.parent.setCredentialHash(ctx, t.staged, id, expectedHash, newHash)
}

func (t *txStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := t.parent.accounts[id]
	return ok, nil
}

var (
	_ accounts_repo.AccountStore = (*Store)(nil)
	_ accounts_repo.Transactor   = (*Store)(nil)
	_ accounts_repo.Provisioner  = (*Store)(nil)
)
