package accounts_repo

import (
	"context"

	"github.com/shopspring/decimal"

	"ledger/internal/domain"
)

// AccountStore is everything the ledger engine needs from persistence.
// Lookups of a missing account return domain.ErrAccountNotFound.
// Writes are conditional and report rows affected; zero means the
// precondition (version or previous hash) no longer holds.
type AccountStore interface {
	GetBalance(ctx context.Context, id string) (domain.Balance, error)
	GetCredentialHash(ctx context.Context, id string) (string, error)
	SetBalance(ctx context.Context, id string, expectedVersion int64, amount decimal.Decimal) (int64, error)
	SetCredentialHash(ctx context.Context, id, expectedHash, newHash string) (int64, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Transactor is implemented by stores that can apply several writes
// atomically. Inside fn, GetBalance locks the row until the transaction ends.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error
}

type Provisioner interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
}
