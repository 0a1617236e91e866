package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

const uniqueViolation = "23505"

// accountStore runs the account queries against a *sql.DB or a *sql.Tx.
// Inside a transaction balance reads take a row lock.
type accountStore struct {
	querier   domain.Querier
	forUpdate bool
}

type AccountRepository struct {
	*accountStore
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{
		accountStore: &accountStore{querier: db},
		db:           db,
	}
}

func (s *accountStore) GetBalance(ctx context.Context, id string) (domain.Balance, error) {
	query := `
		SELECT balance, version
		FROM accounts
		WHERE id = $1
	`
	if s.forUpdate {
		query += " FOR UPDATE"
	}
	var b domain.Balance
	err := s.querier.QueryRowContext(ctx, query, id).Scan(&b.Amount, &b.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Balance{}, domain.ErrAccountNotFound
		}
		return domain.Balance{}, fmt.Errorf("failed to get balance for account %s: %w", id, err)
	}
	return b, nil
}

func (s *accountStore) GetCredentialHash(ctx context.Context, id string) (string, error) {
	query := `
		SELECT credential_hash
		FROM accounts
		WHERE id = $1
	`
	var hash string
	err := s.querier.QueryRowContext(ctx, query, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrAccountNotFound
		}
		return "", fmt.Errorf("failed to get credential hash for account %s: %w", id, err)
	}
	return hash, nil
}

func (s *accountStore) SetBalance(ctx context.Context, id string, expectedVersion int64, amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("refusing to store negative balance %s for account %s", amount, id)
	}
	query := `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
	`
	res, err := s.querier.ExecContext(ctx, query, amount, time.Now().UTC(), id, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to update balance for account %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (s *accountStore) SetCredentialHash(ctx context.Context, id, expectedHash, newHash string) (int64, error) {
	query := `
		UPDATE accounts
		SET credential_hash = $1, updated_at = $2
		WHERE id = $3 AND credential_hash = $4
	`
	res, err := s.querier.ExecContext(ctx, query, newHash, time.Now().UTC(), id, expectedHash)
	if err != nil {
		return 0, fmt.Errorf("failed to update credential for account %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (s *accountStore) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`
	var exists bool
	if err := s.querier.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account %s: %w", id, err)
	}
	return exists, nil
}

func (s *accountStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, balance, version, credential_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.querier.ExecContext(ctx, query,
		account.ID, account.Balance, account.Version, account.CredentialHash, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account %s: %w", account.ID, err)
	}
	return nil
}

// WithTransaction runs fn in one transaction. Row locks taken by GetBalance
// inside fn are held until commit or rollback.
func (r *AccountRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, store accounts_repo.AccountStore) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &accountStore{querier: tx, forUpdate: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	_ accounts_repo.AccountStore = (*AccountRepository)(nil)
	_ accounts_repo.Transactor   = (*AccountRepository)(nil)
	_ accounts_repo.Provisioner  = (*AccountRepository)(nil)
)
