package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

func newMockRepo(t *testing.T) (*AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAccountRepository(db), mock
}

func TestGetBalance(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT balance, version FROM accounts WHERE id = \$1`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance", "version"}).AddRow("100.50", int64(7)))

	b, err := repo.GetBalance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(decimal.RequireFromString("100.50")))
	assert.Equal(t, int64(7), b.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalanceNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT balance, version FROM accounts`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestGetCredentialHash(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT credential_hash FROM accounts WHERE id = \$1`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"credential_hash"}).AddRow("$2a$04$hash"))

	hash, err := repo.GetCredentialHash(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$hash", hash)

	mock.ExpectQuery(`SELECT credential_hash FROM accounts`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetCredentialHash(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestSetBalanceIsVersionChecked(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE accounts SET balance = \$1, version = version \+ 1, updated_at = \$2 WHERE id = \$3 AND version = \$4`).
		WithArgs("40", sqlmock.AnyArg(), "acc-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows, err := repo.SetBalance(context.Background(), "acc-1", 3, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	mock.ExpectExec(`UPDATE accounts SET balance`).
		WithArgs("40", sqlmock.AnyArg(), "acc-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows, err = repo.SetBalance(context.Background(), "acc-1", 3, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetBalanceRejectsNegative(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.SetBalance(context.Background(), "acc-1", 1, decimal.NewFromInt(-1))
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetBalanceDriverError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE accounts SET balance`).WillReturnError(context.DeadlineExceeded)
	_, err := repo.SetBalance(context.Background(), "acc-1", 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSetCredentialHashComparesPreviousHash(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE accounts SET credential_hash = \$1, updated_at = \$2 WHERE id = \$3 AND credential_hash = \$4`).
		WithArgs("new", sqlmock.AnyArg(), "acc-1", "old").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := repo.SetCredentialHash(context.Background(), "acc-1", "old", "new")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM accounts WHERE id = \$1\)`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := repo.Exists(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("acc-2").
		WillReturnError(errors.New("connection refused"))
	ok, err = repo.Exists(context.Background(), "acc-2")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestCreateAccountDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	acc := &domain.Account{ID: "acc-1", Balance: decimal.Zero, CredentialHash: "h", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(&pq.Error{Code: uniqueViolation})
	assert.ErrorIs(t, repo.CreateAccount(context.Background(), acc), domain.ErrAccountAlreadyExists)

	mock.ExpectExec(`INSERT INTO accounts`).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.CreateAccount(context.Background(), acc))
}

func TestWithTransactionLocksAndCommits(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT balance, version FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"balance", "version"}).AddRow("10", int64(1)))
	mock.ExpectExec(`UPDATE accounts SET balance`).
		WithArgs("5", sqlmock.AnyArg(), "a", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithTransaction(context.Background(), func(ctx context.Context, store accounts_repo.AccountStore) error {
		b, err := store.GetBalance(ctx, "a")
		if err != nil {
			return err
		}
		_, err = store.SetBalance(ctx, "a", b.Version, b.Amount.Sub(decimal.NewFromInt(5)))
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.WithTransaction(context.Background(), func(ctx context.Context, store accounts_repo.AccountStore) error {
		return domain.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTransactionKeepsCauseWhenRollbackFails(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("conn closed"))

	err := repo.WithTransaction(context.Background(), func(ctx context.Context, store accounts_repo.AccountStore) error {
		return domain.ErrConcurrentModification
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Contains(t, err.Error(), "rollback failed")
}
