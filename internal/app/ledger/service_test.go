package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

// brokenStore fails every call, as an unreachable database would.
type brokenStore struct {
	accounts_repo.AccountStore
	err error
}

func (b brokenStore) Exists(context.Context, string) (bool, error) {
	return false, b.err
}

func (b brokenStore) GetCredentialHash(context.Context, string) (string, error) {
	return "", b.err
}

func (b brokenStore) GetBalance(context.Context, string) (domain.Balance, error) {
	return domain.Balance{}, b.err
}

func TestExists(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "acc", "123456", "0")

	ok, err := f.svc.Exists(context.Background(), "acc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.Exists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreFailureIsNotAbsence(t *testing.T) {
	cause := errors.New("connection refused")
	svc := NewService(brokenStore{err: cause}, WithHasher(testHasher))

	ok, err := svc.Exists(context.Background(), "acc")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, cause)

	ok, err = svc.Authenticate(context.Background(), "acc", "123456")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	_, err = svc.Open(context.Background(), "acc")
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "acc", "123456", "0")
	ctx := context.Background()

	ok, err := f.svc.Authenticate(ctx, "acc", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.Authenticate(ctx, "acc", "654321")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.Authenticate(ctx, "ghost", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "acc", "123456", "12.34")
	ctx := context.Background()

	e, err := f.svc.Login(ctx, "acc", "123456")
	require.NoError(t, err)
	assert.Equal(t, "acc", e.AccountID())
	assert.True(t, e.Balance().Equal(dec("12.34")))

	_, err = f.svc.Login(ctx, "acc", "000000")
	assert.ErrorIs(t, err, domain.ErrCredentialMismatch)
	_, err = f.svc.Login(ctx, "ghost", "123456")
	assert.ErrorIs(t, err, domain.ErrCredentialMismatch)
}

func TestOpenMissingAccount(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Open(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestProvision(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	acc, err := f.svc.Provision(ctx, "acc", "123456", dec("10.50"))
	require.NoError(t, err)
	assert.Equal(t, "acc", acc.ID)
	assert.NotEqual(t, "123456", acc.CredentialHash)

	ok, err := f.svc.Authenticate(ctx, "acc", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.stored("acc").Equal(dec("10.5")))

	_, err = f.svc.Provision(ctx, "acc", "123456", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	_, err = f.svc.Provision(ctx, "zero", "123456", decimal.Zero)
	assert.NoError(t, err)
}

func TestProvisionValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Provision(ctx, " ", "123456", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	_, err = f.svc.Provision(ctx, "acc", "12", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
	_, err = f.svc.Provision(ctx, "acc", "123456", dec("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.svc.Provision(ctx, "acc", "123456", dec("0.001"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	ok, err := f.svc.Exists(ctx, "acc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProvisionRequiresProvisioner(t *testing.T) {
	f := newFixture(t, hideTransactions)
	_, err := f.svc.Provision(context.Background(), "acc", "123456", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}
