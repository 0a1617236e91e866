package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/accounts_repo/memory"
	journalmem "ledger/internal/repository/transfers_repo/memory"
)

func journalStatuses(t *testing.T, f *fixture) []domain.TransferStatus {
	t.Helper()
	stale, err := f.journal.ListStale(context.Background(), farFuture, 100)
	require.NoError(t, err)
	require.Empty(t, stale, "no transfer left in a non-terminal state")

	var out []domain.TransferStatus
	for _, ev := range f.publisher.events {
		if ev.TransferID == "" {
			continue
		}
		rec, err := f.journal.Get(context.Background(), ev.TransferID)
		require.NoError(t, err)
		out = append(out, rec.Status)
	}
	return out
}

func TestTransferMovesFunds(t *testing.T) {
	for name, wrap := range map[string]func(accounts_repo.AccountStore) accounts_repo.AccountStore{
		"atomic":       nil,
		"compensating": hideTransactions,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, wrap)
			f.seed(t, "1", "123456", "500")
			f.seed(t, "2", "123456", "100")
			e := f.open(t, "1")

			bal, err := e.Transfer(context.Background(), dec("200"), "2")
			require.NoError(t, err)
			assert.True(t, bal.Equal(dec("300")))
			assert.True(t, f.stored("1").Equal(dec("300")))
			assert.True(t, f.stored("2").Equal(dec("300")))

			assert.Equal(t, []domain.LedgerEventType{domain.EventTransferCompleted}, f.publisher.types())
			assert.Equal(t, []domain.TransferStatus{domain.TransferStatusCompleted}, journalStatuses(t, f))

			// The cached version followed the write, so the session continues.
			_, err = e.Withdraw(context.Background(), dec("300"))
			require.NoError(t, err)
		})
	}
}

func TestTransferToMissingRecipient(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", "123456", "500")
	e := f.open(t, "1")

	_, err := e.Transfer(context.Background(), dec("200"), "999")
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)
	assert.True(t, e.Balance().Equal(dec("500")))
	assert.True(t, f.stored("1").Equal(dec("500")))
	assert.Empty(t, f.publisher.events)
}

func TestTransferToSelfIsRejectedFirst(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", "123456", "500")
	e := f.open(t, "1")

	for _, amount := range []string{"10", "-5", "0", "100000"} {
		_, err := e.Transfer(context.Background(), dec(amount), "1")
		assert.ErrorIs(t, err, domain.ErrInvalidOperation, amount)
	}
	assert.True(t, f.stored("1").Equal(dec("500")))
}

func TestTransferGateOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", "123456", "50")
	e := f.open(t, "1")
	ctx := context.Background()

	_, err := e.Transfer(ctx, dec("-1"), "999")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount, "amount is checked before the recipient")

	_, err = e.Transfer(ctx, dec("60"), "999")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds, "funds are checked before the recipient")
}

func TestAtomicTransferWithStaleSession(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "1", "123456", "100")
	f.seed(t, "2", "123456", "0")
	stale := f.open(t, "1")
	fresh := f.open(t, "1")

	_, err := fresh.Deposit(context.Background(), dec("1"))
	require.NoError(t, err)

	_, err = stale.Transfer(context.Background(), dec("50"), "2")
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.True(t, f.stored("1").Equal(dec("101")))
	assert.True(t, f.stored("2").IsZero())
	assert.True(t, stale.Balance().Equal(dec("100")))
}

func TestCrossingTransfersConserveTotal(t *testing.T) {
	f := newFixture(t, nil, nopLogger())
	f.seed(t, "a", "123456", "1000")
	f.seed(t, "b", "123456", "1000")

	var wg sync.WaitGroup
	run := func(from, to string) {
		defer wg.Done()
		ctx := context.Background()
		e, err := f.svc.Open(ctx, from)
		if !assert.NoError(t, err) {
			return
		}
		for i := 0; i < 50; i++ {
			_, err := e.Transfer(ctx, dec("3.33"), to)
			if errors.Is(err, domain.ErrConcurrentModification) {
				if !assert.NoError(t, e.Refresh(ctx)) {
					return
				}
				continue
			}
			assert.NoError(t, err)
		}
	}
	wg.Add(2)
	go run("a", "b")
	go run("b", "a")
	wg.Wait()

	total := f.stored("a").Add(f.stored("b"))
	assert.True(t, total.Equal(dec("2000")), total.String())
	assert.False(t, f.stored("a").IsNegative())
	assert.False(t, f.stored("b").IsNegative())
}

func TestCompensatedTransferReturnsFunds(t *testing.T) {
	var flaky *flakyStore
	f := newFixture(t, func(s accounts_repo.AccountStore) accounts_repo.AccountStore {
		flaky = newFlakyStore(s)
		return flaky
	})
	f.seed(t, "1", "123456", "500")
	f.seed(t, "2", "123456", "100")
	e := f.open(t, "1")

	flaky.failNext("2", fault{err: errors.New("write timeout")})
	_, err := e.Transfer(context.Background(), dec("200"), "2")

	var tfe *domain.TransferFailedError
	require.ErrorAs(t, err, &tfe)
	assert.True(t, tfe.Reconciled)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.NotErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.Equal(t, domain.KindTransferFailed, domain.KindOf(err))

	assert.True(t, f.stored("1").Equal(dec("500")))
	assert.True(t, f.stored("2").Equal(dec("100")))
	assert.True(t, e.Balance().Equal(dec("500")))
	assert.Equal(t, []domain.LedgerEventType{domain.EventTransferCompensated}, f.publisher.types())
	assert.Equal(t, []domain.TransferStatus{domain.TransferStatusCompensated}, journalStatuses(t, f))

	// Cached version tracks both writes.
	_, err = e.Withdraw(context.Background(), dec("500"))
	require.NoError(t, err)
}

func TestFailedCompensationRequiresReconciliation(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	var flaky *flakyStore
	f := newFixture(t, func(s accounts_repo.AccountStore) accounts_repo.AccountStore {
		flaky = newFlakyStore(s)
		return flaky
	}, WithLogger(zap.New(core)))
	f.seed(t, "1", "123456", "500")
	f.seed(t, "2", "123456", "100")
	e := f.open(t, "1")

	flaky.failNext("1", fault{}, fault{err: errors.New("connection reset")})
	flaky.failNext("2", fault{err: errors.New("write timeout")})
	_, err := e.Transfer(context.Background(), dec("200"), "2")

	var tfe *domain.TransferFailedError
	require.ErrorAs(t, err, &tfe)
	assert.False(t, tfe.Reconciled)
	assert.ErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, domain.KindReconciliationRequired, domain.KindOf(err))

	entries := logs.FilterMessage("Transfer requires manual reconciliation").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, tfe.TransferID, fields["transfer_id"])
	assert.Equal(t, "1", fields["from_account"])
	assert.Equal(t, "2", fields["to_account"])
	assert.Equal(t, "200", fields["amount"])

	assert.Equal(t, []domain.LedgerEventType{domain.EventReconciliationRequired}, f.publisher.types())
	rec, err := f.journal.Get(context.Background(), tfe.TransferID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusIndeterminate, rec.Status)

	// The engine mirrors what the store holds: the debit landed.
	assert.True(t, f.stored("1").Equal(dec("300")))
	assert.True(t, e.Balance().Equal(dec("300")))
}

func TestAmbiguousCreditIsNotCompensated(t *testing.T) {
	var flaky *flakyStore
	f := newFixture(t, func(s accounts_repo.AccountStore) accounts_repo.AccountStore {
		flaky = newFlakyStore(s)
		return flaky
	}, nopLogger())
	f.seed(t, "1", "123456", "500")
	f.seed(t, "2", "123456", "100")
	e := f.open(t, "1")

	// The credit lands but the store reports a failure.
	flaky.failNext("2", fault{err: errors.New("commit ack lost"), apply: true})
	_, err := e.Transfer(context.Background(), dec("200"), "2")

	assert.ErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.True(t, f.stored("1").Equal(dec("300")))
	assert.True(t, f.stored("2").Equal(dec("300")), "no double credit to the sender")
}

func TestDebitFailureMovesNothing(t *testing.T) {
	var flaky *flakyStore
	f := newFixture(t, func(s accounts_repo.AccountStore) accounts_repo.AccountStore {
		flaky = newFlakyStore(s)
		return flaky
	})
	f.seed(t, "1", "123456", "500")
	f.seed(t, "2", "123456", "100")
	e := f.open(t, "1")

	flaky.failNext("1", fault{err: errors.New("disk full")})
	_, err := e.Transfer(context.Background(), dec("200"), "2")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrTransferFailed)
	assert.True(t, f.stored("1").Equal(dec("500")))
	assert.True(t, f.stored("2").Equal(dec("100")))
	assert.True(t, e.Balance().Equal(dec("500")))
}

// commitFailingStore runs the transaction body against a transaction that is
// then rolled back, and reports commitErr as if COMMIT had failed.
type commitFailingStore struct {
	*memory.Store
	commitErr error
}

func (s commitFailingStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, store accounts_repo.AccountStore) error) error {
	errRollback := errors.New("rollback")
	err := s.Store.WithTransaction(ctx, func(ctx context.Context, store accounts_repo.AccountStore) error {
		if err := fn(ctx, store); err != nil {
			return err
		}
		return errRollback
	})
	if errors.Is(err, errRollback) {
		return s.commitErr
	}
	return err
}

type beganJournal struct {
	*journalmem.Journal
	ids []string
}

func (j *beganJournal) Begin(ctx context.Context, transfer *domain.PendingTransfer) error {
	j.ids = append(j.ids, transfer.ID)
	return j.Journal.Begin(ctx, transfer)
}

func TestAtomicCommitFailureMarksTransferFailed(t *testing.T) {
	ctx := context.Background()
	journal := &beganJournal{Journal: journalmem.NewJournal()}
	f := newFixture(t, func(s accounts_repo.AccountStore) accounts_repo.AccountStore {
		return commitFailingStore{Store: s.(*memory.Store), commitErr: errors.New("commit: connection lost")}
	}, WithJournal(journal))
	f.seed(t, "a", "123456", "100")
	f.seed(t, "b", "654321", "5")
	e := f.open(t, "a")

	bal, err := e.Transfer(ctx, dec("40"), "b")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrTransferFailed)
	assert.True(t, bal.IsZero())

	assert.True(t, e.Balance().Equal(dec("100")))
	assert.True(t, f.stored("a").Equal(dec("100")))
	assert.True(t, f.stored("b").Equal(dec("5")))
	assert.Empty(t, f.publisher.types())

	require.Len(t, journal.ids, 1)
	rec, err := journal.Get(ctx, journal.ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusFailed, rec.Status)

	// The session is still usable and its version still current.
	bal, err = e.Transfer(ctx, dec("40"), "b")
	require.Error(t, err, "every commit fails on this store")
	assert.True(t, bal.IsZero())
	assert.True(t, e.Balance().Equal(dec("100")))
}
