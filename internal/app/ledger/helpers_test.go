package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"ledger/internal/credential"
	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/accounts_repo/memory"
	journalmem "ledger/internal/repository/transfers_repo/memory"
)

var testHasher = credential.NewBcryptHasher(bcrypt.MinCost)

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	mem       *memory.Store
	journal   *journalmem.Journal
	publisher *recordingPublisher
	svc       *Service
}

// newFixture builds a service over an in-memory store. wrap lets a test
// replace the store the service sees, e.g. to hide WithTransaction or to
// inject faults.
func newFixture(t *testing.T, wrap func(accounts_repo.AccountStore) accounts_repo.AccountStore, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		mem:       memory.NewStore(),
		journal:   journalmem.NewJournal(),
		publisher: &recordingPublisher{},
	}
	var store accounts_repo.AccountStore = f.mem
	if wrap != nil {
		store = wrap(f.mem)
	}
	base := []Option{
		WithHasher(testHasher),
		WithJournal(f.journal),
		WithEventPublisher(f.publisher),
		WithLogger(zaptest.NewLogger(t)),
	}
	f.svc = NewService(store, append(base, opts...)...)
	return f
}

func (f *fixture) seed(t *testing.T, id, cred, balance string) {
	t.Helper()
	hash, err := testHasher.Hash(cred)
	require.NoError(t, err)
	require.NoError(t, f.mem.CreateAccount(context.Background(), &domain.Account{
		ID:             id,
		Balance:        decimal.RequireFromString(balance),
		CredentialHash: hash,
	}))
}

func (f *fixture) stored(id string) decimal.Decimal {
	return f.mem.Snapshot()[id].Balance
}

func (f *fixture) open(t *testing.T, id string) *Engine {
	t.Helper()
	e, err := f.svc.Open(context.Background(), id)
	require.NoError(t, err)
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// plainStore hides the memory store's WithTransaction so transfers take the
// compensating path.
type plainStore struct {
	accounts_repo.AccountStore
}

func hideTransactions(s accounts_repo.AccountStore) accounts_repo.AccountStore {
	return plainStore{s}
}

type fault struct {
	err   error
	apply bool // perform the write before returning err
}

// flakyStore fails SetBalance calls according to a per-account queue.
// An empty fault lets the call through.
type flakyStore struct {
	accounts_repo.AccountStore
	mu     sync.Mutex
	faults map[string][]fault
}

func newFlakyStore(s accounts_repo.AccountStore) *flakyStore {
	return &flakyStore{AccountStore: s, faults: make(map[string][]fault)}
}

func (f *flakyStore) failNext(id string, faults ...fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[id] = append(f.faults[id], faults...)
}

func (f *flakyStore) SetBalance(ctx context.Context, id string, expectedVersion int64, amount decimal.Decimal) (int64, error) {
	f.mu.Lock()
	var next fault
	if q := f.faults[id]; len(q) > 0 {
		next = q[0]
		f.faults[id] = q[1:]
	}
	f.mu.Unlock()

	if next.err == nil {
		return f.AccountStore.SetBalance(ctx, id, expectedVersion, amount)
	}
	if next.apply {
		_, _ = f.AccountStore.SetBalance(ctx, id, expectedVersion, amount)
	}
	return 0, next.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.LedgerEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.LedgerEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func nopLogger() Option {
	return WithLogger(zap.NewNop())
}
