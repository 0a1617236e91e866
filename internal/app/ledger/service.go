package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"ledger/internal/credential"
	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/transfers_repo"
)

// EventPublisher receives ledger events after the mutation they describe
// has been persisted.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
}

// Service authenticates identities and opens engine sessions against one
// AccountStore. It is safe for concurrent use; the engines it opens are not.
type Service struct {
	store     accounts_repo.AccountStore
	hasher    credential.Hasher
	policy    credential.Policy
	journal   transfers_repo.Journal
	publisher EventPublisher
	logger    *zap.Logger
	scale     int32
	now       func() time.Time
}

type Option func(*Service)

func WithHasher(h credential.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func WithPolicy(p credential.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithJournal records every transfer attempt before money moves.
func WithJournal(j transfers_repo.Journal) Option {
	return func(s *Service) { s.journal = j }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithCurrencyScale(scale int32) Option {
	return func(s *Service) { s.scale = scale }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store accounts_repo.AccountStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: credential.DefaultPolicy(),
		logger: zap.NewNop(),
		scale:  domain.DefaultCurrencyScale,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hasher == nil {
		s.hasher = credential.NewBcryptHasher(bcrypt.DefaultCost)
	}
	return s
}

func (s *Service) CurrencyScale() int32 {
	return s.scale
}

// Exists reports whether an account record exists. A store failure is an
// error, never a false.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.store.Exists(ctx, id)
	if err != nil {
		return false, domain.Persistence("check account", err)
	}
	return ok, nil
}

// Authenticate reports whether id exists and cred verifies against its
// stored hash. Unknown identifiers still pay for one hash comparison.
func (s *Service) Authenticate(ctx context.Context, id, cred string) (bool, error) {
	hash, err := s.store.GetCredentialHash(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			s.hasher.VerifyDummy(cred)
			return false, nil
		}
		return false, domain.Persistence("authenticate", err)
	}
	return s.hasher.Verify(hash, cred), nil
}

// Login authenticates and opens a session in one step. An unknown id and a
// wrong credential are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, id, cred string) (*Engine, error) {
	ok, err := s.Authenticate(ctx, id, cred)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrCredentialMismatch
	}
	return s.Open(ctx, id)
}

// Open binds an engine to id, loading its balance, version and credential
// hash. The caller is expected to have authenticated id already.
func (s *Service) Open(ctx context.Context, id string) (*Engine, error) {
	e := &Engine{svc: s, accountID: id}
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Provision creates a new account. The store must implement
// accounts_repo.Provisioner.
func (s *Service) Provision(ctx context.Context, id, cred string, openingBalance decimal.Decimal) (*domain.Account, error) {
	p, ok := s.store.(accounts_repo.Provisioner)
	if !ok {
		return nil, fmt.Errorf("%w: store does not support provisioning", domain.ErrInvalidOperation)
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: account id must not be empty", domain.ErrInvalidOperation)
	}
	if err := s.policy.Validate(cred); err != nil {
		return nil, err
	}
	if err := domain.ValidateOpeningBalance(openingBalance, s.scale); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(cred)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &domain.Account{
		ID:             id,
		Balance:        openingBalance,
		CredentialHash: hash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
		return nil, domain.Persistence("create account", err)
	}
	s.logger.Info("Account provisioned",
		zap.String("account_id", id),
		zap.String("opening_balance", openingBalance.String()))
	return account, nil
}

func (s *Service) publish(ctx context.Context, event domain.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish ledger event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("account_id", event.AccountID),
			zap.Error(err))
	}
}
