package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/domain"
)

// Engine is one session bound to one account. Calls must be sequential.
// The cached balance and version always match the last state this session
// wrote or read; failed operations leave them untouched.
type Engine struct {
	svc            *Service
	accountID      string
	balance        decimal.Decimal
	version        int64
	credentialHash string
}

func (e *Engine) AccountID() string {
	return e.accountID
}

// Balance returns the cached balance without touching the store.
func (e *Engine) Balance() decimal.Decimal {
	return e.balance
}

// Refresh reloads the account from the store, typically after
// ErrConcurrentModification.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.load(ctx)
}

func (e *Engine) load(ctx context.Context) error {
	store := e.svc.store
	b, err := store.GetBalance(ctx, e.accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("account %s: %w", e.accountID, err)
		}
		return domain.Persistence("load balance", err)
	}
	hash, err := store.GetCredentialHash(ctx, e.accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("account %s: %w", e.accountID, err)
		}
		return domain.Persistence("load credential", err)
	}
	e.balance = b.Amount
	e.version = b.Version
	e.credentialHash = hash
	return nil
}

func (e *Engine) Deposit(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := domain.ValidateAmount(amount, e.svc.scale); err != nil {
		return decimal.Zero, err
	}
	if err := e.writeBalance(ctx, "deposit", e.balance.Add(amount)); err != nil {
		return decimal.Zero, err
	}

	e.svc.logger.Debug("Deposit applied",
		zap.String("account_id", e.accountID),
		zap.String("amount", amount.String()))
	e.svc.publish(ctx, domain.NewLedgerEvent(domain.EventDeposited, e.accountID, e.svc.now()).
		WithAmount(amount).
		WithBalance(e.balance))
	return e.balance, nil
}

func (e *Engine) Withdraw(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := domain.ValidateAmount(amount, e.svc.scale); err != nil {
		return decimal.Zero, err
	}
	if amount.GreaterThan(e.balance) {
		return decimal.Zero, fmt.Errorf("%w: balance %s, requested %s", domain.ErrInsufficientFunds, e.balance, amount)
	}
	if err := e.writeBalance(ctx, "withdraw", e.balance.Sub(amount)); err != nil {
		return decimal.Zero, err
	}

	e.svc.logger.Debug("Withdrawal applied",
		zap.String("account_id", e.accountID),
		zap.String("amount", amount.String()))
	e.svc.publish(ctx, domain.NewLedgerEvent(domain.EventWithdrawn, e.accountID, e.svc.now()).
		WithAmount(amount).
		WithBalance(e.balance))
	return e.balance, nil
}

// ChangeCredential replaces the credential after verifying the current
// one. Identity and balance are untouched.
func (e *Engine) ChangeCredential(ctx context.Context, oldCred, newCred string) error {
	if !e.svc.hasher.Verify(e.credentialHash, oldCred) {
		return domain.ErrCredentialMismatch
	}
	if err := e.svc.policy.Validate(newCred); err != nil {
		return err
	}
	if newCred == oldCred {
		return fmt.Errorf("%w: new credential must differ from the current one", domain.ErrInvalidOperation)
	}
	newHash, err := e.svc.hasher.Hash(newCred)
	if err != nil {
		return err
	}

	rows, err := e.svc.store.SetCredentialHash(ctx, e.accountID, e.credentialHash, newHash)
	if err != nil {
		return domain.Persistence("change credential", err)
	}
	if rows == 0 {
		return fmt.Errorf("change credential on account %s: %w", e.accountID, domain.ErrConcurrentModification)
	}
	e.credentialHash = newHash

	e.svc.logger.Info("Credential changed", zap.String("account_id", e.accountID))
	e.svc.publish(ctx, domain.NewLedgerEvent(domain.EventCredentialChanged, e.accountID, e.svc.now()))
	return nil
}

// writeBalance persists newBalance against the cached version and updates
// the cache only once the store has accepted the write.
func (e *Engine) writeBalance(ctx context.Context, op string, newBalance decimal.Decimal) error {
	rows, err := e.svc.store.SetBalance(ctx, e.accountID, e.version, newBalance)
	if err != nil {
		return domain.Persistence(op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s on account %s: %w", op, e.accountID, domain.ErrConcurrentModification)
	}
	e.balance = newBalance
	e.version++
	return nil
}
