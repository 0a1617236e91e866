package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

// Transfer moves amount from the bound account to recipientID and returns
// the sender's new balance. Stores implementing accounts_repo.Transactor
// get a single atomic transaction; others go through debit, credit and,
// if the credit fails, a compensating re-credit of the sender.
func (e *Engine) Transfer(ctx context.Context, amount decimal.Decimal, recipientID string) (decimal.Decimal, error) {
	if recipientID == e.accountID {
		return decimal.Zero, fmt.Errorf("%w: cannot transfer to the same account", domain.ErrInvalidOperation)
	}
	if err := domain.ValidateAmount(amount, e.svc.scale); err != nil {
		return decimal.Zero, err
	}
	if amount.GreaterThan(e.balance) {
		return decimal.Zero, fmt.Errorf("%w: balance %s, requested %s", domain.ErrInsufficientFunds, e.balance, amount)
	}
	ok, err := e.svc.Exists(ctx, recipientID)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("transfer to %s: %w", recipientID, domain.ErrRecipientNotFound)
	}

	t := domain.NewPendingTransfer(e.accountID, recipientID, amount, e.svc.now())
	if e.svc.journal != nil {
		if err := e.svc.journal.Begin(ctx, t); err != nil {
			return decimal.Zero, domain.Persistence("journal transfer", err)
		}
	}

	if tx, ok := e.svc.store.(accounts_repo.Transactor); ok {
		err = e.transferAtomic(ctx, tx, t)
	} else {
		err = e.transferCompensating(ctx, t)
	}
	if err != nil {
		return decimal.Zero, err
	}

	e.markTransfer(ctx, t, domain.TransferStatusCompleted)
	e.svc.logger.Info("Transfer completed",
		zap.String("transfer_id", t.ID),
		zap.String("from_account", t.FromAccount),
		zap.String("to_account", t.ToAccount),
		zap.String("amount", amount.String()))
	e.svc.publish(ctx, domain.NewLedgerEvent(domain.EventTransferCompleted, e.accountID, e.svc.now()).
		WithTransfer(t).
		WithBalance(e.balance))
	return e.balance, nil
}

func (e *Engine) transferAtomic(ctx context.Context, tx accounts_repo.Transactor, t *domain.PendingTransfer) error {
	var newSender decimal.Decimal
	err := tx.WithTransaction(ctx, func(ctx context.Context, store accounts_repo.AccountStore) error {
		// Lock both rows in a fixed order so crossing transfers cannot deadlock.
		ids := []string{t.FromAccount, t.ToAccount}
		sort.Strings(ids)
		balances := make(map[string]domain.Balance, len(ids))
		for _, id := range ids {
			b, err := store.GetBalance(ctx, id)
			if err != nil {
				if errors.Is(err, domain.ErrAccountNotFound) && id == t.ToAccount {
					return fmt.Errorf("transfer to %s: %w", id, domain.ErrRecipientNotFound)
				}
				return err
			}
			balances[id] = b
		}

		sender := balances[t.FromAccount]
		if sender.Version != e.version {
			return fmt.Errorf("transfer from %s: %w", t.FromAccount, domain.ErrConcurrentModification)
		}
		newSender = sender.Amount.Sub(t.Amount)
		if newSender.IsNegative() {
			return fmt.Errorf("%w: balance %s, requested %s", domain.ErrInsufficientFunds, sender.Amount, t.Amount)
		}
		if err := setBalance(ctx, store, t.FromAccount, sender.Version, newSender); err != nil {
			return err
		}
		recipient := balances[t.ToAccount]
		return setBalance(ctx, store, t.ToAccount, recipient.Version, recipient.Amount.Add(t.Amount))
	})
	if err != nil {
		e.markTransfer(ctx, t, domain.TransferStatusFailed)
		if isDomainOutcome(err) {
			return err
		}
		return domain.Persistence("transfer", err)
	}

	e.balance = newSender
	e.version++
	return nil
}

func (e *Engine) transferCompensating(ctx context.Context, t *domain.PendingTransfer) error {
	if err := e.writeBalance(ctx, "transfer debit", e.balance.Sub(t.Amount)); err != nil {
		e.markTransfer(ctx, t, domain.TransferStatusFailed)
		return err
	}
	e.markTransfer(ctx, t, domain.TransferStatusDebited)

	readVersion, ambiguous, creditErr := e.creditRecipient(ctx, t)
	if creditErr == nil {
		return nil
	}

	if ambiguous {
		// The write errored but may still have landed. Only a recipient
		// whose version did not move proves the credit was not applied.
		b, err := e.svc.store.GetBalance(ctx, t.ToAccount)
		if err != nil {
			return e.unreconciled(ctx, t, errors.Join(creditErr, domain.Persistence("verify recipient", err)))
		}
		if b.Version != readVersion {
			return e.unreconciled(ctx, t, creditErr)
		}
	}

	if err := e.writeBalance(ctx, "transfer compensation", e.balance.Add(t.Amount)); err != nil {
		return e.unreconciled(ctx, t, errors.Join(creditErr, err))
	}

	e.markTransfer(ctx, t, domain.TransferStatusCompensated)
	e.svc.logger.Warn("Transfer failed, sender re-credited",
		zap.String("transfer_id", t.ID),
		zap.String("from_account", t.FromAccount),
		zap.String("to_account", t.ToAccount),
		zap.String("amount", t.Amount.String()),
		zap.Error(creditErr))
	e.svc.publish(ctx, domain.NewLedgerEvent(domain.EventTransferCompensated, e.accountID, e.svc.now()).
		WithTransfer(t).
		WithBalance(e.balance))
	return &domain.TransferFailedError{TransferID: t.ID, Reconciled: true, Err: creditErr}
}

// creditRecipient reports the recipient version it read and whether a
// failure is ambiguous, meaning the store may have applied the write.
func (e *Engine) creditRecipient(ctx context.Context, t *domain.PendingTransfer) (int64, bool, error) {
	store := e.svc.store
	b, err := store.GetBalance(ctx, t.ToAccount)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return 0, false, fmt.Errorf("transfer to %s: %w", t.ToAccount, domain.ErrRecipientNotFound)
		}
		return 0, false, domain.Persistence("read recipient", err)
	}
	rows, err := store.SetBalance(ctx, t.ToAccount, b.Version, b.Amount.Add(t.Amount))
	if err != nil {
		return b.Version, true, domain.Persistence("credit recipient", err)
	}
	if rows == 0 {
		return b.Version, false, fmt.Errorf("credit recipient %s: %w", t.ToAccount, domain.ErrConcurrentModification)
	}
	return b.Version, false, nil
}

func (e *Engine) unreconciled(ctx context.Context, t *domain.PendingTransfer, cause error) error {
	e.markTransfer(ctx, t, domain.TransferStatusIndeterminate)
	e.svc.logger.Error("Transfer requires manual reconciliation",
		zap.String("transfer_id", t.ID),
		zap.String("from_account", t.FromAccount),
		zap.String("to_account", t.ToAccount),
		zap.String("amount", t.Amount.String()),
		zap.Error(cause))
	e.svc.publish(ctx, domain.NewLedgerEvent(domain.EventReconciliationRequired, e.accountID, e.svc.now()).
		WithTransfer(t))
	return &domain.TransferFailedError{TransferID: t.ID, Reconciled: false, Err: cause}
}

// markTransfer records a journal transition. Failures are logged only: the
// money has already moved and a stale record is picked up by the reconciler.
func (e *Engine) markTransfer(ctx context.Context, t *domain.PendingTransfer, status domain.TransferStatus) {
	if e.svc.journal == nil {
		return
	}
	if err := e.svc.journal.SetStatus(ctx, t.ID, status); err != nil {
		e.svc.logger.Warn("Failed to update transfer journal",
			zap.String("transfer_id", t.ID),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	t.Status = status
}

func setBalance(ctx context.Context, store accounts_repo.AccountStore, id string, version int64, amount decimal.Decimal) error {
	rows, err := store.SetBalance(ctx, id, version, amount)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("update account %s: %w", id, domain.ErrConcurrentModification)
	}
	return nil
}

func isDomainOutcome(err error) bool {
	for _, target := range []error{
		domain.ErrConcurrentModification,
		domain.ErrInsufficientFunds,
		domain.ErrRecipientNotFound,
		domain.ErrAccountNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
