package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/repository/transfers_repo"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
}

// Reconciler flags transfers whose session died between debit and credit.
// It never moves money: flagged records need an operator.
type Reconciler struct {
	journal    transfers_repo.Journal
	publisher  EventPublisher
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

func NewReconciler(
	journal transfers_repo.Journal,
	publisher EventPublisher,
	interval time.Duration,
	staleAfter time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		journal:    journal,
		publisher:  publisher,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start scans the journal every interval until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("Starting transfer reconciler...",
		zap.Duration("interval", r.interval),
		zap.Duration("stale_after", r.staleAfter))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Transfer reconciler stopped.")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("Reconciliation pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce marks every stale non-terminal transfer INDETERMINATE and returns
// how many were flagged.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.staleAfter)
	stale, err := r.journal.ListStale(ctx, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale transfers: %w", err)
	}

	flagged := 0
	for i := range stale {
		t := &stale[i]
		// The owning session may still finish the transfer after ListStale.
		moved, err := r.journal.SetStatusIf(ctx, t.ID, []domain.TransferStatus{t.Status}, domain.TransferStatusIndeterminate)
		if err != nil {
			r.logger.Error("Failed to flag stale transfer", zap.String("transfer_id", t.ID), zap.Error(err))
			continue
		}
		if !moved {
			r.logger.Info("Stale transfer progressed before it was flagged, skipping",
				zap.String("transfer_id", t.ID),
				zap.String("listed_status", string(t.Status)))
			continue
		}
		flagged++

		r.logger.Error("Transfer requires manual reconciliation",
			zap.String("transfer_id", t.ID),
			zap.String("from_account", t.FromAccount),
			zap.String("to_account", t.ToAccount),
			zap.String("amount", t.Amount.String()),
			zap.String("last_status", string(t.Status)),
			zap.Time("last_update", t.UpdatedAt))

		if r.publisher == nil {
			continue
		}
		event := domain.NewLedgerEvent(domain.EventReconciliationRequired, t.FromAccount, r.now()).WithTransfer(t)
		event.Reason = fmt.Sprintf("transfer stuck in %s since %s", t.Status, t.UpdatedAt.Format(time.RFC3339))
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.Warn("Failed to publish reconciliation event", zap.String("transfer_id", t.ID), zap.Error(err))
		}
	}
	return flagged, nil
}
