package transfers_repo

import (
	"context"
	"time"

	"ledger/internal/domain"
)

// Journal records transfer attempts so that a crash between the debit and
// the credit leaves a trace for the reconciler.
type Journal interface {
	Begin(ctx context.Context, transfer *domain.PendingTransfer) error
	SetStatus(ctx context.Context, id string, status domain.TransferStatus) error
	// SetStatusIf moves a record to status only while it is in one of from.
	// It reports false when the record had already moved on.
	SetStatusIf(ctx context.Context, id string, from []domain.TransferStatus, status domain.TransferStatus) (bool, error)
	// ListStale returns non-terminal records last updated before the cutoff,
	// oldest first.
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.PendingTransfer, error)
	Get(ctx context.Context, id string) (domain.PendingTransfer, error)
}
