package outbox_repo

import (
	"context"

	"ledger/internal/domain"
)

// OutboxRepository stores ledger events until the processor relays them.
// The querier may be the database handle or an open transaction.
type OutboxRepository interface {
	CreateMessage(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	UpdateMessageStatus(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error
}
