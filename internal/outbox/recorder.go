package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledger/internal/domain"
	"ledger/internal/repository/outbox_repo"
)

// Recorder stores ledger events in the outbox for the Processor to relay.
type Recorder struct {
	querier    domain.Querier
	outboxRepo outbox_repo.OutboxRepository
	topic      string
	now        func() time.Time
}

func NewRecorder(querier domain.Querier, outboxRepo outbox_repo.OutboxRepository, topic string) *Recorder {
	return &Recorder{
		querier:    querier,
		outboxRepo: outboxRepo,
		topic:      topic,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Recorder) Publish(ctx context.Context, event domain.LedgerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger event %s: %w", event.ID, err)
	}
	msg := &domain.OutboxMessage{
		ID:          event.ID,
		AggregateID: event.AccountID,
		MessageType: string(event.Type),
		Topic:       r.topic,
		Key:         event.AccountID,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   r.now(),
	}
	return r.outboxRepo.CreateMessage(ctx, r.querier, msg)
}
