package kafka_infra

import (
	"context"
	"encoding/json"
	"fmt"

	"ledger/internal/domain"
)

// EventPublisher sends ledger events straight to Kafka, keyed by account
// so that one account's events stay ordered within a partition.
type EventPublisher struct {
	producer Producer
	topic    string
}

func NewEventPublisher(producer Producer, topic string) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic}
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.LedgerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger event %s: %w", event.ID, err)
	}
	return p.producer.Produce(ctx, p.topic, event.AccountID, payload)
}
