package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ledger/internal/domain"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/repository/outbox_repo"
)

// Processor relays pending outbox messages to Kafka in creation order.
type Processor struct {
	db            *sql.DB
	outboxRepo    outbox_repo.OutboxRepository
	kafkaProducer kafka_infra.Producer
	pollInterval  time.Duration
	pollTimeout   time.Duration
	batchSize     int
	logger        *zap.Logger
}

func NewProcessor(
	db *sql.DB,
	outboxRepo outbox_repo.OutboxRepository,
	kafkaProducer kafka_infra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		db:            db,
		outboxRepo:    outboxRepo,
		kafkaProducer: kafkaProducer,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Start polls until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped.")
			return
		case <-ticker.C:
			if _, err := p.processOutboxMessages(ctx); err != nil {
				p.logger.Error("Failed to process outbox messages", zap.Error(err))
			}
		}
	}
}

// processOutboxMessages sends one batch inside a transaction that holds the
// row locks. It stops at the first Kafka failure so later events are not
// delivered ahead of an earlier one for the same account.
func (p *Processor) processOutboxMessages(ctx context.Context) (int, error) {
	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(pollCtx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	messages, err := p.outboxRepo.GetPendingMessages(pollCtx, tx, p.batchSize)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if len(messages) == 0 {
		_ = tx.Rollback()
		return 0, nil
	}
	p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

	sent := 0
	for _, msg := range messages {
		if err := p.kafkaProducer.Produce(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			p.logger.Warn("Failed to send outbox message, will retry",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			break
		}
		if err := p.outboxRepo.UpdateMessageStatus(pollCtx, tx, msg.ID, domain.OutboxStatusSent); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		sent++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit outbox transaction: %w", err)
	}
	if sent > 0 {
		p.logger.Info("Outbox messages relayed", zap.Int("count", sent))
	}
	return sent, nil
}
