package bootstrap

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"ledger/internal/app/ledger"
	"ledger/internal/config"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/outbox"
	pgoutbox "ledger/internal/repository/outbox_repo/postgres"
)

// Events is the configured event path. On postgres, events go to the
// outbox table and Processor (when requested) relays them to Kafka. Other
// stores publish to Kafka directly.
type Events struct {
	Publisher ledger.EventPublisher
	Processor *outbox.Processor

	producer kafka_infra.Producer
}

// NewEvents returns an empty Events when Kafka is disabled. relay asks for
// an outbox processor; only the server runs one.
func NewEvents(ctx context.Context, cfg *config.Config, b *Backend, relay bool, logger *zap.Logger) (*Events, error) {
	ev := &Events{}
	if !cfg.Kafka.Enabled {
		logger.Info("Kafka disabled, ledger events will not be published")
		return ev, nil
	}

	topic := cfg.Kafka.LedgerEventsTopic
	if b.DB != nil {
		outboxRepository := pgoutbox.NewOutboxRepository()
		ev.Publisher = outbox.NewRecorder(b.DB, outboxRepository, topic)
		if !relay {
			return ev, nil
		}
		producer, err := newProducer(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		ev.producer = producer
		ev.Processor = outbox.NewProcessor(
			b.DB,
			outboxRepository,
			producer,
			cfg.Outbox.PollInterval,
			cfg.Outbox.PollTimeout,
			cfg.Outbox.BatchSize,
			logger.With(zap.String("component", "OutboxProcessor")),
		)
		return ev, nil
	}

	producer, err := newProducer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	ev.producer = producer
	ev.Publisher = kafka_infra.NewEventPublisher(producer, topic)
	return ev, nil
}

func newProducer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (kafka_infra.Producer, error) {
	brokers := cfg.GetKafkaBrokers()
	if err := kafka_infra.EnsureTopics(ctx, brokers, []string{cfg.Kafka.LedgerEventsTopic}, logger); err != nil {
		return nil, err
	}
	return kafka_infra.NewProducer(brokers, logger.With(zap.String("component", "KafkaProducer"))), nil
}

func (e *Events) Close() error {
	if e.producer == nil {
		return nil
	}
	if err := e.producer.Close(); err != nil {
		return errors.Join(errors.New("failed to close kafka producer"), err)
	}
	return nil
}
