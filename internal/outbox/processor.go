package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"billing/internal/domain"
	"billing/internal/infrastructure/database"
	kafkaInfra "billing/internal/infrastructure/kafka"
)

const defaultBatchSize = 10

type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	UpdateMessageStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error
}

// Processor relays settlement events from the outbox table to Kafka. A message
// is marked SENT only after the producer acknowledged it, so delivery is at
// least once.
type Processor struct {
	tx             database.TxRunner
	outboxRepo     OutboxRepository
	kafkaProducer  kafkaInfra.Producer
	defaultTopic   string
	batchSize      int
	pollInterval   time.Duration
	pollTimeout    time.Duration
	logger         *zap.Logger
	shutdownSignal chan struct{}
	shutdownOnce   sync.Once
}

func NewProcessor(
	tx database.TxRunner,
	outboxRepo OutboxRepository,
	kafkaProducer kafkaInfra.Producer,
	defaultTopic string,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		tx:             tx,
		outboxRepo:     outboxRepo,
		kafkaProducer:  kafkaProducer,
		defaultTopic:   defaultTopic,
		batchSize:      defaultBatchSize,
		pollInterval:   pollInterval,
		pollTimeout:    pollTimeout,
		logger:         logger,
		shutdownSignal: make(chan struct{}),
	}
}

// Start polls until ctx is cancelled or Stop is called.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped")
			return
		case <-p.shutdownSignal:
			p.logger.Info("Outbox processor stopped")
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

func (p *Processor) Stop() {
	p.shutdownOnce.Do(func() {
		close(p.shutdownSignal)
	})
}

// ProcessBatch publishes one batch of pending messages and returns how many were sent.
func (p *Processor) ProcessBatch(ctx context.Context) int {
	sent := 0
	err := p.tx.RunInTx(ctx, func(q domain.Querier) error {
		queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
		messages, err := p.outboxRepo.GetPendingMessages(queryCtx, q, p.batchSize)
		cancel()
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}
		p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

		for _, msg := range messages {
			topic := msg.Topic
			if topic == "" {
				topic = p.defaultTopic
			}

			if err := p.kafkaProducer.Produce(ctx, msg.Key, topic, msg.Payload); err != nil {
				p.logger.Error("Failed to send outbox message to Kafka",
					zap.String("message_id", msg.ID),
					zap.String("topic", topic),
					zap.Error(err),
				)
				continue
			}

			if err := p.outboxRepo.UpdateMessageStatusTx(ctx, q, msg.ID, domain.OutboxStatusSent); err != nil {
				return err
			}
			sent++
			p.logger.Info("Outbox message sent",
				zap.String("message_id", msg.ID),
				zap.String("message_type", msg.MessageType),
				zap.String("transaction_id", msg.Key),
			)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("Failed to process outbox batch", zap.Error(err))
		return 0
	}
	return sent
}
