package kafka_infra

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes one message. Returning an error makes the consumer
// retry the same message with backoff; later offsets are not fetched until it
// succeeds. Handlers drop messages they can never process by returning nil.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

type Consumer interface {
	Start(ctx context.Context, handler MessageHandler) error
	Stop()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaConsumer struct {
	reader     messageReader
	logger     *zap.Logger
	topic      string
	groupID    string
	retryDelay time.Duration
	maxBackoff time.Duration
	cancel     context.CancelFunc
}

func NewConsumer(brokerURLs []string, groupID, topic string, logger *zap.Logger) Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:                brokerURLs,
		GroupID:                groupID,
		Topic:                  topic,
		MinBytes:               1,
		MaxBytes:               10e6,
		ReadBatchTimeout:       time.Second,
		Logger:                 kafka.LoggerFunc(logger.Sugar().Debugf),
		ErrorLogger:            kafka.LoggerFunc(logger.Sugar().Errorf),
		HeartbeatInterval:      3 * time.Second,
		CommitInterval:         0,
		PartitionWatchInterval: 5 * time.Second,
		MaxAttempts:            3,
	})
	return newConsumer(reader, groupID, topic, logger)
}

func newConsumer(reader messageReader, groupID, topic string, logger *zap.Logger) *kafkaConsumer {
	return &kafkaConsumer{
		reader:     reader,
		logger:     logger,
		topic:      topic,
		groupID:    groupID,
		retryDelay: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Start blocks until ctx is cancelled or Stop is called, then closes the reader.
func (c *kafkaConsumer) Start(ctx context.Context, handler MessageHandler) error {
	consumerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	c.logger.Info("Kafka consumer starting", zap.String("topic", c.topic), zap.String("group_id", c.groupID))

	for {
		msg, err := c.reader.FetchMessage(consumerCtx)
		if err != nil {
			if consumerCtx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Kafka consumer stopping", zap.String("topic", c.topic))
				return c.reader.Close()
			}
			c.logger.Error("Failed to fetch message from Kafka", zap.Error(err))
			select {
			case <-consumerCtx.Done():
			case <-time.After(c.retryDelay):
			}
			continue
		}

		fields := []zap.Field{
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		}

		if !c.handleWithRetry(consumerCtx, handler, msg, fields) {
			c.logger.Info("Kafka consumer stopping before message was handled", fields...)
			return c.reader.Close()
		}
		if err := c.reader.CommitMessages(consumerCtx, msg); err != nil {
			c.logger.Error("Failed to commit Kafka offset", append(fields, zap.Error(err))...)
			continue
		}
		c.logger.Debug("Kafka message committed", fields...)
	}
}

// handleWithRetry runs handler until it succeeds. It returns false when ctx
// ends first, leaving the message uncommitted for the next group member.
func (c *kafkaConsumer) handleWithRetry(ctx context.Context, handler MessageHandler, msg kafka.Message, fields []zap.Field) bool {
	backoff := c.retryDelay
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return true
		}
		c.logger.Error("Error handling Kafka message, retrying",
			append(fields, zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))...)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *kafkaConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.logger.Info("Kafka consumer stop signal sent", zap.String("topic", c.topic))
}
