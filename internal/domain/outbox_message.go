package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
	OutboxStatusFailed  OutboxMessageStatus = "FAILED"
)

const (
	MessageTypePaymentCompleted = "payment.completed"
	MessageTypePaymentFailed    = "payment.failed"
)

// OutboxMessage is a settlement event waiting to be published to Kafka.
type OutboxMessage struct {
	ID          string
	AggregateID string
	MessageType string
	Topic       string
	Key         string
	Payload     []byte
	Status      OutboxMessageStatus
	CreatedAt   time.Time
	SentAt      *time.Time
}
