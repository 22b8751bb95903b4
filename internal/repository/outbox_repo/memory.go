package outbox_repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"billing/internal/domain"
)

type MemoryRepository struct {
	mu       sync.Mutex
	messages map[string]*domain.OutboxMessage
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{messages: make(map[string]*domain.OutboxMessage)}
}

func (r *MemoryRepository) CreateMessageTx(_ context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *msg
	cpy.Payload = append([]byte(nil), msg.Payload...)
	r.messages[msg.ID] = &cpy
	return nil
}

func (r *MemoryRepository) GetPendingMessages(_ context.Context, _ domain.Querier, limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var messages []domain.OutboxMessage
	for _, msg := range r.messages {
		if msg.Status == domain.OutboxStatusPending {
			messages = append(messages, *msg)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (r *MemoryRepository) UpdateMessageStatusTx(_ context.Context, _ domain.Querier, id string, status domain.OutboxMessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("outbox message %s: %w", id, domain.ErrNotFound)
	}
	msg.Status = status
	msg.SentAt = nil
	if status == domain.OutboxStatusSent {
		now := time.Now().UTC()
		msg.SentAt = &now
	}
	return nil
}

// Messages returns every stored message regardless of status, oldest first.
func (r *MemoryRepository) Messages() []domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages := make([]domain.OutboxMessage, 0, len(r.messages))
	for _, msg := range r.messages {
		messages = append(messages, *msg)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages
}
