package payments_repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"billing/internal/domain"
)

// MemoryRepository keeps payments in process. The querier argument is ignored.
type MemoryRepository struct {
	mu            sync.RWMutex
	byID          map[string]*domain.Payment
	byTransaction map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:          make(map[string]*domain.Payment),
		byTransaction: make(map[string]string),
	}
}

func clonePayment(p *domain.Payment) *domain.Payment {
	cpy := *p
	if p.PaidDate != nil {
		paid := *p.PaidDate
		cpy.PaidDate = &paid
	}
	return &cpy
}

func (r *MemoryRepository) CreateTx(_ context.Context, _ domain.Querier, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byTransaction[payment.TransactionID]; exists {
		return fmt.Errorf("transaction %s: %w", payment.TransactionID, domain.ErrDuplicateTransaction)
	}
	r.byID[payment.ID] = clonePayment(payment)
	r.byTransaction[payment.TransactionID] = payment.ID
	return nil
}

func (r *MemoryRepository) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("payment id %s: %w", id, domain.ErrPaymentNotFound)
	}
	return clonePayment(p), nil
}

func (r *MemoryRepository) GetByTransactionIDTx(_ context.Context, _ domain.Querier, transactionID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byTransaction[transactionID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, domain.ErrPaymentNotFound)
	}
	return clonePayment(r.byID[id]), nil
}

func (r *MemoryRepository) AppendNoteTx(_ context.Context, _ domain.Querier, transactionID, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byTransaction[transactionID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", transactionID, domain.ErrPaymentNotFound)
	}
	stored := r.byID[id]
	if stored.Notes == "" {
		stored.Notes = note
	} else {
		stored.Notes += "\n" + note
	}
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) TransitionTx(
	_ context.Context,
	_ domain.Querier,
	transactionID string,
	from, to domain.PaymentStatus,
	amountPaid decimal.Decimal,
	paidDate *time.Time,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byTransaction[transactionID]
	if !ok {
		return false, nil
	}
	stored := r.byID[id]
	if stored.Status != from {
		return false, nil
	}
	stored.Status = to
	stored.AmountPaid = amountPaid
	if paidDate != nil {
		paid := *paidDate
		stored.PaidDate = &paid
	} else {
		stored.PaidDate = nil
	}
	stored.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryRepository) LatestCompletedTx(_ context.Context, _ domain.Querier, payerID, studentID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Payment
	for _, p := range r.byID {
		if p.PayerID != payerID || p.StudentID != studentID || p.Status != domain.PaymentStatusCompleted || p.PaidDate == nil {
			continue
		}
		if latest == nil || p.PaidDate.After(*latest.PaidDate) {
			latest = p
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("completed payment for payer %s and student %s: %w", payerID, studentID, domain.ErrPaymentNotFound)
	}
	return clonePayment(latest), nil
}

func (r *MemoryRepository) ListByPayerTx(_ context.Context, _ domain.Querier, payerID string) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payments := make([]domain.Payment, 0)
	for _, p := range r.byID {
		if p.PayerID == payerID {
			payments = append(payments, *clonePayment(p))
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})
	return payments, nil
}

func (r *MemoryRepository) SumCompletedTx(_ context.Context, _ domain.Querier, payerID string) (domain.Aggregates, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agg := domain.Aggregates{AmountPaid: decimal.Zero}
	for _, p := range r.byID {
		if p.PayerID != payerID || p.Status != domain.PaymentStatusCompleted {
			continue
		}
		agg.AmountPaid = agg.AmountPaid.Add(p.AmountPaid)
		agg.Completed++
		if p.PaidDate != nil && (agg.LastPaymentDate == nil || p.PaidDate.After(*agg.LastPaymentDate)) {
			paid := *p.PaidDate
			agg.LastPaymentDate = &paid
		}
	}
	return agg, nil
}

func (r *MemoryRepository) ListStalePendingTx(_ context.Context, _ domain.Querier, olderThan time.Time, limit int) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payments := make([]domain.Payment, 0)
	for _, p := range r.byID {
		if p.Status == domain.PaymentStatusPending && p.Method == domain.PaymentMethodMobileMoney && p.CreatedAt.Before(olderThan) {
			payments = append(payments, *clonePayment(p))
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	if limit > 0 && len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}
