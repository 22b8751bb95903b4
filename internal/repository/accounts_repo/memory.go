package accounts_repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"billing/internal/domain"
)

// MemoryRepository keeps payer accounts in process. The querier argument is ignored.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]*domain.Account)}
}

func cloneAccount(a *domain.Account) *domain.Account {
	cpy := *a
	if a.LastPaymentDate != nil {
		last := *a.LastPaymentDate
		cpy.LastPaymentDate = &last
	}
	cpy.Beneficiaries = append([]domain.Beneficiary(nil), a.Beneficiaries...)
	if cpy.Beneficiaries == nil {
		cpy.Beneficiaries = []domain.Beneficiary{}
	}
	return &cpy
}

func (r *MemoryRepository) CreateAccountTx(_ context.Context, _ domain.Querier, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return fmt.Errorf("payer %s: %w", account.ID, domain.ErrAccountAlreadyExists)
	}
	r.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r *MemoryRepository) GetAccountTx(_ context.Context, _ domain.Querier, payerID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[payerID]
	if !ok {
		return nil, fmt.Errorf("payer %s: %w", payerID, domain.ErrAccountNotFound)
	}
	return cloneAccount(account), nil
}

func (r *MemoryRepository) GetAccountForUpdateTx(ctx context.Context, querier domain.Querier, payerID string) (*domain.Account, error) {
	return r.GetAccountTx(ctx, querier, payerID)
}

func (r *MemoryRepository) CreditTx(_ context.Context, _ domain.Querier, payerID string, amount decimal.Decimal, paidAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[payerID]
	if !ok {
		return fmt.Errorf("payer %s: %w", payerID, domain.ErrAccountNotFound)
	}
	account.AmountPaid = account.AmountPaid.Add(amount)
	if account.PaymentStatus != domain.AccountStatusExempted {
		account.PaymentStatus = domain.AccountStatusPaid
	}
	if account.LastPaymentDate == nil || paidAt.After(*account.LastPaymentDate) {
		account.LastPaymentDate = &paidAt
	}
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) SetAggregatesTx(_ context.Context, _ domain.Querier, payerID string, agg domain.Aggregates, status domain.AccountPaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[payerID]
	if !ok {
		return fmt.Errorf("payer %s: %w", payerID, domain.ErrAccountNotFound)
	}
	account.AmountPaid = agg.AmountPaid
	account.LastPaymentDate = nil
	if agg.LastPaymentDate != nil {
		last := *agg.LastPaymentDate
		account.LastPaymentDate = &last
	}
	account.PaymentStatus = status
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) AddBeneficiaryTx(_ context.Context, _ domain.Querier, payerID string, beneficiary domain.Beneficiary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[payerID]
	if !ok {
		return fmt.Errorf("payer %s: %w", payerID, domain.ErrAccountNotFound)
	}
	for i, b := range account.Beneficiaries {
		if b.StudentID == beneficiary.StudentID {
			account.Beneficiaries[i].Relationship = beneficiary.Relationship
			return nil
		}
	}
	account.Beneficiaries = append(account.Beneficiaries, beneficiary)
	return nil
}
