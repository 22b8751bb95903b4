package payments

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billing/internal/domain"
	"billing/internal/validation"
)

func (s *paymentService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.Account, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.TotalAmountDue.IsNegative() {
		return nil, validation.FieldError("totalAmountDue", "must not be negative")
	}

	now := s.now()
	account := &domain.Account{
		ID:             req.PayerID,
		SchoolID:       req.SchoolID,
		PaymentStatus:  req.PaymentStatus,
		TotalAmountDue: req.TotalAmountDue,
		AmountPaid:     decimal.Zero,
		Beneficiaries:  make([]domain.Beneficiary, 0, len(req.Beneficiaries)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if account.PaymentStatus == "" {
		account.PaymentStatus = domain.AccountStatusPending
	}
	for _, b := range req.Beneficiaries {
		if _, err := s.studentRepo.GetStudentTx(ctx, s.db, b.StudentID); err != nil {
			return nil, fmt.Errorf("failed to link student %s: %w", b.StudentID, err)
		}
		account.Beneficiaries = append(account.Beneficiaries, domain.Beneficiary{StudentID: b.StudentID, Relationship: b.Relationship})
	}

	err := s.tx.RunInTx(ctx, func(q domain.Querier) error {
		return s.accountRepo.CreateAccountTx(ctx, q, account)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account for payer %s: %w", req.PayerID, err)
	}

	s.logger.Info("Payer account created",
		zap.String("payer_id", account.ID),
		zap.Int("beneficiaries", len(account.Beneficiaries)),
	)
	return account, nil
}

func (s *paymentService) GetAccount(ctx context.Context, payerID string) (*domain.Account, error) {
	account, err := s.accountRepo.GetAccountTx(ctx, s.db, payerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account for payer %s: %w", payerID, err)
	}
	return account, nil
}

func (s *paymentService) LinkBeneficiary(ctx context.Context, payerID string, req BeneficiaryRequest) (*domain.Account, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if _, err := s.studentRepo.GetStudentTx(ctx, s.db, req.StudentID); err != nil {
		return nil, fmt.Errorf("failed to link student %s: %w", req.StudentID, err)
	}

	err := s.tx.RunInTx(ctx, func(q domain.Querier) error {
		return s.accountRepo.AddBeneficiaryTx(ctx, q, payerID, domain.Beneficiary{
			StudentID:    req.StudentID,
			Relationship: req.Relationship,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to link student %s to payer %s: %w", req.StudentID, payerID, err)
	}

	s.logger.Info("Beneficiary linked",
		zap.String("payer_id", payerID),
		zap.String("student_id", req.StudentID),
		zap.String("relationship", string(req.Relationship)),
	)
	return s.GetAccount(ctx, payerID)
}
