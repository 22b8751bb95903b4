package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"billing/internal/domain"
	"billing/internal/repository/accounts_repo"
	"billing/internal/repository/payments_repo"
)

// DefaultWindow is how long a completed payment keeps bulletins open.
const DefaultWindow = 90 * 24 * time.Hour

type Reason string

const (
	ReasonPaid    Reason = "paid"
	ReasonUnpaid  Reason = "unpaid"
	ReasonOverdue Reason = "overdue"
)

type Decision struct {
	Authorized bool       `json:"authorized"`
	Reason     Reason     `json:"reason"`
	PaidDate   *time.Time `json:"paidDate,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

type Gate interface {
	// Check never mutates state. It fails with domain.ErrForbidden when the
	// payer is not linked to the student; an unpaid or stale payment is a
	// negative Decision, not an error.
	Check(ctx context.Context, payerID, studentID string) (*Decision, error)
}

type gate struct {
	db          domain.Querier
	accountRepo accounts_repo.AccountRepository
	paymentRepo payments_repo.PaymentRepository
	window      time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

func NewGate(
	db domain.Querier,
	accountRepo accounts_repo.AccountRepository,
	paymentRepo payments_repo.PaymentRepository,
	window time.Duration,
	logger *zap.Logger,
) Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &gate{
		db:          db,
		accountRepo: accountRepo,
		paymentRepo: paymentRepo,
		window:      window,
		now:         time.Now,
		logger:      logger,
	}
}

func (g *gate) Check(ctx context.Context, payerID, studentID string) (*Decision, error) {
	account, err := g.accountRepo.GetAccountTx(ctx, g.db, payerID)
	if err != nil {
		return nil, fmt.Errorf("access check for payer %s: %w", payerID, err)
	}
	if !account.HasBeneficiary(studentID) {
		g.logger.Warn("Bulletin access refused, no relationship",
			zap.String("payer_id", payerID),
			zap.String("student_id", studentID),
		)
		return nil, fmt.Errorf("payer %s has no link to student %s: %w", payerID, studentID, domain.ErrForbidden)
	}

	latest, err := g.paymentRepo.LatestCompletedTx(ctx, g.db, payerID, studentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &Decision{Authorized: false, Reason: ReasonUnpaid}, nil
		}
		return nil, fmt.Errorf("access check for payer %s and student %s: %w", payerID, studentID, err)
	}

	paid := latest.UpdatedAt
	if latest.PaidDate != nil {
		paid = *latest.PaidDate
	}
	expires := paid.Add(g.window)
	decision := &Decision{
		Authorized: true,
		Reason:     ReasonPaid,
		PaidDate:   &paid,
		ExpiresAt:  &expires,
	}
	if g.now().Sub(paid) > g.window {
		decision.Authorized = false
		decision.Reason = ReasonOverdue
	}
	return decision, nil
}
