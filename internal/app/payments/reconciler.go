package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billing/internal/domain"
	"billing/internal/gateway"
	"billing/internal/validation"
)

func (s *paymentService) HandleWebhook(ctx context.Context, req WebhookRequest) (*domain.Payment, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	payment, err := s.paymentRepo.GetByTransactionIDTx(ctx, s.db, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("webhook for transaction %s: %w", req.TransactionID, err)
	}

	status := gateway.NormalizeStatus(req.Status)
	if status == domain.PaymentStatusCompleted && !req.Amount.IsPositive() {
		return nil, validation.FieldError("amount", "a completed payment must report the settled amount")
	}
	if req.Provider != "" && payment.Provider != "" && req.Provider != payment.Provider {
		s.logger.Warn("Webhook provider does not match the payment",
			zap.String("transaction_id", req.TransactionID),
			zap.String("webhook_provider", req.Provider),
			zap.String("payment_provider", payment.Provider),
		)
	}

	s.logger.Info("Webhook received",
		zap.String("transaction_id", req.TransactionID),
		zap.String("provider_status", req.Status),
		zap.String("status", string(status)),
	)
	return s.applyProviderStatus(ctx, payment, status, req.Amount)
}

func (s *paymentService) VerifyPayment(ctx context.Context, transactionID string) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByTransactionIDTx(ctx, s.db, transactionID)
	if err != nil {
		return nil, fmt.Errorf("verify transaction %s: %w", transactionID, err)
	}
	if payment.Status.IsTerminal() || payment.Method.IsDirect() {
		return payment, nil
	}

	res, err := s.gateway.Verify(ctx, gateway.Provider(payment.Provider), transactionID)
	if err != nil {
		return nil, fmt.Errorf("verify transaction %s: %w", transactionID, err)
	}

	settled := res.Amount
	if !settled.IsPositive() {
		settled = payment.Amount
	}
	if res.Status == domain.PaymentStatusCompleted && settled.GreaterThan(payment.Amount) {
		return s.flagOverpayment(ctx, payment, settled)
	}
	return s.applyProviderStatus(ctx, payment, res.Status, settled)
}

// flagOverpayment fails an attempt the provider reports as settled above the
// invoice. Nothing is credited and the note tells an operator what to reconcile
// by hand. Failing it keeps the stale sweep from verifying it forever.
func (s *paymentService) flagOverpayment(ctx context.Context, payment *domain.Payment, reported decimal.Decimal) (*domain.Payment, error) {
	note := fmt.Sprintf("provider reported %s settled against an invoice of %s, manual review required",
		reported, payment.Amount)

	var applied bool
	err := s.tx.RunInTx(ctx, func(q domain.Querier) error {
		var err error
		applied, err = s.paymentRepo.TransitionTx(ctx, q, payment.TransactionID,
			domain.PaymentStatusPending, domain.PaymentStatusFailed, payment.AmountPaid, nil)
		if err != nil || !applied {
			return err
		}
		if err := s.paymentRepo.AppendNoteTx(ctx, q, payment.TransactionID, note); err != nil {
			return err
		}

		flagged := *payment
		flagged.Status = domain.PaymentStatusFailed
		flagged.Notes = note
		return s.enqueueSettlement(ctx, q, &flagged)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to flag overpaid transaction %s: %w", payment.TransactionID, err)
	}
	if applied {
		s.logger.Error("Provider reported more than invoiced, payment failed for manual review",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("payer_id", payment.PayerID),
			zap.String("invoiced", payment.Amount.String()),
			zap.String("reported", reported.String()),
		)
	}

	current, err := s.paymentRepo.GetByTransactionIDTx(ctx, s.db, payment.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload transaction %s: %w", payment.TransactionID, err)
	}
	return current, nil
}

// VerifyStalePending pulls the provider status of pending mobile-money payments
// created before olderThan. It returns how many reached a terminal status.
func (s *paymentService) VerifyStalePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	stale, err := s.paymentRepo.ListStalePendingTx(ctx, s.db, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale pending payments: %w", err)
	}

	settled := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		updated, err := s.VerifyPayment(ctx, p.TransactionID)
		if err != nil {
			if isRetryable(err) {
				s.logger.Debug("Provider unavailable, payment stays pending",
					zap.String("transaction_id", p.TransactionID))
				continue
			}
			s.logger.Error("Failed to verify stale payment",
				zap.String("transaction_id", p.TransactionID),
				zap.Error(err),
			)
			continue
		}
		if updated.Status.IsTerminal() {
			settled++
		}
	}
	return settled, nil
}

// applyProviderStatus is the single place where a pending attempt becomes
// terminal. The transition is conditional on the attempt still being pending,
// so of two concurrent callers only one credits the payer.
func (s *paymentService) applyProviderStatus(ctx context.Context, payment *domain.Payment, status domain.PaymentStatus, settled decimal.Decimal) (*domain.Payment, error) {
	if status == domain.PaymentStatusPending || payment.Status.IsTerminal() {
		return payment, nil
	}
	if status == domain.PaymentStatusCompleted && settled.GreaterThan(payment.Amount) {
		return nil, validation.FieldError("amount",
			fmt.Sprintf("settled amount %s exceeds invoiced amount %s", settled, payment.Amount))
	}

	now := s.now()
	amountPaid := payment.AmountPaid
	var paidDate *time.Time
	if status == domain.PaymentStatusCompleted {
		amountPaid = settled
		paidDate = &now
	}

	var applied bool
	err := s.tx.RunInTx(ctx, func(q domain.Querier) error {
		var err error
		applied, err = s.paymentRepo.TransitionTx(ctx, q, payment.TransactionID, domain.PaymentStatusPending, status, amountPaid, paidDate)
		if err != nil || !applied {
			return err
		}

		transitioned := *payment
		transitioned.Status = status
		transitioned.AmountPaid = amountPaid
		transitioned.PaidDate = paidDate
		if status == domain.PaymentStatusCompleted {
			if err := s.accountRepo.CreditTx(ctx, q, payment.PayerID, amountPaid, now); err != nil {
				return fmt.Errorf("failed to credit payer %s for %s: %w", payment.PayerID, payment.TransactionID, err)
			}
		}
		return s.enqueueSettlement(ctx, q, &transitioned)
	})
	if err != nil {
		s.logger.Error("Failed to settle payment, run account repair if the payment was updated",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("payer_id", payment.PayerID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to settle transaction %s: %w", payment.TransactionID, err)
	}

	if !applied {
		s.logger.Info("Payment already settled by another caller",
			zap.String("transaction_id", payment.TransactionID))
	} else {
		s.logger.Info("Payment settled",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("payer_id", payment.PayerID),
			zap.String("student_id", payment.StudentID),
			zap.String("status", string(status)),
			zap.String("amount_paid", amountPaid.String()),
		)
	}

	current, err := s.paymentRepo.GetByTransactionIDTx(ctx, s.db, payment.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload transaction %s: %w", payment.TransactionID, err)
	}
	return current, nil
}

// RepairAccount recomputes the payer aggregates from completed payments.
func (s *paymentService) RepairAccount(ctx context.Context, payerID string) (*domain.Account, error) {
	var repaired *domain.Account
	err := s.tx.RunInTx(ctx, func(q domain.Querier) error {
		account, err := s.accountRepo.GetAccountForUpdateTx(ctx, q, payerID)
		if err != nil {
			return err
		}
		agg, err := s.paymentRepo.SumCompletedTx(ctx, q, payerID)
		if err != nil {
			return err
		}
		status := account.ResolveStatus(agg)
		if err := s.accountRepo.SetAggregatesTx(ctx, q, payerID, agg, status); err != nil {
			return err
		}

		if !account.AmountPaid.Equal(agg.AmountPaid) {
			s.logger.Warn("Payer aggregates drifted from completed payments",
				zap.String("payer_id", payerID),
				zap.String("cached_amount_paid", account.AmountPaid.String()),
				zap.String("recomputed_amount_paid", agg.AmountPaid.String()),
			)
		}
		account.AmountPaid = agg.AmountPaid
		account.LastPaymentDate = agg.LastPaymentDate
		account.PaymentStatus = status
		repaired = account
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to repair account %s: %w", payerID, err)
	}
	return repaired, nil
}
