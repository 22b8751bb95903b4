package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"billing/internal/app/payments"
	"billing/internal/domain"
	kafka_infra "billing/internal/infrastructure/kafka"
)

// VerificationRequestedHandler pulls the provider status of the requested
// transaction. Malformed or unknown requests are dropped. Any other failure,
// such as a gateway outage, is returned so the consumer retries the same
// request before committing its offset.
func VerificationRequestedHandler(paymentService payments.PaymentService, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event domain.VerificationRequestedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil || event.TransactionID == "" {
			logger.Error("Dropping malformed verification request",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		payment, err := paymentService.VerifyPayment(ctx, event.TransactionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || domain.IsValidation(err) {
				logger.Warn("Dropping verification request",
					zap.String("transaction_id", event.TransactionID),
					zap.Error(err),
				)
				return nil
			}
			return fmt.Errorf("failed to verify transaction %s: %w", event.TransactionID, err)
		}

		logger.Info("Verification request processed",
			zap.String("transaction_id", event.TransactionID),
			zap.String("status", string(payment.Status)),
		)
		return nil
	}
}
