package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentSettledEvent is published when a payment reaches completed or failed.
type PaymentSettledEvent struct {
	PaymentID     string          `json:"payment_id"`
	TransactionID string          `json:"transaction_id"`
	PayerID       string          `json:"payer_id"`
	StudentID     string          `json:"student_id"`
	SchoolID      string          `json:"school_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Method        PaymentMethod   `json:"payment_method"`
	Trimester     Trimester       `json:"trimester"`
	AcademicYear  string          `json:"academic_year"`
	Status        PaymentStatus   `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

// VerificationRequestedEvent asks the service to pull the provider status of a transaction.
type VerificationRequestedEvent struct {
	TransactionID string `json:"transaction_id"`
}
