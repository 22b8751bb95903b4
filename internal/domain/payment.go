package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether the reconciler may no longer move the payment.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

type PaymentMethod string

const (
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// IsDirect reports whether the method settles at creation time.
func (m PaymentMethod) IsDirect() bool {
	return m == PaymentMethodCash || m == PaymentMethodBankTransfer
}

type Trimester string

const (
	TrimesterFirst  Trimester = "first"
	TrimesterSecond Trimester = "second"
	TrimesterThird  Trimester = "third"
	TrimesterAnnual Trimester = "annual"
)

type Payment struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	PayerID       string          `json:"payerId"`
	StudentID     string          `json:"studentId"`
	SchoolID      string          `json:"schoolId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	Method        PaymentMethod   `json:"paymentMethod"`
	Provider      string          `json:"mobileMoneyProvider,omitempty"`
	PhoneNumber   string          `json:"phoneNumber,omitempty"`
	Trimester     Trimester       `json:"trimester"`
	AcademicYear  string          `json:"academicYear"`
	Status        PaymentStatus   `json:"status"`
	Description   string          `json:"description,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	DueDate       time.Time       `json:"dueDate"`
	PaidDate      *time.Time      `json:"paidDate,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// AcademicYearFor returns the "YYYY-YYYY" label of the school year containing t.
// School years start in September.
func AcademicYearFor(t time.Time) string {
	start := t.Year()
	if t.Month() < time.September {
		start--
	}
	return fmt.Sprintf("%d-%d", start, start+1)
}
