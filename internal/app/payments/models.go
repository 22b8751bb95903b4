package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"billing/internal/domain"
)

type CreatePaymentRequest struct {
	PayerID             string               `json:"payerId" validate:"required"`
	StudentID           string               `json:"studentId" validate:"required"`
	Amount              decimal.Decimal      `json:"amount"`
	PaymentMethod       domain.PaymentMethod `json:"paymentMethod" validate:"required,payment_method"`
	PhoneNumber         string               `json:"phoneNumber" validate:"required_if=PaymentMethod mobile_money,omitempty,phone"`
	MobileMoneyProvider string               `json:"mobileMoneyProvider" validate:"required_if=PaymentMethod mobile_money,omitempty,provider"`
	Trimester           domain.Trimester     `json:"trimester" validate:"required,trimester"`
	AcademicYear        string               `json:"academicYear" validate:"omitempty,academic_year"`
	DueDate             *time.Time           `json:"dueDate"`
	Description         string               `json:"description" validate:"max=255"`
	Notes               string               `json:"notes" validate:"max=1000"`
}

type CreatePaymentResponse struct {
	Payment    *domain.Payment `json:"payment"`
	PaymentURL string          `json:"paymentUrl,omitempty"`
	USSDCode   string          `json:"ussdCode,omitempty"`
}

// WebhookRequest is the aggregator callback body.
type WebhookRequest struct {
	TransactionID string          `json:"transactionId" validate:"required"`
	Status        string          `json:"status" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Provider      string          `json:"provider"`
}

type BeneficiaryRequest struct {
	StudentID    string              `json:"studentId" validate:"required"`
	Relationship domain.Relationship `json:"relationship" validate:"required,relationship"`
}

type CreateAccountRequest struct {
	PayerID        string                      `json:"payerId" validate:"required"`
	SchoolID       string                      `json:"schoolId"`
	TotalAmountDue decimal.Decimal             `json:"totalAmountDue"`
	PaymentStatus  domain.AccountPaymentStatus `json:"paymentStatus" validate:"omitempty,oneof=pending exempted"`
	Beneficiaries  []BeneficiaryRequest        `json:"beneficiaries" validate:"dive"`
}
