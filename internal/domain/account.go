package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountPaymentStatus string

const (
	AccountStatusPaid     AccountPaymentStatus = "paid"
	AccountStatusPending  AccountPaymentStatus = "pending"
	AccountStatusOverdue  AccountPaymentStatus = "overdue"
	AccountStatusExempted AccountPaymentStatus = "exempted"
)

type Relationship string

const (
	RelationshipFather   Relationship = "father"
	RelationshipMother   Relationship = "mother"
	RelationshipGuardian Relationship = "guardian"
	RelationshipOther    Relationship = "other"
)

type Beneficiary struct {
	StudentID    string       `json:"studentId"`
	Relationship Relationship `json:"relationship"`
}

// Account is the payer aggregate. AmountPaid and LastPaymentDate are a cache
// over the payer's completed payments.
type Account struct {
	ID              string               `json:"id"`
	SchoolID        string               `json:"schoolId,omitempty"`
	PaymentStatus   AccountPaymentStatus `json:"paymentStatus"`
	TotalAmountDue  decimal.Decimal      `json:"totalAmountDue"`
	AmountPaid      decimal.Decimal      `json:"amountPaid"`
	LastPaymentDate *time.Time           `json:"lastPaymentDate,omitempty"`
	Beneficiaries   []Beneficiary        `json:"beneficiaries"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func (a *Account) HasBeneficiary(studentID string) bool {
	for _, b := range a.Beneficiaries {
		if b.StudentID == studentID {
			return true
		}
	}
	return false
}

// Aggregates is the recomputed view of an account derived from its completed payments.
type Aggregates struct {
	AmountPaid      decimal.Decimal
	LastPaymentDate *time.Time
	Completed       int
}

// ResolveStatus returns the payment status the account should carry after a repair.
func (a *Account) ResolveStatus(agg Aggregates) AccountPaymentStatus {
	if a.PaymentStatus == AccountStatusExempted {
		return AccountStatusExempted
	}
	if agg.Completed > 0 {
		return AccountStatusPaid
	}
	if a.PaymentStatus == AccountStatusPaid {
		return AccountStatusPending
	}
	return a.PaymentStatus
}

type Student struct {
	ID        string `json:"id"`
	SchoolID  string `json:"schoolId,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
