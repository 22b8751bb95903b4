package accounts_repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"billing/internal/domain"
)

type AccountRepository interface {
	CreateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error
	GetAccountTx(ctx context.Context, querier domain.Querier, payerID string) (*domain.Account, error)
	// GetAccountForUpdateTx locks the account row until the surrounding transaction ends.
	GetAccountForUpdateTx(ctx context.Context, querier domain.Querier, payerID string) (*domain.Account, error)
	CreditTx(ctx context.Context, querier domain.Querier, payerID string, amount decimal.Decimal, paidAt time.Time) error
	SetAggregatesTx(ctx context.Context, querier domain.Querier, payerID string, agg domain.Aggregates, status domain.AccountPaymentStatus) error
	AddBeneficiaryTx(ctx context.Context, querier domain.Querier, payerID string, beneficiary domain.Beneficiary) error
}
