package payments_repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"billing/internal/domain"
)

type PaymentRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error)
	GetByTransactionIDTx(ctx context.Context, querier domain.Querier, transactionID string) (*domain.Payment, error)
	// AppendNoteTx adds an operator note without touching status or amounts.
	AppendNoteTx(ctx context.Context, querier domain.Querier, transactionID, note string) error
	// TransitionTx moves the payment from one status to another only if it is
	// still in `from`. applied is false when another writer got there first.
	TransitionTx(ctx context.Context, querier domain.Querier, transactionID string, from, to domain.PaymentStatus, amountPaid decimal.Decimal, paidDate *time.Time) (applied bool, err error)
	LatestCompletedTx(ctx context.Context, querier domain.Querier, payerID, studentID string) (*domain.Payment, error)
	ListByPayerTx(ctx context.Context, querier domain.Querier, payerID string) ([]domain.Payment, error)
	SumCompletedTx(ctx context.Context, querier domain.Querier, payerID string) (domain.Aggregates, error)
	ListStalePendingTx(ctx context.Context, querier domain.Querier, olderThan time.Time, limit int) ([]domain.Payment, error)
}
