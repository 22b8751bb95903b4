package payments_repo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"billing/internal/domain"
)

func seedPayment(t *testing.T, repo *MemoryRepository, txID string, status domain.PaymentStatus, paid *time.Time) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateTx(context.Background(), nil, &domain.Payment{
		ID:            "id-" + txID,
		TransactionID: txID,
		PayerID:       "parent-1",
		StudentID:     "student-1",
		Amount:        decimal.NewFromInt(10000),
		AmountPaid:    decimal.NewFromInt(10000),
		Method:        domain.PaymentMethodMobileMoney,
		Status:        status,
		PaidDate:      paid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
}

func TestMemoryRepository_DuplicateTransaction(t *testing.T) {
	repo := NewMemoryRepository()
	seedPayment(t, repo, "TX-1", domain.PaymentStatusPending, nil)

	err := repo.CreateTx(context.Background(), nil, &domain.Payment{ID: "other", TransactionID: "TX-1"})
	require.ErrorIs(t, err, domain.ErrDuplicateTransaction)
}

func TestMemoryRepository_TransitionIsConditional(t *testing.T) {
	repo := NewMemoryRepository()
	seedPayment(t, repo, "TX-1", domain.PaymentStatusPending, nil)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now().UTC()
			applied, err := repo.TransitionTx(context.Background(), nil, "TX-1",
				domain.PaymentStatusPending, domain.PaymentStatusCompleted, decimal.NewFromInt(10000), &now)
			require.NoError(t, err)
			if applied {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins)
	p, err := repo.GetByTransactionIDTx(context.Background(), nil, "TX-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusCompleted, p.Status)
	require.NotNil(t, p.PaidDate)
}

func TestMemoryRepository_LatestCompletedAndSum(t *testing.T) {
	repo := NewMemoryRepository()
	older := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	seedPayment(t, repo, "TX-OLD", domain.PaymentStatusCompleted, &older)
	seedPayment(t, repo, "TX-NEW", domain.PaymentStatusCompleted, &newer)
	seedPayment(t, repo, "TX-PENDING", domain.PaymentStatusPending, nil)

	latest, err := repo.LatestCompletedTx(context.Background(), nil, "parent-1", "student-1")
	require.NoError(t, err)
	require.Equal(t, "TX-NEW", latest.TransactionID)

	_, err = repo.LatestCompletedTx(context.Background(), nil, "parent-1", "student-2")
	require.ErrorIs(t, err, domain.ErrNotFound)

	agg, err := repo.SumCompletedTx(context.Background(), nil, "parent-1")
	require.NoError(t, err)
	require.Equal(t, 2, agg.Completed)
	require.True(t, agg.AmountPaid.Equal(decimal.NewFromInt(20000)))
	require.True(t, agg.LastPaymentDate.Equal(newer))

	stale, err := repo.ListStalePendingTx(context.Background(), nil, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "TX-PENDING", stale[0].TransactionID)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	seedPayment(t, repo, "TX-1", domain.PaymentStatusPending, nil)

	p, err := repo.GetByTransactionIDTx(context.Background(), nil, "TX-1")
	require.NoError(t, err)
	p.Status = domain.PaymentStatusFailed

	again, err := repo.GetByTransactionIDTx(context.Background(), nil, "TX-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, again.Status)
}

func TestMemoryRepository_AppendNote(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	seedPayment(t, repo, "TX-1", domain.PaymentStatusFailed, nil)

	require.NoError(t, repo.AppendNoteTx(ctx, nil, "TX-1", "first"))
	require.NoError(t, repo.AppendNoteTx(ctx, nil, "TX-1", "second"))

	p, err := repo.GetByTransactionIDTx(ctx, nil, "TX-1")
	require.NoError(t, err)
	require.Equal(t, "first\nsecond", p.Notes)
	require.Equal(t, domain.PaymentStatusFailed, p.Status)

	err = repo.AppendNoteTx(ctx, nil, "TX-404", "lost")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}
