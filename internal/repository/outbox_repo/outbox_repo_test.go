package outbox_repo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"billing/internal/domain"
)

func TestOutboxRepository_GetPendingMessages(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(domain.OutboxStatusPending, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "aggregate_id", "message_type", "topic", "key_value", "payload", "status", "created_at", "sent_at",
		}).AddRow("m1", "p1", domain.MessageTypePaymentCompleted, "payment_settlements", "SBX-MTN-1", []byte(`{}`), "PENDING", now, nil))

	repo := NewOutboxRepository(db)
	messages, err := repo.GetPendingMessages(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "SBX-MTN-1", messages[0].Key)
	require.Equal(t, "payment_settlements", messages[0].Topic)
	require.Nil(t, messages[0].SentAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_UpdateMessageStatusTx(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_messages")).
		WithArgs(domain.OutboxStatusSent, sqlmock.AnyArg(), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_messages")).
		WithArgs(domain.OutboxStatusSent, sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewOutboxRepository(db)
	require.NoError(t, repo.UpdateMessageStatusTx(ctx, db, "m1", domain.OutboxStatusSent))
	require.ErrorIs(t, repo.UpdateMessageStatusTx(ctx, db, "ghost", domain.OutboxStatusSent), domain.ErrNotFound)
}

func TestMemoryRepository_PendingLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Now().UTC()

	for i, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, repo.CreateMessageTx(ctx, nil, &domain.OutboxMessage{
			ID:        id,
			Status:    domain.OutboxStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	pending, err := repo.GetPendingMessages(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "m1", pending[0].ID)

	require.NoError(t, repo.UpdateMessageStatusTx(ctx, nil, "m1", domain.OutboxStatusSent))

	pending, err = repo.GetPendingMessages(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "m2", pending[0].ID)

	all := repo.Messages()
	require.Equal(t, domain.OutboxStatusSent, all[0].Status)
	require.NotNil(t, all[0].SentAt)
}
