package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"billing/internal/domain"
	"billing/internal/infrastructure/database"
	"billing/internal/repository/outbox_repo"
)

type produced struct {
	key   string
	topic string
}

type fakeProducer struct {
	mu      sync.Mutex
	fail    map[string]bool
	written []produced
}

func (f *fakeProducer) Produce(_ context.Context, key, topic string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[key] {
		return errors.New("broker down")
	}
	f.written = append(f.written, produced{key: key, topic: topic})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func seed(t *testing.T, repo *outbox_repo.MemoryRepository, id, key, topic string) {
	t.Helper()
	require.NoError(t, repo.CreateMessageTx(context.Background(), nil, &domain.OutboxMessage{
		ID:          id,
		AggregateID: "payment-" + id,
		MessageType: domain.MessageTypePaymentCompleted,
		Topic:       topic,
		Key:         key,
		Payload:     []byte(`{}`),
		Status:      domain.OutboxStatusPending,
		CreatedAt:   time.Now().Add(time.Duration(len(repo.Messages())) * time.Second),
	}))
}

func statusOf(repo *outbox_repo.MemoryRepository, id string) domain.OutboxMessageStatus {
	for _, m := range repo.Messages() {
		if m.ID == id {
			return m.Status
		}
	}
	return ""
}

func TestProcessor_ProcessBatch(t *testing.T) {
	repo := outbox_repo.NewMemoryRepository()
	seed(t, repo, "m1", "SBX-MTN-1", "payment_settlements")
	seed(t, repo, "m2", "SBX-MTN-2", "")
	seed(t, repo, "m3", "SBX-MTN-3", "payment_settlements")

	producer := &fakeProducer{fail: map[string]bool{"SBX-MTN-3": true}}
	p := NewProcessor(database.NewMemoryTxRunner(), repo, producer, "fallback_topic", time.Hour, time.Second, zap.NewNop())

	require.Equal(t, 2, p.ProcessBatch(context.Background()))
	require.Equal(t, []produced{
		{key: "SBX-MTN-1", topic: "payment_settlements"},
		{key: "SBX-MTN-2", topic: "fallback_topic"},
	}, producer.written)
	require.Equal(t, domain.OutboxStatusSent, statusOf(repo, "m1"))
	require.Equal(t, domain.OutboxStatusSent, statusOf(repo, "m2"))
	require.Equal(t, domain.OutboxStatusPending, statusOf(repo, "m3"))

	// The failed message is retried on the next batch.
	delete(producer.fail, "SBX-MTN-3")
	require.Equal(t, 1, p.ProcessBatch(context.Background()))
	require.Equal(t, domain.OutboxStatusSent, statusOf(repo, "m3"))
	require.Equal(t, 0, p.ProcessBatch(context.Background()))
}

func TestProcessor_StartAndStop(t *testing.T) {
	repo := outbox_repo.NewMemoryRepository()
	seed(t, repo, "m1", "SBX-MTN-1", "payment_settlements")
	producer := &fakeProducer{}
	p := NewProcessor(database.NewMemoryTxRunner(), repo, producer, "payment_settlements", 5*time.Millisecond, time.Second, zap.NewNop())

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return producer.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}
