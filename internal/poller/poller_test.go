package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type VerifierMock struct {
	mock.Mock
	calls atomic.Int32
}

func (m *VerifierMock) VerifyStalePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	m.calls.Add(1)
	args := m.Called(ctx, olderThan, limit)
	return args.Int(0), args.Error(1)
}

func TestPoller_Tick(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	v := new(VerifierMock)
	v.On("VerifyStalePending", mock.Anything, now.Add(-10*time.Minute), 25).Return(3, nil).Once()
	v.On("VerifyStalePending", mock.Anything, now.Add(-10*time.Minute), 25).Return(0, errors.New("db down")).Once()

	p := New(v, time.Minute, 10*time.Minute, 25, zap.NewNop())
	p.now = func() time.Time { return now }

	require.Equal(t, 3, p.Tick(context.Background()))
	require.Equal(t, 0, p.Tick(context.Background()))
	v.AssertExpectations(t)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	v := new(VerifierMock)
	v.On("VerifyStalePending", mock.Anything, mock.Anything, 50).Return(0, nil)

	p := New(v, 5*time.Millisecond, time.Minute, 0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return v.calls.Load() > 0
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
