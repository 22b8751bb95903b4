package poller

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Verifier is the slice of the payment service the poller drives.
type Verifier interface {
	VerifyStalePending(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// Poller periodically asks providers about mobile-money attempts whose
// webhook never arrived.
type Poller struct {
	verifier  Verifier
	interval  time.Duration
	minAge    time.Duration
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

func New(verifier Verifier, interval, minAge time.Duration, batchSize int, logger *zap.Logger) *Poller {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Poller{
		verifier:  verifier,
		interval:  interval,
		minAge:    minAge,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Starting pending payment poller",
		zap.Duration("interval", p.interval),
		zap.Duration("min_age", p.minAge),
	)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Pending payment poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

func (p *Poller) Tick(ctx context.Context) int {
	settled, err := p.verifier.VerifyStalePending(ctx, p.now().Add(-p.minAge), p.batchSize)
	if err != nil {
		p.logger.Error("Pending payment sweep failed", zap.Error(err))
		return 0
	}
	if settled > 0 {
		p.logger.Info("Pending payments settled by poller", zap.Int("count", settled))
	}
	return settled
}
