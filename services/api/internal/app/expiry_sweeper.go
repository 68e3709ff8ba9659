package app

import (
	"context"
	"time"

	"github.com/cimillas/checkout-ledger/services/api/internal/clock"
	"github.com/cimillas/checkout-ledger/services/api/internal/domain"
	"github.com/cimillas/checkout-ledger/services/api/internal/events"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepBatch    = 100
)

type ExpiryRepository interface {
	// ExpireStaleOrders moves up to limit pending orders whose window closed at
	// or before now to expired and returns them.
	ExpireStaleOrders(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)
}

// ExpirySweeper expires lapsed pending orders in the background so they do not
// wait for someone to touch them.
type ExpirySweeper struct {
	repo     ExpiryRepository
	clock    clock.Clock
	interval time.Duration
	batch    int
	options
}

func NewExpirySweeper(repo ExpiryRepository, clk clock.Clock, interval time.Duration, batch int, opts ...Option) *ExpirySweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &ExpirySweeper{
		repo:     repo,
		clock:    clk,
		interval: interval,
		batch:    batch,
		options:  newOptions(opts),
	}
}

// SweepOnce expires batches until one comes back short, and returns how many
// orders it expired.
func (w *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		now := w.clock.Now()
		expired, err := w.repo.ExpireStaleOrders(ctx, now, w.batch)
		if err != nil {
			return total, err
		}
		for _, o := range expired {
			w.publish(ctx, orderEvent(events.TypeOrderExpired, o, now))
		}
		total += len(expired)
		if len(expired) < w.batch {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	w.logger.Info("expiry sweeper started", zap.Duration("interval", w.interval), zap.Int("batch", w.batch))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := w.SweepOnce(ctx)
			if err != nil && ctx.Err() == nil {
				w.logger.Error("expiry sweep failed", zap.Int("expired", n), zap.Error(err))
				continue
			}
			if n > 0 {
				w.logger.Info("expired stale orders", zap.Int("count", n))
			}
		}
	}
}
