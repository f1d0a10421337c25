package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type ExpirySource interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Watcher drives the timer side of the order lifecycle: each tick expires
// every pending order whose payment window elapsed. The transition itself is
// guarded in the store, so a receipt racing the timer wins and the watcher
// does nothing further for that order.
type Watcher struct {
	Orders   ExpirySource
	Interval time.Duration
}

// Run ticks until ctx is cancelled; cancellation is the stop handle.
func (w *Watcher) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := w.Orders.ExpireDue(ctx); err != nil {
			zap.L().Error("expiry sweep failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("orders expired", zap.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
