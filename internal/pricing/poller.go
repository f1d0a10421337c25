package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
)

// Source is the upstream ticker the poller consumes.
type Source interface {
	FetchPrice(ctx context.Context) (decimal.Decimal, error)
}

// Poller refreshes the USDT/BRL tick on a fixed interval and derives the
// client-facing price by applying the configured markup. On a fetch failure
// the last-known tick is kept and flagged stale; a zero price is never
// published.
type Poller struct {
	source   Source
	interval time.Duration
	markup   decimal.Decimal
	now      func() time.Time

	mu   sync.RWMutex
	tick models.PriceTick
	ok   bool
}

func NewPoller(source Source, interval time.Duration, markupPercent float64) *Poller {
	return &Poller{
		source:   source,
		interval: interval,
		markup:   decimal.NewFromFloat(markupPercent).Div(decimal.NewFromInt(100)),
		now:      time.Now,
	}
}

func (p *Poller) Run(ctx context.Context) {
	p.RefreshOnce(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RefreshOnce(ctx)
		}
	}
}

func (p *Poller) RefreshOnce(ctx context.Context) {
	base, err := p.source.FetchPrice(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		if p.ok {
			p.tick.Stale = true
		}
		zap.L().Warn("price fetch failed, keeping last tick", zap.Error(err))
		return
	}

	p.tick = models.PriceTick{
		BasePrice:   base,
		ClientPrice: base.Mul(decimal.NewFromInt(1).Add(p.markup)).Round(4),
		ObservedAt:  p.now().UTC(),
	}
	p.ok = true
}

// Latest returns the most recent tick. ok is false until the first
// successful fetch.
func (p *Poller) Latest() (models.PriceTick, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tick, p.ok
}
