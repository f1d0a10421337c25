package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeSource struct {
	price decimal.Decimal
	err   error
}

func (f *fakeSource) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.price, nil
}

func TestPollerAppliesMarkup(t *testing.T) {
	src := &fakeSource{price: decimal.RequireFromString("5.00")}
	p := NewPoller(src, time.Second, 1.0)

	p.RefreshOnce(context.Background())
	tick, ok := p.Latest()
	if !ok {
		t.Fatalf("no tick after successful refresh")
	}
	if !tick.BasePrice.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("base price = %s, want 5.00", tick.BasePrice)
	}
	if !tick.ClientPrice.Equal(decimal.RequireFromString("5.05")) {
		t.Fatalf("client price = %s, want 5.05", tick.ClientPrice)
	}
	if tick.Stale {
		t.Fatalf("fresh tick flagged stale")
	}
}

func TestPollerKeepsLastTickOnFailure(t *testing.T) {
	src := &fakeSource{price: decimal.RequireFromString("5.20")}
	p := NewPoller(src, time.Second, 1.0)

	p.RefreshOnce(context.Background())

	src.err = errors.New("upstream down")
	p.RefreshOnce(context.Background())

	tick, ok := p.Latest()
	if !ok {
		t.Fatalf("tick lost after upstream failure")
	}
	if !tick.Stale {
		t.Fatalf("tick should be flagged stale after failed refresh")
	}
	if tick.ClientPrice.IsZero() {
		t.Fatalf("stale tick must keep its price, got zero")
	}

	// Recovery clears the stale flag.
	src.err = nil
	p.RefreshOnce(context.Background())
	tick, _ = p.Latest()
	if tick.Stale {
		t.Fatalf("tick still stale after recovery")
	}
}

func TestPollerNeverPublishesBeforeFirstFetch(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	p := NewPoller(src, time.Second, 1.0)

	p.RefreshOnce(context.Background())
	if _, ok := p.Latest(); ok {
		t.Fatalf("poller published a tick with no successful fetch")
	}
}
