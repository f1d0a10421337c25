package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSource struct {
	calls atomic.Int64
}

func (c *countingSource) ExpireDue(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestWatcherTicksUntilCancelled(t *testing.T) {
	src := &countingSource{}
	w := &Watcher{Orders: src, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for src.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("watcher made only %d sweeps", src.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("watcher did not stop after cancel")
	}
}
