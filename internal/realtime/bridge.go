package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// notifyChannel carries change events between processes: the worker NOTIFYs,
// the api LISTENs and forwards into its hub.
const notifyChannel = "order_events"

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGPublisher satisfies the service Publisher interface for processes that do
// not own a websocket hub. Events ride Postgres NOTIFY; a lost notification
// is acceptable for the same reason a dropped hub write is.
type PGPublisher struct {
	DB execer
}

func (p *PGPublisher) Publish(ev ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		zap.L().Error("realtime event marshal failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := p.DB.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		zap.L().Warn("realtime notify failed",
			zap.String("order_id", ev.OrderID),
			zap.Error(err))
	}
}

func decodeNotification(payload string) (ChangeEvent, bool) {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.OrderID == "" {
		return ChangeEvent{}, false
	}
	return ev, true
}

// Listen holds a dedicated connection on the notify channel and republishes
// every decoded event into the hub, reconnecting until ctx is cancelled.
func Listen(ctx context.Context, pool *pgxpool.Pool, hub *Hub) {
	for ctx.Err() == nil {
		if err := listenOnce(ctx, pool, hub); err != nil && ctx.Err() == nil {
			zap.L().Warn("realtime listener lost connection", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, hub *Hub) error {
	acquired, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	// The subscription must not leak back into the pool with the connection.
	conn := acquired.Hijack()
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		return err
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if ev, ok := decodeNotification(n.Payload); ok {
			hub.Publish(ev)
		}
	}
}
