package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
)

type ChangeKind string

const (
	ChangeOrderStatus   ChangeKind = "order_status"
	ChangeReceiptAdded  ChangeKind = "receipt_added"
	ChangeTimelineEvent ChangeKind = "timeline_event"
)

// ChangeEvent is one backend change pushed to subscribed order views.
// Delivery may duplicate, reorder, or drop; consumers merge idempotently.
type ChangeEvent struct {
	EventID   string             `json:"eventId"`
	OrderID   string             `json:"orderId"`
	Kind      ChangeKind         `json:"kind"`
	Status    models.OrderStatus `json:"status,omitempty"`
	ReceiptID string             `json:"receiptId,omitempty"`
	At        time.Time          `json:"at"`
}

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// Hub fans change events out to websocket subscribers keyed by order id.
// Each connection gets a buffered send channel drained by one writer
// goroutine, so multiple publishers never touch the same websocket write.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*websocket.Conn]chan ChangeEvent
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[*websocket.Conn]chan ChangeEvent{}}
}

func (h *Hub) Subscribe(orderID string, conn *websocket.Conn) {
	ch := make(chan ChangeEvent, sendBuffer)

	h.mu.Lock()
	if h.subs[orderID] == nil {
		h.subs[orderID] = map[*websocket.Conn]chan ChangeEvent{}
	}
	h.subs[orderID][conn] = ch
	h.mu.Unlock()

	go h.writeLoop(orderID, conn, ch)
}

// Unsubscribe detaches the connection and stops its writer. Safe to call
// more than once.
func (h *Hub) Unsubscribe(orderID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[orderID]
	if !ok {
		return
	}
	if ch, ok := set[conn]; ok {
		delete(set, conn)
		close(ch)
	}
	if len(set) == 0 {
		delete(h.subs, orderID)
	}
}

// Publish queues the event for every subscriber of its order. A subscriber
// whose buffer is full misses the event; the client reconciles by refetching
// and the merge is idempotent anyway.
func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[ev.OrderID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) writeLoop(orderID string, conn *websocket.Conn, ch chan ChangeEvent) {
	for ev := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			zap.L().Debug("realtime write failed, dropping subscriber",
				zap.String("order_id", orderID),
				zap.Error(err))
			h.Unsubscribe(orderID, conn)
			_ = conn.Close()
			break
		}
	}
	// Unsubscribe closed the channel; discard anything queued after the
	// failure so pending publishers are not blocked on cleanup order.
	for range ch {
	}
}
