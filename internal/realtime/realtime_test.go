package realtime

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialSubscriber(t *testing.T, hub *Hub, orderID string) *websocket.Conn {
	t.Helper()
	subscribed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Subscribe(orderID, conn)
		close(subscribed)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber never registered")
	}
	return client
}

func TestPublishConcurrentWriters(t *testing.T) {
	hub := NewHub()
	client := dialSubscriber(t, hub, "order-1")

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				hub.Publish(ChangeEvent{
					EventID: fmt.Sprintf("%d-%d", n, j),
					OrderID: "order-1",
					Kind:    ChangeOrderStatus,
				})
			}
		}(i)
	}
	wg.Wait()

	// A slow subscriber may miss events, but every frame that arrives must
	// be an intact event for the subscribed order.
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := 0
	for {
		var ev ChangeEvent
		if err := client.ReadJSON(&ev); err != nil {
			break
		}
		if ev.OrderID != "order-1" || ev.Kind != ChangeOrderStatus {
			t.Fatalf("corrupt event: %+v", ev)
		}
		got++
	}
	if got == 0 {
		t.Fatalf("no events delivered")
	}
}

func TestPublishToForeignOrderNotDelivered(t *testing.T) {
	hub := NewHub()
	client := dialSubscriber(t, hub, "order-1")

	hub.Publish(ChangeEvent{EventID: "x", OrderID: "order-2", Kind: ChangeOrderStatus})

	_ = client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var ev ChangeEvent
	if err := client.ReadJSON(&ev); err == nil {
		t.Fatalf("received event for a different order: %+v", ev)
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	hub := NewHub()
	client := dialSubscriber(t, hub, "order-1")
	_ = client

	hub.mu.RLock()
	var conn *websocket.Conn
	for c := range hub.subs["order-1"] {
		conn = c
	}
	hub.mu.RUnlock()

	hub.Unsubscribe("order-1", conn)
	hub.Unsubscribe("order-1", conn)

	// Publishing after unsubscribe must not panic or deliver.
	hub.Publish(ChangeEvent{EventID: "y", OrderID: "order-1", Kind: ChangeOrderStatus})
}
