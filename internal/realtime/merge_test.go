package realtime

import (
	"testing"
	"time"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
)

func TestMergeIdempotent(t *testing.T) {
	view := NewOrderView("ord-1", models.OrderPending, 0)

	status := ChangeEvent{
		EventID: "ev-1",
		OrderID: "ord-1",
		Kind:    ChangeOrderStatus,
		Status:  models.OrderPaid,
		At:      time.Now(),
	}
	if !Merge(view, status) {
		t.Fatalf("first status merge should change the view")
	}
	if view.Status != models.OrderPaid {
		t.Fatalf("status = %s, want paid", view.Status)
	}
	if Merge(view, status) {
		t.Fatalf("replayed status event must be a no-op")
	}

	receipt := ChangeEvent{
		EventID:   "ev-2",
		OrderID:   "ord-1",
		Kind:      ChangeReceiptAdded,
		ReceiptID: "rcpt-1",
		At:        time.Now(),
	}
	if !Merge(view, receipt) {
		t.Fatalf("first receipt merge should change the view")
	}
	if view.ReceiptCount != 1 {
		t.Fatalf("receipt count = %d, want 1", view.ReceiptCount)
	}
	if Merge(view, receipt) {
		t.Fatalf("replayed receipt event must be a no-op")
	}
	if view.ReceiptCount != 1 {
		t.Fatalf("receipt count after replay = %d, want 1", view.ReceiptCount)
	}

	// Same receipt delivered under a new event id still cannot double-count.
	dup := receipt
	dup.EventID = "ev-3"
	if Merge(view, dup) {
		t.Fatalf("known receipt under fresh event id must be a no-op")
	}
	if view.ReceiptCount != 1 {
		t.Fatalf("receipt count = %d, want 1", view.ReceiptCount)
	}
}

func TestMergeIgnoresOtherOrders(t *testing.T) {
	view := NewOrderView("ord-1", models.OrderPending, 0)
	ev := ChangeEvent{EventID: "ev-9", OrderID: "ord-2", Kind: ChangeOrderStatus, Status: models.OrderPaid}
	if Merge(view, ev) {
		t.Fatalf("event for another order must not apply")
	}
	if view.Status != models.OrderPending {
		t.Fatalf("status mutated by foreign event")
	}
}
