package realtime

import "github.com/egonjunior/tkb-asset-otc-sub000/internal/models"

// OrderView is the locally-held projection a subscriber keeps in sync.
type OrderView struct {
	OrderID      string
	Status       models.OrderStatus
	ReceiptCount int

	seen     map[string]struct{}
	receipts map[string]struct{}
}

func NewOrderView(orderID string, status models.OrderStatus, receiptCount int) *OrderView {
	return &OrderView{
		OrderID:      orderID,
		Status:       status,
		ReceiptCount: receiptCount,
		seen:         map[string]struct{}{},
		receipts:     map[string]struct{}{},
	}
}

// Merge applies a change event to the view. Re-applying a known event is a
// no-op, so duplicated or redelivered events cannot inflate counters or
// append twice. Returns whether the view changed.
func Merge(view *OrderView, ev ChangeEvent) bool {
	if ev.OrderID != view.OrderID {
		return false
	}
	if _, ok := view.seen[ev.EventID]; ok {
		return false
	}
	view.seen[ev.EventID] = struct{}{}

	switch ev.Kind {
	case ChangeOrderStatus:
		if ev.Status == "" || ev.Status == view.Status {
			return false
		}
		view.Status = ev.Status
		return true
	case ChangeReceiptAdded:
		if ev.ReceiptID == "" {
			return false
		}
		if _, ok := view.receipts[ev.ReceiptID]; ok {
			return false
		}
		view.receipts[ev.ReceiptID] = struct{}{}
		view.ReceiptCount++
		return true
	case ChangeTimelineEvent:
		return true
	default:
		return false
	}
}
