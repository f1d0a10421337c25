package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderExpired    OrderStatus = "expired"
	OrderRejected   OrderStatus = "rejected"
	OrderCancelled  OrderStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transition may occur.
// An expired order can still be reopened by an explicit admin action.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderCompleted, OrderExpired, OrderRejected, OrderCancelled:
		return true
	}
	return false
}

type Network string

const (
	NetworkTRC20   Network = "TRC20"
	NetworkERC20   Network = "ERC20"
	NetworkBEP20   Network = "BEP20"
	NetworkPolygon Network = "POLYGON"
)

type PriceTick struct {
	BasePrice   decimal.Decimal
	ClientPrice decimal.Decimal
	ObservedAt  time.Time
	Stale       bool
}

type PriceLock struct {
	LockID      string
	LockedPrice decimal.Decimal
	LockedAt    time.Time
	Duration    time.Duration
}

type Order struct {
	OrderID       string
	UserID        string
	Amount        decimal.Decimal
	Network       Network
	WalletAddress string
	LockedPrice   decimal.Decimal
	Total         decimal.Decimal
	Status        OrderStatus
	LockedAt      time.Time
	TxHash        *string
	ReceiptURL    *string
	HashViewedAt  *time.Time
	HashViewCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderReceipt struct {
	ReceiptID  string
	OrderID    string
	FileURL    string
	FileName   string
	UploadedAt time.Time
	UploadedBy string
}

type EventType string

const (
	EventOrderExpired     EventType = "order_expired"
	EventReceiptUploaded  EventType = "receipt_uploaded"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventUSDTSent         EventType = "usdt_sent"
	EventPaymentRejected  EventType = "payment_rejected"
	EventHashViewed       EventType = "hash_viewed"
)

type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAdmin  ActorType = "admin"
	ActorSystem ActorType = "system"
)

type TimelineEvent struct {
	EventID   string
	OrderID   string
	EventType EventType
	Message   string
	ActorType ActorType
	Metadata  map[string]string
	CreatedAt time.Time
}
