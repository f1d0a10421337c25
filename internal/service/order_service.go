package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/notify"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/pricelock"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/realtime"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/store"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/txhash"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/wallet"
)

var (
	ErrMissingUser        = errors.New("missing user id")
	ErrAmountBelowMinimum = errors.New("amount below minimum")
	ErrUnknownNetwork     = errors.New("unknown network")
	ErrOrderNotFound      = errors.New("order not found")
	ErrNoReceipts         = errors.New("order has no receipts")
	ErrInvalidHash        = errors.New("invalid transaction hash")
	ErrInvalidTransition  = errors.New("order is not in a state that allows this action")
)

var allowedNetworks = map[models.Network]struct{}{
	models.NetworkTRC20:   {},
	models.NetworkERC20:   {},
	models.NetworkBEP20:   {},
	models.NetworkPolygon: {},
}

// Store is the slice of persistence the state machine needs.
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error)
	UpdateStatusIf(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus) (bool, error)
	CompleteWithHash(ctx context.Context, orderID, hash string) (bool, error)
	MarkHashViewed(ctx context.Context, orderID string, viewedAt time.Time) (bool, error)
	ExpireDue(ctx context.Context, cutoff time.Time) ([]string, error)
	CountReceipts(ctx context.Context, orderID string) (int, error)
	ListReceipts(ctx context.Context, orderID string) ([]*models.OrderReceipt, error)
	AppendTimeline(ctx context.Context, event *models.TimelineEvent) error
	ListTimeline(ctx context.Context, orderID string) ([]*models.TimelineEvent, error)
	GetProfileEmail(ctx context.Context, userID string) (string, error)
	GetAuthEmail(ctx context.Context, userID string) (string, error)
}

type Notifier interface {
	Send(ctx context.Context, template, to string, data map[string]string)
}

type Publisher interface {
	Publish(ev realtime.ChangeEvent)
}

// OrderService owns the order status progression and its guards. Every
// transition is an optimistic update keyed on the expected pre-state, so
// racing actors (admin sessions, the expiry watcher, a landing receipt)
// cannot clobber each other.
type OrderService struct {
	Store         Store
	Locks         *pricelock.Manager
	Notifier      Notifier
	Realtime      Publisher
	MinAmount     decimal.Decimal
	PaymentWindow time.Duration
	OperatorEmail string
	Now           func() time.Time
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateOrder opens a pending order against an unexpired price lock. The
// total is computed once here and never recomputed: the price is frozen.
func (s *OrderService) CreateOrder(ctx context.Context, userID, lockID string, amount decimal.Decimal, network models.Network, walletAddr string) (*models.Order, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if amount.LessThan(s.MinAmount) {
		return nil, ErrAmountBelowMinimum
	}
	if _, ok := allowedNetworks[network]; !ok {
		return nil, ErrUnknownNetwork
	}
	if err := wallet.Validate(walletAddr, network); err != nil {
		return nil, err
	}

	lock, err := s.Locks.Consume(lockID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		OrderID:       uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		Network:       network,
		WalletAddress: walletAddr,
		LockedPrice:   lock.LockedPrice,
		Total:         amount.Mul(lock.LockedPrice),
		Status:        models.OrderPending,
		LockedAt:      now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return s.Store.ListOrdersByUser(ctx, userID)
}

func (s *OrderService) Timeline(ctx context.Context, orderID string) ([]*models.TimelineEvent, error) {
	return s.Store.ListTimeline(ctx, orderID)
}

func (s *OrderService) Receipts(ctx context.Context, orderID string) ([]*models.OrderReceipt, error) {
	return s.Store.ListReceipts(ctx, orderID)
}

// PaymentRemaining reports whole seconds left in the order's payment window,
// derived from the persisted LockedAt, never from any in-memory lock.
func (s *OrderService) PaymentRemaining(order *models.Order) int {
	r := s.PaymentWindow - s.now().Sub(order.LockedAt)
	if r <= 0 {
		return 0
	}
	return int(r / time.Second)
}

// ConfirmPayment is the admin acknowledging the bank receipt: paid →
// processing.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string) error {
	return s.confirm(ctx, orderID, models.OrderPaid, "pagamento confirmado")
}

// ReopenAndConfirm handles a late-arriving payment on a technically expired
// order: expired → processing. This is a deliberate policy exception to the
// usual guard table, not a loosening of it.
func (s *OrderService) ReopenAndConfirm(ctx context.Context, orderID string) error {
	return s.confirm(ctx, orderID, models.OrderExpired, "ordem reaberta e pagamento confirmado")
}

func (s *OrderService) confirm(ctx context.Context, orderID string, from models.OrderStatus, message string) error {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	count, err := s.Store.CountReceipts(ctx, orderID)
	if err != nil {
		return err
	}
	if count == 0 && order.ReceiptURL == nil {
		return ErrNoReceipts
	}

	ok, err := s.Store.UpdateStatusIf(ctx, orderID, []models.OrderStatus{from}, models.OrderProcessing)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}

	s.publishStatus(orderID, models.OrderProcessing)
	if err := s.appendEvent(ctx, orderID, models.EventPaymentConfirmed, message, models.ActorAdmin, nil); err != nil {
		return err
	}

	if email, ok := s.resolveEmail(ctx, order.UserID); ok {
		s.Notifier.Send(ctx, notify.TemplatePaymentConfirmed, email, map[string]string{
			"order_id": orderID,
			"total":    order.Total.StringFixed(2),
		})
	}
	return nil
}

// Reject closes an order that has not reached a terminal state yet.
func (s *OrderService) Reject(ctx context.Context, orderID, reason string) error {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return err
	}

	from := []models.OrderStatus{models.OrderPending, models.OrderPaid, models.OrderExpired}
	ok, err := s.Store.UpdateStatusIf(ctx, orderID, from, models.OrderRejected)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}

	s.publishStatus(orderID, models.OrderRejected)
	message := "pagamento rejeitado"
	var metadata map[string]string
	if reason != "" {
		metadata = map[string]string{"reason": reason}
	}
	return s.appendEvent(ctx, orderID, models.EventPaymentRejected, message, models.ActorAdmin, metadata)
}

// CompleteWithHash closes the order: validates the hash (accepting explorer
// URLs as input), moves processing → completed, records the usdt_sent event
// and notifies the owner with the explorer link. Notification failure never
// rolls the completion back.
func (s *OrderService) CompleteWithHash(ctx context.Context, orderID, input string) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	hash := txhash.Extract(input)
	if !txhash.Valid(hash) {
		return nil, ErrInvalidHash
	}

	ok, err := s.Store.CompleteWithHash(ctx, orderID, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	link := txhash.ExplorerLink(hash, order.Network)
	s.publishStatus(orderID, models.OrderCompleted)
	if err := s.appendEvent(ctx, orderID, models.EventUSDTSent, "USDT enviado", models.ActorAdmin, map[string]string{
		"tx_hash":      hash,
		"explorer_url": link,
	}); err != nil {
		return nil, err
	}

	if email, ok := s.resolveEmail(ctx, order.UserID); ok {
		s.Notifier.Send(ctx, notify.TemplateUSDTSent, email, map[string]string{
			"order_id":     orderID,
			"tx_hash":      hash,
			"explorer_url": link,
			"amount":       order.Amount.String(),
		})
	} else {
		zap.L().Warn("could not resolve owner contact, completion notification skipped",
			zap.String("order_id", orderID),
			zap.String("user_id", order.UserID))
	}

	order.Status = models.OrderCompleted
	order.TxHash = &hash
	return order, nil
}

// MarkHashViewed records that the owner saw the transaction hash. Only the
// first view appends a timeline event; the counter always advances.
func (s *OrderService) MarkHashViewed(ctx context.Context, orderID string) error {
	first, err := s.Store.MarkHashViewed(ctx, orderID, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOrderNotFound
		}
		return err
	}
	if !first {
		return nil
	}
	return s.appendEvent(ctx, orderID, models.EventHashViewed, "hash visualizado", models.ActorUser, nil)
}

// ExpireDue is the watcher tick: every pending order whose payment window
// has elapsed moves to expired, once, with exactly one timeline event. The
// status guard in the store means a receipt landing at the same instant
// wins and the order stays paid.
func (s *OrderService) ExpireDue(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.PaymentWindow)
	ids, err := s.Store.ExpireDue(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		s.publishStatus(id, models.OrderExpired)
		if err := s.appendEvent(ctx, id, models.EventOrderExpired, "janela de pagamento expirada", models.ActorSystem, nil); err != nil {
			zap.L().Error("append expiry event failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	return len(ids), nil
}

func (s *OrderService) appendEvent(ctx context.Context, orderID string, eventType models.EventType, message string, actor models.ActorType, metadata map[string]string) error {
	event := &models.TimelineEvent{
		EventID:   uuid.NewString(),
		OrderID:   orderID,
		EventType: eventType,
		Message:   message,
		ActorType: actor,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}
	if err := s.Store.AppendTimeline(ctx, event); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	if s.Realtime != nil {
		s.Realtime.Publish(realtime.ChangeEvent{
			EventID: event.EventID,
			OrderID: orderID,
			Kind:    realtime.ChangeTimelineEvent,
			At:      event.CreatedAt,
		})
	}
	return nil
}

func (s *OrderService) publishStatus(orderID string, status models.OrderStatus) {
	if s.Realtime == nil {
		return
	}
	s.Realtime.Publish(realtime.ChangeEvent{
		EventID: uuid.NewString(),
		OrderID: orderID,
		Kind:    realtime.ChangeOrderStatus,
		Status:  status,
		At:      s.now(),
	})
}

// resolveEmail tries the profile record first and falls back to the identity
// mirror; both failing degrades to a skipped notification, never an error.
func (s *OrderService) resolveEmail(ctx context.Context, userID string) (string, bool) {
	email, err := s.Store.GetProfileEmail(ctx, userID)
	if err == nil {
		return email, true
	}
	email, err = s.Store.GetAuthEmail(ctx, userID)
	if err == nil {
		return email, true
	}
	return "", false
}
