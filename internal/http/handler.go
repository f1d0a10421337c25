package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/pricelock"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/pricing"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/receipts"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/service"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/txhash"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/wallet"
)

// maxReceiptUpload bounds one multipart submission.
const maxReceiptUpload = 25 << 20

type Signer interface {
	SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

type Handler struct {
	Orders        *service.OrderService
	Pipeline      *receipts.Pipeline
	Prices        *pricing.Poller
	Locks         *pricelock.Manager
	Signer        Signer
	ReceiptBucket string
	SignedURLTTL  time.Duration
}

func NewHandler(orders *service.OrderService, pipeline *receipts.Pipeline, prices *pricing.Poller, locks *pricelock.Manager, signer Signer, bucket string, signedTTL time.Duration) *Handler {
	return &Handler{
		Orders:        orders,
		Pipeline:      pipeline,
		Prices:        prices,
		Locks:         locks,
		Signer:        signer,
		ReceiptBucket: bucket,
		SignedURLTTL:  signedTTL,
	}
}

type priceResponse struct {
	BasePrice   string `json:"basePrice"`
	ClientPrice string `json:"clientPrice"`
	ObservedAt  string `json:"observedAt"`
	Stale       bool   `json:"stale"`
}

type quoteResponse struct {
	QuoteID          string `json:"quoteId"`
	LockedPrice      string `json:"lockedPrice"`
	LockedAt         string `json:"lockedAt"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

type createOrderRequest struct {
	QuoteID       string `json:"quoteId"`
	Amount        string `json:"amount"`
	Network       string `json:"network"`
	WalletAddress string `json:"walletAddress"`
}

type orderResponse struct {
	OrderID          string `json:"orderId"`
	Amount           string `json:"amount"`
	Network          string `json:"network"`
	WalletAddress    string `json:"walletAddress"`
	LockedPrice      string `json:"lockedPrice"`
	Total            string `json:"total"`
	Status           string `json:"status"`
	LockedAt         string `json:"lockedAt"`
	RemainingSeconds int    `json:"remainingSeconds"`
	TxHash           string `json:"txHash,omitempty"`
	ExplorerURL      string `json:"explorerUrl,omitempty"`
	CreatedAt        string `json:"createdAt"`
}

type completeOrderRequest struct {
	Hash string `json:"hash"`
}

type rejectOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	tick, ok := h.Prices.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "price feed not ready")
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		BasePrice:   tick.BasePrice.String(),
		ClientPrice: tick.ClientPrice.String(),
		ObservedAt:  tick.ObservedAt.Format(time.RFC3339),
		Stale:       tick.Stale,
	})
}

func (h *Handler) LockQuote(w http.ResponseWriter, r *http.Request) {
	if userID(r) == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}
	tick, ok := h.Prices.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "price feed not ready")
		return
	}
	lock := h.Locks.Lock(tick)
	writeJSON(w, http.StatusOK, quoteResponse{
		QuoteID:          lock.LockID,
		LockedPrice:      lock.LockedPrice.String(),
		LockedAt:         lock.LockedAt.Format(time.RFC3339),
		RemainingSeconds: h.Locks.Remaining(lock),
	})
}

func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	lock, err := h.Locks.Get(chi.URLParam(r, "quoteId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		QuoteID:          lock.LockID,
		LockedPrice:      lock.LockedPrice.String(),
		LockedAt:         lock.LockedAt.Format(time.RFC3339),
		RemainingSeconds: h.Locks.Remaining(lock),
	})
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	order, err := h.Orders.CreateOrder(r.Context(), userID(r), req.QuoteID, amount, models.Network(req.Network), req.WalletAddress)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.orderJSON(order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListUserOrders(r.Context(), userID(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, h.orderJSON(order))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderJSON(order))
}

func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	events, err := h.Orders.Timeline(r.Context(), order.OrderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	type eventResponse struct {
		EventType string            `json:"eventType"`
		Message   string            `json:"message"`
		ActorType string            `json:"actorType"`
		Metadata  map[string]string `json:"metadata,omitempty"`
		CreatedAt string            `json:"createdAt"`
	}
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse{
			EventType: string(ev.EventType),
			Message:   ev.Message,
			ActorType: string(ev.ActorType),
			Metadata:  ev.Metadata,
			CreatedAt: ev.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	list, err := h.Orders.Receipts(r.Context(), order.OrderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	type receiptResponse struct {
		ReceiptID  string `json:"receiptId"`
		FileName   string `json:"fileName"`
		FileURL    string `json:"fileUrl"`
		UploadedAt string `json:"uploadedAt"`
	}
	out := make([]receiptResponse, 0, len(list))
	for _, rc := range list {
		url := rc.FileURL
		if h.Signer != nil {
			if signed, err := h.Signer.SignedURL(r.Context(), h.ReceiptBucket, rc.FileURL, h.SignedURLTTL); err == nil {
				url = signed
			}
		}
		out = append(out, receiptResponse{
			ReceiptID:  rc.ReceiptID,
			FileName:   rc.FileName,
			FileURL:    url,
			UploadedAt: rc.UploadedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) UploadReceipts(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxReceiptUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	queue, err := h.Pipeline.NewQueue(r.Context(), order.OrderID, userID(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file "+fh.Filename)
			return
		}
		if err := h.Pipeline.Enqueue(queue, receipts.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		}); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	committed, err := h.Pipeline.SubmitAll(r.Context(), queue)
	if err != nil {
		var submitErr *receipts.SubmitError
		if errors.As(err, &submitErr) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":      "receipt submission failed",
				"failedFile": submitErr.FileName,
				"committed":  submitErr.Committed,
			})
			return
		}
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"committed": len(committed)})
}

func (h *Handler) MarkHashViewed(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := h.Orders.MarkHashViewed(r.Context(), order.OrderID); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Admin actions.

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if err := h.Orders.ConfirmPayment(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.OrderProcessing)})
}

func (h *Handler) ReopenAndConfirm(w http.ResponseWriter, r *http.Request) {
	if err := h.Orders.ReopenAndConfirm(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.OrderProcessing)})
}

func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	var req rejectOrderRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.Orders.Reject(r.Context(), chi.URLParam(r, "orderId"), req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.OrderRejected)})
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req completeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	order, err := h.Orders.CompleteWithHash(r.Context(), chi.URLParam(r, "orderId"), req.Hash)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderJSON(order))
}

func (h *Handler) orderJSON(order *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:       order.OrderID,
		Amount:        order.Amount.String(),
		Network:       string(order.Network),
		WalletAddress: order.WalletAddress,
		LockedPrice:   order.LockedPrice.String(),
		Total:         order.Total.StringFixed(2),
		Status:        string(order.Status),
		LockedAt:      order.LockedAt.Format(time.RFC3339),
		CreatedAt:     order.CreatedAt.Format(time.RFC3339),
	}
	if order.Status == models.OrderPending {
		resp.RemainingSeconds = h.Orders.PaymentRemaining(order)
	}
	if order.TxHash != nil {
		resp.TxHash = *order.TxHash
		resp.ExplorerURL = txhash.ExplorerLink(*order.TxHash, order.Network)
	}
	return resp
}

// ownedOrder loads the order and checks the caller may see it. Admin routes
// bypass this via adminOnly middleware.
func (h *Handler) ownedOrder(r *http.Request) (*models.Order, error) {
	uid := userID(r)
	if uid == "" {
		return nil, service.ErrMissingUser
	}
	order, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		return nil, err
	}
	if order.UserID != uid {
		return nil, service.ErrOrderNotFound
	}
	return order, nil
}

func userID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrMissingUser):
		writeError(w, http.StatusUnauthorized, "missing user id")
	case errors.Is(err, service.ErrAmountBelowMinimum):
		writeError(w, http.StatusBadRequest, "amount below minimum")
	case errors.Is(err, service.ErrUnknownNetwork):
		writeError(w, http.StatusBadRequest, "unknown network")
	case errors.Is(err, wallet.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, "invalid wallet address for network")
	case errors.Is(err, service.ErrInvalidHash):
		writeError(w, http.StatusBadRequest, "invalid transaction hash")
	case errors.Is(err, receipts.ErrLimitExceeded):
		writeError(w, http.StatusBadRequest, "receipt limit exceeded")
	case errors.Is(err, receipts.ErrEmptyQueue):
		writeError(w, http.StatusBadRequest, "no files queued")
	case errors.Is(err, pricelock.ErrLockExpired):
		writeError(w, http.StatusPreconditionFailed, "price lock expired")
	case errors.Is(err, pricelock.ErrLockNotFound):
		writeError(w, http.StatusPreconditionFailed, "price lock not found")
	case errors.Is(err, service.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrNoReceipts):
		writeError(w, http.StatusConflict, "order has no receipts")
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "order state does not allow this action")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
