package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/realtime"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The web app is served from its own origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	Orders *service.OrderService
	Hub    *realtime.Hub
}

// ServeOrder upgrades the connection and streams change events for one
// order until the client goes away.
func (h *WSHandler) ServeOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing user id")
		return
	}
	orderID := chi.URLParam(r, "orderId")
	order, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if order.UserID != uid {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Debug("ws upgrade failed", zap.Error(err))
		return
	}

	h.Hub.Subscribe(orderID, conn)
	defer func() {
		h.Hub.Unsubscribe(orderID, conn)
		_ = conn.Close()
	}()

	// Drain control frames; the server never expects client messages.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
