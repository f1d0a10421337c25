package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler, ws *WSHandler, adminToken string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/price", handler.GetPrice)

	r.Route("/trade", func(r chi.Router) {
		r.Post("/quotes", handler.LockQuote)
		r.Get("/quotes/{quoteId}", handler.GetQuote)
		r.Post("/orders", handler.CreateOrder)
		r.Get("/orders", handler.ListOrders)
		r.Get("/orders/{orderId}", handler.GetOrder)
		r.Get("/orders/{orderId}/timeline", handler.GetTimeline)
		r.Get("/orders/{orderId}/receipts", handler.ListReceipts)
		r.Post("/orders/{orderId}/receipts", handler.UploadReceipts)
		r.Post("/orders/{orderId}/hash-viewed", handler.MarkHashViewed)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly(adminToken))
		r.Post("/orders/{orderId}/confirm", handler.ConfirmPayment)
		r.Post("/orders/{orderId}/reopen-confirm", handler.ReopenAndConfirm)
		r.Post("/orders/{orderId}/reject", handler.RejectOrder)
		r.Post("/orders/{orderId}/complete", handler.CompleteOrder)
	})

	if ws != nil {
		r.Get("/ws/orders/{orderId}", ws.ServeOrder)
	}

	return &Server{Router: r}
}

func adminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Token")
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusForbidden, "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
