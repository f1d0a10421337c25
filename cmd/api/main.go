package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/config"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/db"
	internalhttp "github.com/egonjunior/tkb-asset-otc-sub000/internal/http"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/logging"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/notify"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/pricelock"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/pricing"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/realtime"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/receipts"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/service"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/storage"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := logging.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		zap.L().Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	st := store.New(pool)

	feed, err := pricing.NewClient(cfg.PriceFeed.Endpoints, cfg.PriceFeed.Symbol, cfg.PriceFeed.FailoverThreshold)
	if err != nil {
		zap.L().Fatal("price feed init failed", zap.Error(err))
	}
	poller := pricing.NewPoller(feed, time.Duration(cfg.PriceFeed.IntervalSeconds)*time.Second, cfg.PriceFeed.MarkupPercent)
	go poller.Run(ctx)

	locks := pricelock.NewManager(time.Duration(cfg.Orders.QuoteLockSeconds) * time.Second)
	hub := realtime.NewHub()
	// Transitions made by the worker process arrive over pg NOTIFY.
	go realtime.Listen(ctx, pool, hub)
	notifier := notify.NewClient(cfg.Notify.Endpoint, cfg.Notify.Key)
	objects := storage.NewClient(cfg.Storage.Endpoint, cfg.Storage.Key)

	orders := &service.OrderService{
		Store:         st,
		Locks:         locks,
		Notifier:      notifier,
		Realtime:      hub,
		MinAmount:     decimal.NewFromInt(cfg.Orders.MinAmount),
		PaymentWindow: time.Duration(cfg.Orders.PaymentLockSeconds) * time.Second,
		OperatorEmail: cfg.Notify.OperatorEmail,
	}
	pipeline := &receipts.Pipeline{
		Store:         st,
		Storage:       objects,
		Notifier:      notifier,
		Realtime:      hub,
		Bucket:        cfg.Storage.ReceiptBucket,
		MaxReceipts:   cfg.Orders.MaxReceipts,
		OperatorEmail: cfg.Notify.OperatorEmail,
	}

	signedTTL := time.Duration(cfg.Storage.SignedURLTTL) * time.Second
	handler := internalhttp.NewHandler(orders, pipeline, poller, locks, objects, cfg.Storage.ReceiptBucket, signedTTL)
	ws := &internalhttp.WSHandler{Orders: orders, Hub: hub}
	srv := internalhttp.NewServer(handler, ws, cfg.Admin.Token)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		zap.L().Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}
