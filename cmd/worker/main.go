package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/config"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/db"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/logging"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/notify"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/realtime"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/service"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/store"
	"github.com/egonjunior/tkb-asset-otc-sub000/internal/worker"
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

	orders := &service.OrderService{
		Store:         store.New(pool),
		Notifier:      notify.NewClient(cfg.Notify.Endpoint, cfg.Notify.Key),
		Realtime:      &realtime.PGPublisher{DB: pool},
		MinAmount:     decimal.NewFromInt(cfg.Orders.MinAmount),
		PaymentWindow: time.Duration(cfg.Orders.PaymentLockSeconds) * time.Second,
		OperatorEmail: cfg.Notify.OperatorEmail,
	}

	w := &worker.Watcher{
		Orders:   orders,
		Interval: time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	zap.L().Info("expiry watcher started", zap.Duration("interval", w.Interval))
	w.Run(ctx)
}
