package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/crate-auction/internal/config"
	"github.com/iliyamo/crate-auction/internal/database"
	"github.com/iliyamo/crate-auction/internal/handler"
	"github.com/iliyamo/crate-auction/internal/logger"
	"github.com/iliyamo/crate-auction/internal/metrics"
	"github.com/iliyamo/crate-auction/internal/middleware"
	"github.com/iliyamo/crate-auction/internal/notify"
	"github.com/iliyamo/crate-auction/internal/payment"
	"github.com/iliyamo/crate-auction/internal/queue"
	"github.com/iliyamo/crate-auction/internal/repository"
	"github.com/iliyamo/crate-auction/internal/router"
	"github.com/iliyamo/crate-auction/internal/scheduler"
	"github.com/iliyamo/crate-auction/internal/service"
)

const (
	sweepLeaseKey = "scheduler:sweep"
	auditLogPath  = "logs/auction.log"
)

func main() {
	cfg := config.Load() // Load environment config
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Logger

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable: bids are not rate limited and every instance sweeps")
	}

	var pub queue.Publisher = queue.NopPublisher{}
	var amqpPub *queue.AMQPPublisher
	if cfg.RabbitURL != "" {
		amqpPub = queue.NewAMQPPublisher(cfg.RabbitURL)
		pub = amqpPub
	} else {
		log.Warn("RABBITMQ_URL not set, broker fan-out disabled")
	}

	var provider payment.Provider
	if cfg.Payment.SecretKey != "" {
		provider = payment.NewStripeClient(cfg.Payment)
	} else {
		log.Warn("PAYMENT_SECRET_KEY not set, checkout is unavailable")
	}

	m := metrics.New()

	sessions := repository.NewSessionRepo(db)
	bids := repository.NewBidRepo(db)
	users := repository.NewUserRepo(db)
	feed := repository.NewFeedRepo(db)
	livestreams := repository.NewLivestreamRepo(db)
	sink := notify.NewSink(feed, users, pub)

	auction := service.NewAuctionService(service.AuctionDeps{
		DB:          db,
		Sessions:    sessions,
		Bids:        bids,
		Users:       users,
		Livestreams: livestreams,
		Feed:        feed,
		Notifier:    sink,
		Config:      cfg.Auction,
		Metrics:     m,
	})
	payments := service.NewPaymentService(service.PaymentDeps{
		DB:       db,
		Sessions: sessions,
		Bids:     bids,
		Crate:    repository.NewCrateRepo(db),
		Provider: provider,
		Notifier: sink,
		Metrics:  m,
	})

	var lease scheduler.Lease
	if rdb != nil {
		lease = scheduler.NewRedisLease(rdb, sweepLeaseKey)
	}
	sched := scheduler.New(auction, lease, cfg.Scheduler, m)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	schedDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		go func() {
			defer close(schedDone)
			sched.Start(ctx)
		}()
		log.WithField("interval", cfg.Scheduler.Interval).Info("expiry scheduler started")
	} else {
		close(schedDone)
	}

	if cfg.RabbitURL != "" {
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitURL, auditLogPath); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("audit consumer stopped")
			}
		}()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestIDMiddleware(), middleware.RequestLogger())

	router.RegisterRoutes(e, db, m) // Register application routes
	router.RegisterAuction(e, handler.NewAuctionHandler(auction), cfg.JWTSecret, middleware.NewTokenBucket(cfg.RateLimit, rdb))
	router.RegisterPayments(e, handler.NewPaymentHandler(payments),
		handler.NewWebhookHandler(payments, cfg.Payment.WebhookSecret, cfg.Payment.WebhookTolerance, m), cfg.JWTSecret)
	router.RegisterDirectory(e, handler.NewDirectoryHandler(service.NewDirectoryService(livestreams, users, nil)), cfg.JWTSecret)
	router.RegisterInternal(e, handler.NewSweepHandler(sched), cfg.CronTokenHash)

	addr := ":" + cfg.Port
	go func() {
		log.WithField("addr", addr).WithField("env", cfg.Env).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// stop sweeping before the server so no transition starts mid-shutdown
	<-schedDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}

	if amqpPub != nil {
		_ = amqpPub.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("closing database")
	}
}
