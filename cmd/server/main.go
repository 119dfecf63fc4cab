package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"booking-engine/internal/infrastructure/config"
	"booking-engine/internal/infrastructure/container"
	"booking-engine/internal/infrastructure/messaging"
	"booking-engine/internal/infrastructure/scheduler"
	"booking-engine/internal/interface/consumer"
	"booking-engine/internal/interface/handler"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/metrics"
	"booking-engine/pkg/obs"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const serviceName = "booking-engine"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger().Fatal("Failed to load config", "error", err)
	}

	// Create logger
	zl := logger.NewLoggerWithOptions(logger.Options{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     serviceName,
		Version:     cfg.AppVersion,
	})
	defer zl.Sync()
	var log logger.Logger = zl
	log.Info("Starting Booking Engine", "env", cfg.AppEnv, "store", cfg.StoreDriver)

	// Set up context cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracerConfig{
		ServiceName: serviceName,
		Version:     cfg.AppVersion,
		Environment: cfg.AppEnv,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Fatal("Failed to init tracer", "error", err)
	}

	m := metrics.NewMetrics("booking_engine")

	app, err := container.New(ctx, cfg, log, m)
	if err != nil {
		log.Fatal("Failed to build application", "error", err)
	}

	// Expiry sweep
	sweeps, err := scheduler.NewSweepScheduler(app.Expiry, app.SweepLock, cfg.SweepInterval, cfg.SweepLockTTL, app.Clock, log.With("component", "sweep-scheduler"))
	if err != nil {
		log.Fatal("Failed to create sweep scheduler", "error", err)
	}
	if err := sweeps.Start(ctx); err != nil {
		log.Fatal("Failed to start sweep scheduler", "error", err)
	}

	// HTTP API
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewBookingHandler(app.Engine, app.Payments, app.Expiry, log)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(h, log, prometheus.DefaultGatherer),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting HTTP server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Payment events
	if cfg.RabbitURL != "" {
		mq, err := messaging.NewConsumer(messaging.ConsumerConfig{
			URL:      cfg.RabbitURL,
			Exchange: cfg.PaymentExchange,
			Queue:    cfg.PaymentQueue,
			Keys:     consumer.PaymentKeys,
			Tag:      serviceName,
		})
		if err != nil {
			log.Fatal("Failed to create payment consumer", "error", err)
		}
		defer mq.Close()

		deliveries, err := mq.Deliveries(gctx)
		if err != nil {
			log.Fatal("Failed to consume payment events", "error", err)
		}
		payments := consumer.NewPaymentConsumer(app.Payments, log.With("component", "payment-consumer"))
		g.Go(func() error {
			return payments.Run(gctx, deliveries)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", "error", err)
		}
		if err := sweeps.Shutdown(); err != nil {
			log.Error("Sweep scheduler shutdown error", "error", err)
		}
		if err := app.Close(shutdownCtx); err != nil {
			log.Error("Shutdown error", "error", err)
		}
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Error("Tracer shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Service stopped with error", "error", err)
	}
	log.Info("Service shutdown complete")
}
