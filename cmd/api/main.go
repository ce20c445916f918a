package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shinyyama/tailor-backend/internal/config"
	"github.com/shinyyama/tailor-backend/internal/db"
	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/idempotency"
	appmw "github.com/shinyyama/tailor-backend/internal/middleware"
	"github.com/shinyyama/tailor-backend/internal/payment"
	"github.com/shinyyama/tailor-backend/internal/pricing"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"github.com/shinyyama/tailor-backend/internal/server"
	"github.com/shinyyama/tailor-backend/internal/service"
	"github.com/shinyyama/tailor-backend/internal/storage"
	"github.com/shinyyama/tailor-backend/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const dedupTTL = 72 * time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.GitSHA)
	if err != nil {
		logger.Fatal("meter provider init failed", zap.Error(err))
	}
	defer func() { _ = shutdownMeter(context.Background()) }()
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, cfg.GitSHA)
		if err != nil {
			logger.Fatal("tracer provider init failed", zap.Error(err))
		}
		defer func() { _ = shutdownTracer(context.Background()) }()
	}
	metrics, err := telemetry.NewMetrics(otel.Meter(telemetry.ServiceName))
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}

	var set repository.Set
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		set = repository.NewMemoryStore().Set()
	} else {
		set = repository.NewGormSet(nil)
	}

	d := service.DepsFromSet(set)
	d.Logger = logger
	d.Metrics = metrics
	d.Provider = payment.NewSandboxProvider(cfg.PaymentCheckoutURL, logger)
	d.MaxDeliveryAttempts = cfg.Delivery.MaxAttempts
	d.Pricing = pricing.Defaults{
		VATPercent:           cfg.Pricing.VATPercent,
		DefaultMarginPercent: cfg.Pricing.DefaultMarginPercent,
		UrgentFeePercent:     cfg.Pricing.UrgentFeePercent,
		ExpressFeePercent:    cfg.Pricing.ExpressFeePercent,
	}
	notifications := service.NewNotificationService(set.Notifications, logger)
	d.Notifier = notifications

	if cfg.RedisAddr != "" {
		rdb := idempotency.NewRedisClient(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		d.Guard = idempotency.NewRedisGuard(rdb, dedupTTL, logger)
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, 1024, logger)
		defer func() { _ = pub.Close() }()
		d.Publisher = pub
	}
	if cfg.PODBucket != "" {
		proofs, err := storage.NewGCSProofStore(ctx, cfg.PODBucket, cfg.GCSCredentialsFile)
		if err != nil {
			logger.Error("proof store init failed; proofs will be dropped", zap.Error(err))
		} else {
			defer func() { _ = proofs.Close() }()
			d.Proofs = proofs
		}
	}

	tokens := appmw.NewServiceTokens(cfg.ServiceTokenSecret)
	var authMw *appmw.AuthMiddleware
	opts := server.Options{
		GitSHA:         cfg.GitSHA,
		BuildTime:      cfg.BuildTime,
		WebhookSecret:  cfg.PaymentWebhookSecret,
		OriginSuffixes: cfg.CORSOriginSuffixes,
		Metrics:        metricsHandler,
		Tracing:        cfg.OTLPEndpoint != "",
		Logger:         logger,
	}
	if cfg.FirebaseProjectID != "" {
		authMw, err = appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID, tokens)
		if err != nil {
			logger.Fatal("failed to init firebase auth", zap.Error(err))
		}
		if client := authMw.Client(); client != nil {
			opts.Users = client
		}
	} else {
		logger.Warn("FIREBASE_PROJECT_ID not set; only service tokens are accepted")
		authMw = appmw.NewTokenAuth(nil, tokens)
	}
	if cfg.PaymentWebhookSecret == "" {
		logger.Warn("PAYMENT_WEBHOOK_SECRET not set; every payment webhook will be rejected")
	}

	srv := server.New(authMw, server.Services{
		Orders:        service.NewOrderService(d),
		Payments:      service.NewPaymentService(d),
		Escrow:        service.NewEscrowService(d),
		Delivery:      service.NewDeliveryService(d),
		Notifications: notifications,
	}, set, opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(":" + cfg.Port)
	}()

	if cfg.Store == config.StoreMySQL {
		go func() {
			conn, err := db.Connect(&cfg.DB)
			if err != nil {
				logger.Error("db connect error", zap.Error(err))
				return
			}
			if err := db.Migrate(conn); err != nil {
				logger.Error("auto migrate error", zap.Error(err))
				return
			}
			srv.SetDB(conn)
			logger.Info("database ready")
		}()
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}
