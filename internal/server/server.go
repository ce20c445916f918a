package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/tailor-backend/internal/handler"
	appmw "github.com/shinyyama/tailor-backend/internal/middleware"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"github.com/shinyyama/tailor-backend/internal/service"
	"github.com/shinyyama/tailor-backend/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Services struct {
	Orders        service.OrderService
	Payments      service.PaymentService
	Escrow        service.EscrowService
	Delivery      service.DeliveryService
	Notifications service.NotificationService
}

type Options struct {
	GitSHA        string
	BuildTime     string
	WebhookSecret string
	// OriginSuffixes lists host suffixes allowed by CORS besides localhost.
	OriginSuffixes []string
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// Users backs the profile fields of /api/me; may be nil.
	Users   handler.UserLookup
	Tracing bool
	Logger  *zap.Logger
}

type Server struct {
	e       *echo.Echo
	handler http.Handler
	repos   repository.Set
	srv     *http.Server
	logger  *zap.Logger
}

func New(auth *appmw.AuthMiddleware, svcs Services, repos repository.Set, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin(opts.OriginSuffixes),
	}))

	orderHandler := handler.NewOrderHandler(svcs.Orders, svcs.Notifications, logger)
	paymentHandler := handler.NewPaymentHandler(svcs.Payments, svcs.Escrow, logger)
	deliveryHandler := handler.NewDeliveryHandler(svcs.Delivery, logger)
	notificationHandler := handler.NewNotificationHandler(svcs.Notifications, logger)
	earningsHandler := handler.NewEarningsHandler(svcs.Escrow, logger)
	meHandler := handler.NewMeHandler(opts.Users)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    opts.GitSHA,
			"build_time": opts.BuildTime,
		})
	})
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	api := e.Group("/api")
	api.POST("/payments/webhook", paymentHandler.Webhook, appmw.RequireSignature(opts.WebhookSecret))

	authed := auth.RequireAuth
	api.GET("/me", meHandler.Get, authed)

	api.POST("/orders", orderHandler.Create, authed)
	api.GET("/orders", orderHandler.List, authed)
	api.GET("/orders/:id", orderHandler.Get, authed)
	api.PATCH("/orders/:id", orderHandler.Edit, authed)
	api.PUT("/orders/:id/status", orderHandler.UpdateStatus, authed)
	api.POST("/orders/:id/cancel", orderHandler.Cancel, authed)
	api.POST("/orders/:id/review", orderHandler.Review, authed)
	api.POST("/orders/:id/payment", paymentHandler.Initiate, authed)
	api.GET("/orders/:id/payment", paymentHandler.Get, authed)
	api.GET("/orders/:id/delivery", deliveryHandler.ForOrder, authed)
	api.POST("/orders/:id/notifications/read", notificationHandler.MarkOrderRead, authed)

	api.POST("/payments/release/:orderId", paymentHandler.Release, authed)
	api.POST("/payments/refund/:orderId", paymentHandler.Refund, authed)

	api.GET("/delivery/jobs", deliveryHandler.List, authed)
	api.GET("/delivery/jobs/:id", deliveryHandler.Get, authed)
	api.POST("/delivery/jobs/:id/assign", deliveryHandler.Assign, authed)
	api.POST("/delivery/jobs/:id/pickup", deliveryHandler.Pickup, authed)
	api.POST("/delivery/jobs/:id/deliver", deliveryHandler.Deliver, authed)
	api.POST("/delivery/jobs/:id/fail", deliveryHandler.Fail, authed)

	api.GET("/notifications", notificationHandler.List, authed)
	api.POST("/notifications/read", notificationHandler.MarkAllRead, authed)

	api.GET("/shops/:uid/earnings", earningsHandler.Get, authed)
	api.GET("/admin/reports/revenue", earningsHandler.Revenue, authed)

	var h http.Handler = e
	if opts.Tracing {
		h = otelhttp.NewHandler(e, telemetry.ServiceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return &Server{e: e, handler: h, repos: repos, logger: logger}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// SetDB hands a late MySQL connection to every repository.
func (s *Server) SetDB(db *gorm.DB) {
	s.repos.SetDB(db)
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

func allowOrigin(suffixes []string) func(string) (bool, error) {
	return func(origin string) (bool, error) {
		low := strings.ToLower(origin)
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true, nil
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false, nil
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false, nil
		}
		host := u.Hostname()
		for _, s := range suffixes {
			if s != "" && strings.HasSuffix(host, s) {
				return true, nil
			}
		}
		return false, nil
	}
}
