package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/wekeepgrowing/bursar/internal/adapter/handler/http"
	"github.com/wekeepgrowing/bursar/internal/bootstrap"
	"github.com/wekeepgrowing/bursar/internal/config"
	"github.com/wekeepgrowing/bursar/internal/middleware/auth"
	"github.com/wekeepgrowing/bursar/pkg/logger"
)

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	useCases *bootstrap.UseCases
}

func NewServer(cfg *config.Config, log *zap.Logger, useCases *bootstrap.UseCases) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewRequestValidator()

	logger.WithEchoLogger(e, log)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.NewEchoRequestLogger(log))

	s := &Server{
		config:   cfg,
		logger:   log,
		echo:     e,
		useCases: useCases,
	}
	s.setupRoutes()

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  s.config.Service.Name,
			"gateways": s.useCases.Registry.Keys(),
		})
	})

	purchaseHandler := handlers.NewPurchaseHandler(s.useCases.Purchases, s.useCases.Registry, s.useCases.Cards, s.logger)
	adminHandler := handlers.NewAdminHandler(s.useCases.Registry, s.useCases.Recurring, s.logger)
	webhookHandler := handlers.NewWebhookHandler(s.useCases.Webhooks, s.logger)

	v1 := s.echo.Group("/api/v1")

	purchases := v1.Group("/purchases")
	purchases.POST("", purchaseHandler.CreatePurchase)
	purchases.GET("/:id", purchaseHandler.GetPurchase)
	purchases.POST("/:id/pending", purchaseHandler.CreatePending)
	purchases.POST("/:id/process", purchaseHandler.Process)
	purchases.POST("/:id/cards", purchaseHandler.StoreCard)

	jwtConfig := auth.JWTConfig{
		Secret: s.config.Auth.JWTSecret,
		Logger: s.logger,
	}
	adminRoles := s.config.Auth.AdminRoles
	if len(adminRoles) == 0 {
		adminRoles = []string{"admin"}
	}

	if jwtConfig.Secret == "" {
		s.logger.Warn("JWT secret not set, admin routes disabled")
	} else {
		admin := v1.Group("/admin", auth.JWTMiddleware(jwtConfig), auth.RequireRole(s.logger, adminRoles...))
		admin.POST("/purchases/:id/capture-all", adminHandler.CaptureAll)
		admin.POST("/purchases/:id/authorizations/:authId/capture", adminHandler.CaptureAuthorization)
		admin.POST("/purchases/:id/authorizations/:authId/release", adminHandler.ReleaseAuthorization)
		admin.POST("/purchases/:id/verify", adminHandler.VerifyCard)
		admin.POST("/recurring", adminHandler.ScheduleRecurring)
		admin.DELETE("/recurring/:id", adminHandler.CancelRecurring)
	}

	// Webhook routes (outside API versioning)
	s.echo.POST("/webhook/notify/:gateway", webhookHandler.HandleNotify)
	s.echo.POST("/webhook/:gateway", webhookHandler.HandleGateway)
}
