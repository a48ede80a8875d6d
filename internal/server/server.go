package server

import (
	"context"
	"net/http"
	"time"

	"shopapi/internal/config"
	"shopapi/internal/handler"
	"shopapi/internal/middleware"
	"shopapi/internal/validator"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Handlersはルート登録に使うハンドラ一式
type Handlers struct {
	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	Product      *handler.ProductHandler
	AdminProduct *handler.AdminProductHandler
	Cart         *handler.CartHandler
	Order        *handler.OrderHandler
	AdminOrder   *handler.AdminOrderHandler
	AuditLog     *handler.AdminAuditLogHandler
	Payment      *handler.PaymentHandler
}

// RateStoresはレート制限の保存先。nilならメモリ。
type RateStores struct {
	General echomw.RateLimiterStore
	Strict  echomw.RateLimiterStore
}

type Server struct {
	e      *echo.Echo
	addr   string
	logger *zap.Logger
}

// Newはミドルウェアとルートを組み立てたechoを返す
func New(cfg config.Config, logger *zap.Logger, h Handlers, stores RateStores) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.IsDevelopment()
	e.Validator = validator.New()
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	if stores.General == nil {
		stores.General = middleware.NewMemoryRateStore(cfg.RateLimitGeneral, cfg.RateLimitWindow)
	}
	if stores.Strict == nil {
		stores.Strict = middleware.NewMemoryRateStore(cfg.RateLimitStrict, cfg.RateLimitWindow)
	}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(echomw.Gzip())
	e.Use(echomw.BodyLimit("10M"))
	e.Use(middleware.RateLimit(stores.General, logger))

	RegisterRoutes(e, cfg, h, middleware.RateLimit(stores.Strict, logger))

	return &Server{e: e, addr: ":" + cfg.Port, logger: logger}
}

// Echoはテスト用
func (s *Server) Echo() *echo.Echo {
	return s.e
}

// Startはブロックする。Shutdown後はnilを返す。
func (s *Server) Start() error {
	s.logger.Info("server started", zap.String("addr", s.addr))
	if err := s.e.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.e.Shutdown(ctx)
}
