package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// windowあたりlimit回のメモリ版ストア（Redisが無いとき）
func NewMemoryRateStore(limit int, window time.Duration) echomw.RateLimiterStore {
	per := rate.Limit(float64(limit) / window.Seconds())
	return echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      per,
		Burst:     limit,
		ExpiresIn: window,
	})
}

// IP単位のレート制限。超過は429、ストア障害は通す。
func RateLimit(store echomw.RateLimiterStore, logger *zap.Logger) echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: failOpenStore{store: store, logger: logger},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logger.Warn("rate limit identifier", zap.Error(err))
			return c.JSON(http.StatusForbidden, errorJSON("forbidden"))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, errorJSON("too many requests, please try again later"))
		},
	})
}

type failOpenStore struct {
	store  echomw.RateLimiterStore
	logger *zap.Logger
}

func (s failOpenStore) Allow(identifier string) (bool, error) {
	ok, err := s.store.Allow(identifier)
	if err != nil {
		s.logger.Error("rate limit store", zap.String("identifier", identifier), zap.Error(err))
		return true, nil
	}
	return ok, nil
}
