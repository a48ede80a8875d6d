package server

import (
	"strings"

	"shopapi/internal/config"

	"github.com/labstack/echo/v4"
)

// 厳しい上限をかけるパス
var strictPrefixes = []string{"/auth", "/orders", "/payments"}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers, strict echo.MiddlewareFunc) {
	e.Use(strictOnly(strict))

	h.Health.RegisterRoutes(e)
	h.Auth.RegisterRoutes(e, cfg)
	h.Product.RegisterRoutes(e)
	h.AdminProduct.RegisterRoutes(e, cfg)
	h.Cart.RegisterRoutes(e, cfg)
	h.AdminOrder.RegisterRoutes(e, cfg)
	h.AuditLog.RegisterRoutes(e, cfg)
	h.Order.RegisterRoutes(e, cfg)
	h.Payment.RegisterRoutes(e, cfg)
}

func strictOnly(strict echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := strict(next)
		return func(c echo.Context) error {
			if hasStrictPrefix(c.Request().URL.Path) {
				return limited(c)
			}
			return next(c)
		}
	}
}

func hasStrictPrefix(path string) bool {
	for _, p := range strictPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
