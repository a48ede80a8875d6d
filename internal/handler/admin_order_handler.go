package handler

import (
	"net/http"
	"time"

	"shopapi/internal/config"
	"shopapi/internal/middleware"
	"shopapi/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /orders配下の管理者専用API
type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

// 省略した項目は変更しない
type UpdateOrderStatusRequest struct {
	Status            *string    `json:"status"`
	TrackingNumber    *string    `json:"tracking_number" validate:"omitempty,max=100"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	// /ordersのグループとは別にルート単位でガードする
	guards := []echo.MiddlewareFunc{middleware.AuthJWT(cfg), middleware.AdminRoleGuard()}

	e.GET("/orders/stats", h.stats, guards...)
	e.PUT("/orders/:orderId/status", h.updateStatus, guards...)
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid order id"))
	}

	var req UpdateOrderStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.UpdateStatus(c.Request().Context(), adminID, orderID, usecase.AdminUpdateOrderStatusInput{
		Status:            req.Status,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"message": "order status updated", "order": out})
}

func (h *AdminOrderHandler) stats(c echo.Context) error {
	out, err := h.uc.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"stats": out})
}
