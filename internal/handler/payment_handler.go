package handler

import (
	"io"
	"net/http"

	"shopapi/internal/config"
	"shopapi/internal/middleware"
	"shopapi/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// /payments のHTTP
type PaymentHandler struct {
	uc *usecase.PaymentUsecase
}

func NewPaymentHandler(uc *usecase.PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{uc: uc}
}

type CreateIntentRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency" validate:"omitempty,oneof=usd eur gbp"`
	Metadata map[string]string `json:"metadata"`
}

type PaymentIntentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type RefundRequest struct {
	PaymentIntentID string           `json:"payment_intent_id" validate:"required"`
	Amount          *decimal.Decimal `json:"amount"`
	Reason          string           `json:"reason" validate:"omitempty,oneof=duplicate fraudulent requested_by_customer"`
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	// webhookは署名で検証するのでbearer不要
	e.POST("/payments/webhook", h.webhook)

	g := e.Group("/payments")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("/create-intent", h.createIntent)
	g.POST("/confirm", h.confirm)
	g.POST("/refund", h.refund)
	g.GET("/intent/:paymentIntentId", h.getIntent)
	g.POST("/customer", h.customer)
	g.POST("/setup-intent", h.setupIntent)
	g.GET("/methods", h.methods)
}

func (h *PaymentHandler) createIntent(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req CreateIntentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	pi, err := h.uc.CreateIntent(c.Request().Context(), userID, usecase.CreateIntentInput{
		Amount:   req.Amount,
		Currency: req.Currency,
		Metadata: req.Metadata,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{
		"client_secret":     pi.ClientSecret,
		"payment_intent_id": pi.ID,
		"amount":            pi.Amount,
		"currency":          pi.Currency,
	})
}

func (h *PaymentHandler) confirm(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req PaymentIntentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	pi, err := h.uc.Confirm(c.Request().Context(), userID, req.PaymentIntentID)
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{
		"payment_intent": echo.Map{
			"id":       pi.ID,
			"status":   pi.Status,
			"amount":   pi.Amount,
			"currency": pi.Currency,
		},
	})
}

func (h *PaymentHandler) refund(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req RefundRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	rf, err := h.uc.Refund(c.Request().Context(), userID, usecase.RefundInput{
		PaymentIntentID: req.PaymentIntentID,
		Amount:          req.Amount,
		Reason:          req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"refund": rf})
}

func (h *PaymentHandler) getIntent(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	pi, err := h.uc.GetIntent(c.Request().Context(), userID, c.Param("paymentIntentId"))
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{
		"payment_intent": echo.Map{
			"id":       pi.ID,
			"status":   pi.Status,
			"amount":   pi.Amount,
			"currency": pi.Currency,
			"created":  pi.CreatedAt,
			"metadata": pi.Metadata,
		},
	})
}

func (h *PaymentHandler) customer(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	cus, err := h.uc.Customer(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"customer": cus})
}

func (h *PaymentHandler) setupIntent(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	si, err := h.uc.SetupIntent(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{
		"client_secret":   si.ClientSecret,
		"setup_intent_id": si.ID,
	})
}

func (h *PaymentHandler) methods(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	methods, err := h.uc.PaymentMethods(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"payment_methods": methods})
}

// 署名検証には生のbodyが必要
func (h *PaymentHandler) webhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid body"))
	}

	if err := h.uc.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
