package handler

import (
	"context"
	"net/http"

	"shopapi/internal/config"
	"shopapi/internal/middleware"
	"shopapi/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

// quantity省略は1
type CartChangeRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"gte=0"`
}

func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/cart")
	g.Use(middleware.AuthJWT(cfg))

	g.GET("", h.getCart)
	g.POST("/add", h.add)
	g.POST("/remove", h.remove)
}

func (h *CartHandler) getCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.GetCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"cart": out.Cart})
}

func (h *CartHandler) add(c echo.Context) error {
	return h.change(c, h.uc.AddToCart)
}

func (h *CartHandler) remove(c echo.Context) error {
	return h.change(c, h.uc.RemoveFromCart)
}

func (h *CartHandler) change(c echo.Context, fn func(ctx context.Context, userID int64, in usecase.CartChangeInput) (usecase.CartResponse, error)) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req CartChangeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := fn(c.Request().Context(), userID, usecase.CartChangeInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"cart": out.Cart})
}
