package handler

import (
	"net/http"

	"shopapi/internal/config"
	"shopapi/internal/middleware"
	"shopapi/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type ImageRef struct {
	URL      string `json:"url" validate:"omitempty,url"`
	PublicID string `json:"public_id"`
}

// availableは省略時true
type ProductRequest struct {
	Name      string          `json:"name" validate:"required,min=2,max=100"`
	Category  string          `json:"category" validate:"required,oneof=men women kids accessories"`
	NewPrice  decimal.Decimal `json:"new_price"`
	OldPrice  decimal.Decimal `json:"old_price"`
	Available *bool           `json:"available"`
	Image     ImageRef        `json:"image"`
}

func (r ProductRequest) toInput() usecase.AdminProductInput {
	available := true
	if r.Available != nil {
		available = *r.Available
	}
	return usecase.AdminProductInput{
		Name:          r.Name,
		Category:      r.Category,
		NewPrice:      r.NewPrice,
		OldPrice:      r.OldPrice,
		Available:     available,
		ImageURL:      r.Image.URL,
		ImagePublicID: r.Image.PublicID,
	}
}

// /admin/products
type AdminProductHandler struct {
	uc *usecase.ProductUsecase
}

// DI
func NewAdminProductHandler(uc *usecase.ProductUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc}
}

// adminを登録
func (h *AdminProductHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := e.Group("/admin")

	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())

	admin.POST("/products", h.createProduct)
	admin.PUT("/products/:id", h.updateProduct)
	admin.DELETE("/products/:id", h.deleteProduct)
}

func (h *AdminProductHandler) createProduct(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ProductRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	p, err := h.uc.AdminCreateProduct(c.Request().Context(), adminID, req.toInput())
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusCreated, echo.Map{"product": p})
}

func (h *AdminProductHandler) updateProduct(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid product id"))
	}

	var req ProductRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	p, err := h.uc.AdminUpdateProduct(c.Request().Context(), adminID, id, req.toInput())
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"product": p})
}

func (h *AdminProductHandler) deleteProduct(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid product id"))
	}

	if err := h.uc.AdminDeleteProduct(c.Request().Context(), adminID, id); err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"message": "product deleted"})
}
