package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"shopapi/internal/domain/model"
	repo "shopapi/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	newCollectionSize = 8
	popularInWomen    = 4
	searchLimit       = 50
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	auditRepo   repo.AuditLogRepository
	logger      *zap.Logger
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	auditRepo repo.AuditLogRepository,
	logger *zap.Logger,
) *ProductUsecase {
	return &ProductUsecase{
		productRepo: productRepo,
		auditRepo:   auditRepo,
		logger:      logger,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Category string
	Sort     string
}

type ProductListOutput struct {
	Items      []model.Product `json:"products"`
	Total      int64           `json:"total"`
	TotalPages int             `json:"total_pages"`
	Page       int             `json:"current_page"`
}

func (u *ProductUsecase) ListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	category := strings.TrimSpace(in.Category)
	if category != "" && !model.Category(category).Valid() {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid category")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}

	items, total, err := u.productRepo.List(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Category: category,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	pages := int(total) / in.Limit
	if int(total)%in.Limit != 0 {
		pages++
	}
	return ProductListOutput{
		Items:      items,
		Total:      total,
		TotalPages: pages,
		Page:       in.Page,
	}, nil
}

func (u *ProductUsecase) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return p, nil
}

func (u *ProductUsecase) Search(ctx context.Context, q string) ([]model.Product, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, NewHTTPError(http.StatusBadRequest, "search query is required")
	}
	if len(q) > 100 {
		return nil, NewHTTPError(http.StatusBadRequest, "q too long")
	}

	items, err := u.productRepo.Search(ctx, q, searchLimit)
	if err != nil {
		return nil, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return items, nil
}

func (u *ProductUsecase) NewCollection(ctx context.Context) ([]model.Product, error) {
	items, err := u.productRepo.Latest(ctx, newCollectionSize)
	if err != nil {
		return nil, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return items, nil
}

func (u *ProductUsecase) PopularInWomen(ctx context.Context) ([]model.Product, error) {
	items, err := u.productRepo.FirstInCategory(ctx, model.CategoryWomen, popularInWomen)
	if err != nil {
		return nil, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return items, nil
}

type AdminProductInput struct {
	Name          string
	Category      string
	NewPrice      decimal.Decimal
	OldPrice      decimal.Decimal
	Available     bool
	ImageURL      string
	ImagePublicID string
}

func validateProductInput(in AdminProductInput) (model.Product, error) {
	name := strings.TrimSpace(in.Name)
	if len(name) < 2 || len(name) > 100 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "name must be between 2 and 100 characters")
	}
	category := model.Category(strings.TrimSpace(in.Category))
	if !category.Valid() {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid category")
	}
	if in.NewPrice.IsNegative() || in.OldPrice.IsNegative() {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}

	return model.Product{
		Name:          name,
		Category:      category,
		NewPrice:      in.NewPrice.Round(2),
		OldPrice:      in.OldPrice.Round(2),
		Available:     in.Available,
		ImageURL:      strings.TrimSpace(in.ImageURL),
		ImagePublicID: strings.TrimSpace(in.ImagePublicID),
	}, nil
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminProductInput) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	p, err := validateProductInput(in)
	if err != nil {
		return model.Product{}, err
	}

	created, err := u.productRepo.Create(ctx, p)
	if err != nil {
		return model.Product{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	writeAudit(ctx, u.auditRepo, u.logger, model.AuditLog{
		ActorUserID:  adminUserID,
		Action:       model.AuditActionCreateProduct,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   created.ID,
		BeforeJSON:   "{}",
		AfterJSON:    toJSON(created),
	})
	return created, nil
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID int64, in AdminProductInput) (model.Product, error) {
	if adminUserID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	p, err := validateProductInput(in)
	if err != nil {
		return model.Product{}, err
	}

	before, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	p.ID = productID
	if err := u.productRepo.Update(ctx, p); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Product{}, NewHTTPError(http.StatusNotFound, "product not found")
		}
		return model.Product{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	p.CreatedAt = before.CreatedAt

	writeAudit(ctx, u.auditRepo, u.logger, model.AuditLog{
		ActorUserID:  adminUserID,
		Action:       model.AuditActionUpdateProduct,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   toJSON(before),
		AfterJSON:    toJSON(p),
	})
	return p, nil
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	before, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	if err := u.productRepo.Delete(ctx, productID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "product not found")
		}
		return WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	writeAudit(ctx, u.auditRepo, u.logger, model.AuditLog{
		ActorUserID:  adminUserID,
		Action:       model.AuditActionDeleteProduct,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   toJSON(before),
		AfterJSON:    "{}",
	})
	return nil
}
