package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	repo "shopapi/internal/repository"
)

// CartUsecase は /cart の業務ロジックです。
// カートは (商品ID -> 数量) の疎なマップで、行が無ければ空。
type CartUsecase struct {
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
}

func NewCartUsecase(
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
	}
}

// jsonのキーは文字列になるので商品IDを文字列で持つ
type CartResponse struct {
	Cart map[string]int64 `json:"cart"`
}

type CartChangeInput struct {
	ProductID int64
	Quantity  int64
}

func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u.buildCartResponse(ctx, userID)
}

// 同一商品は数量加算（1文のupsert）
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in CartChangeInput) (CartResponse, error) {
	if err := validateCartChange(userID, &in); err != nil {
		return CartResponse{}, err
	}

	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "product not found")
	}
	if err != nil {
		return CartResponse{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	if !p.Available {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "product not available")
	}

	if err := u.cartItemRepo.Add(ctx, userID, in.ProductID, in.Quantity); err != nil {
		return CartResponse{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return u.buildCartResponse(ctx, userID)
}

// 0未満にはならない。0になった行は消える。
func (u *CartUsecase) RemoveFromCart(ctx context.Context, userID int64, in CartChangeInput) (CartResponse, error) {
	if err := validateCartChange(userID, &in); err != nil {
		return CartResponse{}, err
	}

	if err := u.cartItemRepo.Remove(ctx, userID, in.ProductID, in.Quantity); err != nil {
		return CartResponse{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return u.buildCartResponse(ctx, userID)
}

// quantity省略（0）は1
func validateCartChange(userID int64, in *CartChangeInput) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ProductID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 1 {
		return NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	return nil
}

func (u *CartUsecase) buildCartResponse(ctx context.Context, userID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	cart := make(map[string]int64, len(items))
	for _, it := range items {
		cart[strconv.FormatInt(it.ProductID, 10)] = it.Quantity
	}
	return CartResponse{Cart: cart}, nil
}
