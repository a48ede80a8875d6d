package usecase_test

import (
	"net/http"
	"testing"

	"shopapi/internal/domain/model"
	repo "shopapi/internal/repository"
	"shopapi/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGetCart_EmptyIsEmptyMap(t *testing.T) {
	items := new(CartItemRepoMock)
	uc := usecase.NewCartUsecase(items, new(ProductRepoMock))
	items.On("ListByUserID", mock.Anything, int64(7)).Return([]model.CartItem{}, nil)

	out, err := uc.GetCart(ctx(), 7)
	require.NoError(t, err)
	assert.NotNil(t, out.Cart)
	assert.Empty(t, out.Cart)
}

func TestAddToCart_DefaultQuantity(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	uc := usecase.NewCartUsecase(items, products)

	products.On("FindByID", mock.Anything, int64(3)).Return(model.Product{ID: 3, Available: true}, nil)
	items.On("Add", mock.Anything, int64(7), int64(3), int64(1)).Return(nil).Once()
	items.On("ListByUserID", mock.Anything, int64(7)).Return([]model.CartItem{{UserID: 7, ProductID: 3, Quantity: 2}}, nil)

	out, err := uc.AddToCart(ctx(), 7, usecase.CartChangeInput{ProductID: 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"3": 2}, out.Cart)
	items.AssertExpectations(t)
}

func TestAddToCart_Rejects(t *testing.T) {
	items := new(CartItemRepoMock)
	products := new(ProductRepoMock)
	uc := usecase.NewCartUsecase(items, products)

	products.On("FindByID", mock.Anything, int64(3)).Return(model.Product{ID: 3, Available: false}, nil)
	products.On("FindByID", mock.Anything, int64(4)).Return(model.Product{}, repo.ErrNotFound)

	_, err := uc.AddToCart(ctx(), 7, usecase.CartChangeInput{ProductID: 3, Quantity: 1})
	assertHTTPError(t, err, http.StatusBadRequest, "product not available")

	_, err = uc.AddToCart(ctx(), 7, usecase.CartChangeInput{ProductID: 4, Quantity: 1})
	assertHTTPError(t, err, http.StatusNotFound, "product not found")

	_, err = uc.AddToCart(ctx(), 7, usecase.CartChangeInput{ProductID: 3, Quantity: -2})
	assertHTTPError(t, err, http.StatusBadRequest, "invalid quantity")

	_, err = uc.AddToCart(ctx(), 0, usecase.CartChangeInput{ProductID: 3})
	assertHTTPError(t, err, http.StatusUnauthorized, "unauthorized")

	items.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveFromCart(t *testing.T) {
	items := new(CartItemRepoMock)
	uc := usecase.NewCartUsecase(items, new(ProductRepoMock))

	items.On("Remove", mock.Anything, int64(7), int64(3), int64(5)).Return(nil).Once()
	items.On("ListByUserID", mock.Anything, int64(7)).Return([]model.CartItem{}, nil)

	out, err := uc.RemoveFromCart(ctx(), 7, usecase.CartChangeInput{ProductID: 3, Quantity: 5})
	require.NoError(t, err)
	assert.Empty(t, out.Cart)
	items.AssertExpectations(t)
}
