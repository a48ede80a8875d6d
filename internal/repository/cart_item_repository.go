package repository

import (
	"context"

	"shopapi/internal/domain/model"
)

type CartItemRepository interface {
	ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error)
	// 同一商品はプラス（1文で加算）
	Add(ctx context.Context, userID int64, productID int64, qty int64) error
	// マイナスして0以下なら行を消す。もともと無ければ何もしない
	Remove(ctx context.Context, userID int64, productID int64, qty int64) error
	// 注文済みの商品をカートから消す
	DeleteProducts(ctx context.Context, userID int64, productIDs []int64) error
}
