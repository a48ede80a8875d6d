package repository

import (
	"context"
	"errors"

	"shopapi/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// メール重複などの一意制約違反
var ErrDuplicate = errors.New("duplicate")

// 一覧検索
type ProductListQuery struct {
	Page     int
	Limit    int
	Category string
	Sort     string
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	List(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	// 名前かカテゴリの部分一致（大文字小文字を区別しない）
	Search(ctx context.Context, q string, limit int) ([]model.Product, error)
	// 新しい順にlimit件
	Latest(ctx context.Context, limit int) ([]model.Product, error)
	// カテゴリ内で古い順にlimit件
	FirstInCategory(ctx context.Context, category model.Category, limit int) ([]model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	Delete(ctx context.Context, id int64) error
}
