package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryMen         Category = "men"
	CategoryWomen       Category = "women"
	CategoryKids        Category = "kids"
	CategoryAccessories Category = "accessories"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMen, CategoryWomen, CategoryKids, CategoryAccessories:
		return true
	}
	return false
}

// 商品。new_priceが現在価格、old_priceが値下げ前の価格。
type Product struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string          `gorm:"type:varchar(100);not null" json:"name"`
	Category      Category        `gorm:"type:varchar(20);not null;index" json:"category"`
	NewPrice      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"new_price"`
	OldPrice      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"old_price"`
	Available     bool            `gorm:"not null" json:"available"`
	ImageURL      string          `gorm:"type:varchar(500)" json:"image_url"`
	ImagePublicID string          `gorm:"type:varchar(255)" json:"image_public_id"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
