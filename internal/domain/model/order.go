package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// 終端。ここから他のステータスへは遷移しない。
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type PaymentMethod string

const (
	PaymentMethodStripe         PaymentMethod = "stripe"
	PaymentMethodPaypal         PaymentMethod = "paypal"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodStripe, PaymentMethodPaypal, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// 配送先。全項目必須。
type ShippingAddress struct {
	Street  string `gorm:"column:shipping_street;type:varchar(255);not null" json:"street"`
	City    string `gorm:"column:shipping_city;type:varchar(100);not null" json:"city"`
	State   string `gorm:"column:shipping_state;type:varchar(100);not null" json:"state"`
	ZipCode string `gorm:"column:shipping_zip_code;type:varchar(20);not null" json:"zip_code"`
	Country string `gorm:"column:shipping_country;type:varchar(100);not null" json:"country"`
}

type Order struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            int64           `gorm:"not null;index:idx_orders_user_created,priority:1" json:"user_id"`
	Status            OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	Currency          string          `gorm:"type:varchar(3);not null" json:"currency"`
	ShippingAddress   ShippingAddress `gorm:"embedded" json:"shipping_address"`
	PaymentMethod     PaymentMethod   `gorm:"type:varchar(30);not null" json:"payment_method"`
	PaymentStatus     PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	PaymentIntentID   *string         `gorm:"type:varchar(255);uniqueIndex" json:"payment_intent_id,omitempty"`
	TrackingNumber    *string         `gorm:"type:varchar(100)" json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	Notes             *string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt         time.Time       `gorm:"not null;autoCreateTime;index:idx_orders_user_created,priority:2" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
