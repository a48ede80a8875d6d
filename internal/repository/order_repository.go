package repository

import (
	"context"
	"time"

	"shopapi/internal/domain/model"

	"github.com/shopspring/decimal"
)

type OrderListFilter struct {
	UserID int64
	Page   int
	Limit  int
	Status string
}

// 管理者の部分更新。nilは「変更しない」。
type OrderStatusPatch struct {
	Status            *model.OrderStatus
	TrackingNumber    *string
	EstimatedDelivery *time.Time
}

type OrderStatusStat struct {
	Status      model.OrderStatus `json:"status"`
	Count       int64             `json:"count"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// 行ロック付き（トランザクション内で使う）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) (model.Order, error)
	ListByUser(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	SetPaymentIntentID(ctx context.Context, orderID int64, intentID string) error
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error
	// ステータスと決済ステータスを同時に更新
	UpdateStatuses(ctx context.Context, orderID int64, status model.OrderStatus, paymentStatus model.PaymentStatus) error
	ApplyStatusPatch(ctx context.Context, orderID int64, p OrderStatusPatch) error

	StatsByStatus(ctx context.Context) ([]OrderStatusStat, error)
	Count(ctx context.Context) (int64, error)
	// payment_status=completedの合計
	CompletedRevenue(ctx context.Context) (decimal.Decimal, error)
}
