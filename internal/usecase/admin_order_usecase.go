package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"shopapi/internal/domain/model"
	repo "shopapi/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	orders    repo.OrderRepository
	items     repo.OrderItemRepository
	auditRepo repo.AuditLogRepository
	logger    *zap.Logger
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	auditRepo repo.AuditLogRepository,
	logger *zap.Logger,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, orders: orders, items: items, auditRepo: auditRepo, logger: logger}
}

// nilの項目は変更しない
type AdminUpdateOrderStatusInput struct {
	Status            *string
	TrackingNumber    *string
	EstimatedDelivery *time.Time
}

type OrderStatsOutput struct {
	ByStatus     []repo.OrderStatusStat `json:"by_status"`
	TotalOrders  int64                  `json:"total_orders"`
	TotalRevenue decimal.Decimal        `json:"total_revenue"`
}

// 監査ログに残す項目
type orderStatusSnapshot struct {
	Status            model.OrderStatus `json:"status"`
	TrackingNumber    *string           `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time        `json:"estimated_delivery,omitempty"`
}

func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	patch := repo.OrderStatusPatch{
		TrackingNumber:    in.TrackingNumber,
		EstimatedDelivery: in.EstimatedDelivery,
	}
	if in.Status != nil {
		s := model.OrderStatus(strings.TrimSpace(*in.Status))
		if !s.Valid() {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		patch.Status = &s
	}

	// ユーザーのキャンセルと競合しないよう、ロックした行で終端ガードを見る
	var o model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}

		// 終端ガード
		if patch.Status != nil && *patch.Status != cur.Status && cur.Status.Terminal() {
			return NewHTTPError(http.StatusBadRequest, "order cannot be updated")
		}

		if err := r.Orders().ApplyStatusPatch(ctx, orderID, patch); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "order not found")
			}
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}
		o = cur
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	before := orderStatusSnapshot{Status: o.Status, TrackingNumber: o.TrackingNumber, EstimatedDelivery: o.EstimatedDelivery}
	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.TrackingNumber != nil {
		o.TrackingNumber = patch.TrackingNumber
	}
	if patch.EstimatedDelivery != nil {
		o.EstimatedDelivery = patch.EstimatedDelivery
	}
	after := orderStatusSnapshot{Status: o.Status, TrackingNumber: o.TrackingNumber, EstimatedDelivery: o.EstimatedDelivery}

	writeAudit(ctx, u.auditRepo, u.logger, model.AuditLog{
		ActorUserID:  actorAdminUserID,
		Action:       model.AuditActionUpdateOrderStatus,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		BeforeJSON:   toJSON(before),
		AfterJSON:    toJSON(after),
	})

	items, err := u.items.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return OrderOutput{Order: o, Items: items}, nil
}

func (u *AdminOrderUsecase) Stats(ctx context.Context) (OrderStatsOutput, error) {
	byStatus, err := u.orders.StatsByStatus(ctx)
	if err != nil {
		return OrderStatsOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	total, err := u.orders.Count(ctx)
	if err != nil {
		return OrderStatsOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	revenue, err := u.orders.CompletedRevenue(ctx)
	if err != nil {
		return OrderStatsOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	if byStatus == nil {
		byStatus = []repo.OrderStatusStat{}
	}
	return OrderStatsOutput{
		ByStatus:     byStatus,
		TotalOrders:  total,
		TotalRevenue: revenue,
	}, nil
}

// 監査ログは本処理のあとに書く。失敗してもリクエストは成功扱い。
func writeAudit(ctx context.Context, auditRepo repo.AuditLogRepository, logger *zap.Logger, log model.AuditLog) {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	if err := auditRepo.Create(ctx, log); err != nil {
		logger.Error("write audit log",
			zap.String("action", string(log.Action)),
			zap.Int64("resource_id", log.ResourceID),
			zap.Error(err),
		)
	}
}

func toJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
