package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"shopapi/internal/domain/model"
	repo "shopapi/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 返金の結果（キャンセルのレスポンスに載せる）
type RefundStatus string

const (
	RefundNotRequired RefundStatus = "not_required"
	RefundRefunded    RefundStatus = "refunded"
	RefundPending     RefundStatus = "pending"
)

const refundReasonCustomer = "requested_by_customer"

type OrderUsecase struct {
	tx       repo.TransactionManager
	orders   repo.OrderRepository
	items    repo.OrderItemRepository
	gateway  PaymentGateway
	logger   *zap.Logger
	currency string
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	gateway PaymentGateway,
	logger *zap.Logger,
	currency string,
) *OrderUsecase {
	return &OrderUsecase{
		tx:       tx,
		orders:   orders,
		items:    items,
		gateway:  gateway,
		logger:   logger,
		currency: currency,
	}
}

type OrderItemInput struct {
	ProductID int64
	Quantity  int64
}

type CreateOrderInput struct {
	Items           []OrderItemInput
	ShippingAddress model.ShippingAddress
	PaymentMethod   string
	Notes           *string
}

type PaymentIntentRef struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type CreateOrderOutput struct {
	ID            int64               `json:"id"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Status        model.OrderStatus   `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	PaymentIntent *PaymentIntentRef   `json:"payment_intent"`
}

// 注文＋明細
type OrderOutput struct {
	model.Order
	Items []model.OrderItem `json:"items"`
}

type OrderListOutput struct {
	Orders      []OrderOutput `json:"orders"`
	Total       int64         `json:"total"`
	TotalPages  int           `json:"total_pages"`
	CurrentPage int           `json:"current_page"`
}

type CancelOrderOutput struct {
	OrderID       int64               `json:"order_id"`
	Status        model.OrderStatus   `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	RefundStatus  RefundStatus        `json:"refund_status"`
	Message       string              `json:"message"`
}

func (u *OrderUsecase) CreateOrder(ctx context.Context, userID int64, in CreateOrderInput) (CreateOrderOutput, error) {
	if userID <= 0 {
		return CreateOrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Items) == 0 {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "order must contain at least one item")
	}
	if !shippingAddressComplete(in.ShippingAddress) {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "shipping address is incomplete")
	}
	method := model.PaymentMethod(strings.TrimSpace(in.PaymentMethod))
	if !method.Valid() {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment method")
	}

	var (
		out    CreateOrderOutput
		intent *model.PaymentIntent
	)

	//注文・明細・intentの紐付けは1トランザクション
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		total := decimal.Zero
		lines := make([]model.OrderItem, 0, len(in.Items))
		productIDs := make([]int64, 0, len(in.Items))

		for _, it := range in.Items {
			p, err := r.Products().FindByID(ctx, it.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, fmt.Sprintf("product not found: %d", it.ProductID))
			}
			if err != nil {
				return WrapHTTPError(http.StatusInternalServerError, "db error", err)
			}
			if !p.Available {
				return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("product not available: %s", p.Name))
			}
			if it.Quantity < 1 {
				return NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid quantity for product: %s", p.Name))
			}

			// 価格はこの時点の値をコピー
			total = total.Add(p.NewPrice.Mul(decimal.NewFromInt(it.Quantity)))
			lines = append(lines, model.OrderItem{
				ProductID:           p.ID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.NewPrice,
				Quantity:            it.Quantity,
			})
			productIDs = append(productIDs, p.ID)
		}

		order := model.Order{
			UserID:          userID,
			Status:          model.OrderStatusPending,
			TotalAmount:     total,
			Currency:        u.currency,
			ShippingAddress: trimAddress(in.ShippingAddress),
			PaymentMethod:   method,
			PaymentStatus:   model.PaymentStatusPending,
			Notes:           in.Notes,
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}
		if err := r.OrderItems().CreateBulk(ctx, orderID, lines); err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}

		out = CreateOrderOutput{
			ID:            orderID,
			TotalAmount:   total,
			Status:        order.Status,
			PaymentStatus: order.PaymentStatus,
		}

		if method == model.PaymentMethodStripe {
			pi, err := u.gateway.CreatePaymentIntent(ctx, total, u.currency, map[string]string{
				"orderId": strconv.FormatInt(orderID, 10),
				"userId":  strconv.FormatInt(userID, 10),
			})
			if err != nil {
				return WrapHTTPError(http.StatusInternalServerError, "failed to create payment intent", err)
			}
			intent = &pi

			if err := r.Orders().SetPaymentIntentID(ctx, orderID, pi.ID); err != nil {
				return WrapHTTPError(http.StatusInternalServerError, "db error", err)
			}
			out.PaymentIntent = &PaymentIntentRef{ID: pi.ID, ClientSecret: pi.ClientSecret}
		}

		//注文した商品はカートから外す
		if err := r.CartItems().DeleteProducts(ctx, userID, productIDs); err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}
		return nil
	})
	if err != nil {
		// intentだけ残らないように取り消す
		if intent != nil {
			u.compensateIntent(ctx, intent.ID)
		}
		return CreateOrderOutput{}, err
	}

	u.logger.Info("order created",
		zap.Int64("order_id", out.ID),
		zap.Int64("user_id", userID),
		zap.String("total_amount", out.TotalAmount.StringFixed(2)),
		zap.String("payment_method", string(method)),
	)
	return out, nil
}

func (u *OrderUsecase) compensateIntent(ctx context.Context, intentID string) {
	if err := u.gateway.CancelPaymentIntent(context.WithoutCancel(ctx), intentID); err != nil {
		u.logger.Error("cancel orphan payment intent",
			zap.String("payment_intent_id", intentID),
			zap.Error(err),
		)
	}
}

func (u *OrderUsecase) ListOrders(ctx context.Context, userID int64, page, limit int, status string) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	status = strings.TrimSpace(status)
	if status != "" && !model.OrderStatus(status).Valid() {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	orders, total, err := u.orders.ListByUser(ctx, repo.OrderListFilter{
		UserID: userID,
		Page:   page,
		Limit:  limit,
		Status: status,
	})
	if err != nil {
		return OrderListOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	itemsByOrder, err := u.items.ListByOrderIDs(ctx, ids)
	if err != nil {
		return OrderListOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items := itemsByOrder[o.ID]
		if items == nil {
			items = []model.OrderItem{}
		}
		outs = append(outs, OrderOutput{Order: o, Items: items})
	}

	return OrderListOutput{
		Orders:      outs,
		Total:       total,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		CurrentPage: page,
	}, nil
}

func (u *OrderUsecase) GetOrder(ctx context.Context, userID, orderID int64) (OrderOutput, error) {
	o, err := u.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	return u.withItems(ctx, o)
}

// 他人の注文は存在しない扱い（404）
func (u *OrderUsecase) ownedOrder(ctx context.Context, userID, orderID int64) (model.Order, error) {
	if userID <= 0 {
		return model.Order{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return model.Order{}, NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, NewHTTPError(http.StatusNotFound, "order not found")
	}
	if err != nil {
		return model.Order{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	if o.UserID != userID {
		return model.Order{}, NewHTTPError(http.StatusNotFound, "order not found")
	}
	return o, nil
}

func (u *OrderUsecase) withItems(ctx context.Context, o model.Order) (OrderOutput, error) {
	items, err := u.items.ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return OrderOutput{Order: o, Items: items}, nil
}

// 1段目: ロックしてcancelledにする。2段目: 必要なら返金を1回だけ試す。
func (u *OrderUsecase) CancelOrder(ctx context.Context, userID, orderID int64) (CancelOrderOutput, error) {
	if userID <= 0 {
		return CancelOrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return CancelOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	var locked model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if o.Status.Terminal() {
			return NewHTTPError(http.StatusBadRequest, "order cannot be cancelled")
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, model.OrderStatusCancelled); err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}
		o.Status = model.OrderStatusCancelled
		locked = o
		return nil
	})
	if err != nil {
		return CancelOrderOutput{}, err
	}

	out := CancelOrderOutput{
		OrderID:       orderID,
		Status:        locked.Status,
		PaymentStatus: locked.PaymentStatus,
		RefundStatus:  RefundNotRequired,
		Message:       "order cancelled",
	}

	needRefund := locked.PaymentStatus == model.PaymentStatusCompleted &&
		locked.PaymentIntentID != nil && *locked.PaymentIntentID != ""
	if !needRefund {
		u.logger.Info("order cancelled", zap.Int64("order_id", orderID), zap.Int64("user_id", userID))
		return out, nil
	}

	intentID := *locked.PaymentIntentID
	if _, err := u.gateway.CreateRefund(ctx, intentID, nil, refundReasonCustomer); err != nil {
		u.logger.Error("refund failed",
			zap.Int64("order_id", orderID),
			zap.String("payment_intent_id", intentID),
			zap.Error(err),
		)
		out.RefundStatus = RefundPending
		out.Message = "order cancelled, refund pending"
		return out, nil
	}

	out.RefundStatus = RefundRefunded
	out.PaymentStatus = model.PaymentStatusRefunded
	if err := u.orders.UpdatePaymentStatus(ctx, orderID, model.PaymentStatusRefunded); err != nil {
		// 返金自体は成功。charge.refundedのwebhookで追いつく
		u.logger.Error("mark order refunded",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
	}

	u.logger.Info("order cancelled",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", userID),
		zap.String("refund_status", string(out.RefundStatus)),
	)
	return out, nil
}

func (u *OrderUsecase) ConfirmPayment(ctx context.Context, userID, orderID int64, paymentIntentID string) (OrderOutput, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "payment_intent_id is required")
	}

	o, err := u.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	if o.Status.Terminal() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "order cannot be confirmed")
	}
	if o.PaymentIntentID != nil && *o.PaymentIntentID != paymentIntentID {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "payment intent does not belong to order")
	}

	pi, err := u.gateway.ConfirmPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotSucceeded) {
			return OrderOutput{}, WrapHTTPError(http.StatusBadRequest, "payment not completed", err)
		}
		return OrderOutput{}, WrapHTTPError(http.StatusInternalServerError, "failed to confirm payment", err)
	}
	// intent未設定の注文に後から付けるときは、この注文のための決済か確かめる
	if o.PaymentIntentID == nil {
		if err := intentMatchesOrder(pi, o); err != nil {
			return OrderOutput{}, err
		}
	}

	// 決済代行を呼んでいる間にキャンセルされた可能性があるので、ロックして読み直す
	var locked model.Order
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}
		if cur.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if cur.Status.Terminal() {
			return NewHTTPError(http.StatusBadRequest, "order cannot be confirmed")
		}

		switch {
		case cur.PaymentIntentID == nil:
			if _, err := r.Orders().FindByPaymentIntentID(ctx, paymentIntentID); err == nil {
				return NewHTTPError(http.StatusBadRequest, "payment intent already used by another order")
			} else if !errors.Is(err, repo.ErrNotFound) {
				return WrapHTTPError(http.StatusInternalServerError, "db error", err)
			}
			if err := r.Orders().SetPaymentIntentID(ctx, orderID, paymentIntentID); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return NewHTTPError(http.StatusBadRequest, "payment intent already used by another order")
				}
				return WrapHTTPError(http.StatusInternalServerError, "db error", err)
			}
		case *cur.PaymentIntentID != paymentIntentID:
			return NewHTTPError(http.StatusBadRequest, "payment intent does not belong to order")
		}

		if err := r.Orders().UpdateStatuses(ctx, orderID, model.OrderStatusProcessing, model.PaymentStatusCompleted); err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}
		cur.Status = model.OrderStatusProcessing
		cur.PaymentStatus = model.PaymentStatusCompleted
		cur.PaymentIntentID = &paymentIntentID
		locked = cur
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.logger.Info("payment confirmed",
		zap.Int64("order_id", orderID),
		zap.String("payment_intent_id", paymentIntentID),
	)
	return u.withItems(ctx, locked)
}

// metadataのorderId（無ければuserId）と金額・通貨が注文と一致すること
func intentMatchesOrder(pi model.PaymentIntent, o model.Order) error {
	if ref, ok := pi.Metadata["orderId"]; ok {
		if ref != strconv.FormatInt(o.ID, 10) {
			return NewHTTPError(http.StatusBadRequest, "payment intent does not belong to order")
		}
	} else if pi.Metadata["userId"] != strconv.FormatInt(o.UserID, 10) {
		return NewHTTPError(http.StatusBadRequest, "payment intent does not belong to order")
	}
	if !pi.Amount.Equal(o.TotalAmount) {
		return NewHTTPError(http.StatusBadRequest, "payment amount does not match order total")
	}
	if !strings.EqualFold(pi.Currency, o.Currency) {
		return NewHTTPError(http.StatusBadRequest, "payment currency does not match order")
	}
	return nil
}

func shippingAddressComplete(a model.ShippingAddress) bool {
	for _, s := range []string{a.Street, a.City, a.State, a.ZipCode, a.Country} {
		if strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

func trimAddress(a model.ShippingAddress) model.ShippingAddress {
	return model.ShippingAddress{
		Street:  strings.TrimSpace(a.Street),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		ZipCode: strings.TrimSpace(a.ZipCode),
		Country: strings.TrimSpace(a.Country),
	}
}
