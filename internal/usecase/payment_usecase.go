package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"shopapi/internal/domain/model"
	repo "shopapi/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var minIntentAmount = decimal.RequireFromString("0.01")

type PaymentUsecase struct {
	gateway PaymentGateway
	tx      repo.TransactionManager
	orders  repo.OrderRepository
	users   repo.UserRepository
	logger  *zap.Logger
}

func NewPaymentUsecase(
	gateway PaymentGateway,
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	users repo.UserRepository,
	logger *zap.Logger,
) *PaymentUsecase {
	return &PaymentUsecase{gateway: gateway, tx: tx, orders: orders, users: users, logger: logger}
}

type CreateIntentInput struct {
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

type RefundInput struct {
	PaymentIntentID string
	Amount          *decimal.Decimal
	Reason          string
}

func (u *PaymentUsecase) CreateIntent(ctx context.Context, userID int64, in CreateIntentInput) (model.PaymentIntent, error) {
	if userID <= 0 {
		return model.PaymentIntent{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.Amount.LessThan(minIntentAmount) {
		return model.PaymentIntent{}, NewHTTPError(http.StatusBadRequest, "amount must be at least 0.01")
	}
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "usd"
	}
	switch currency {
	case "usd", "eur", "gbp":
	default:
		return model.PaymentIntent{}, NewHTTPError(http.StatusBadRequest, "invalid currency")
	}

	metadata := make(map[string]string, len(in.Metadata)+1)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	metadata["userId"] = strconv.FormatInt(userID, 10)

	pi, err := u.gateway.CreatePaymentIntent(ctx, in.Amount, currency, metadata)
	if err != nil {
		return model.PaymentIntent{}, WrapHTTPError(http.StatusInternalServerError, "failed to create payment intent", err)
	}

	u.logger.Info("payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("user_id", userID),
	)
	return pi, nil
}

func (u *PaymentUsecase) Confirm(ctx context.Context, userID int64, intentID string) (model.PaymentIntent, error) {
	if _, err := u.ownedIntent(ctx, userID, intentID); err != nil {
		return model.PaymentIntent{}, err
	}

	pi, err := u.gateway.ConfirmPaymentIntent(ctx, intentID)
	if errors.Is(err, ErrPaymentNotSucceeded) {
		return model.PaymentIntent{}, WrapHTTPError(http.StatusBadRequest, "payment not completed", err)
	}
	if err != nil {
		return model.PaymentIntent{}, WrapHTTPError(http.StatusInternalServerError, "failed to confirm payment", err)
	}
	return pi, nil
}

func (u *PaymentUsecase) GetIntent(ctx context.Context, userID int64, intentID string) (model.PaymentIntent, error) {
	return u.ownedIntent(ctx, userID, intentID)
}

// metadataのuserIdが本人のintentだけ見せる
func (u *PaymentUsecase) ownedIntent(ctx context.Context, userID int64, intentID string) (model.PaymentIntent, error) {
	if userID <= 0 {
		return model.PaymentIntent{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return model.PaymentIntent{}, NewHTTPError(http.StatusBadRequest, "payment_intent_id is required")
	}

	pi, err := u.gateway.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return model.PaymentIntent{}, WrapHTTPError(http.StatusInternalServerError, "failed to retrieve payment intent", err)
	}
	if pi.Metadata["userId"] != strconv.FormatInt(userID, 10) {
		return model.PaymentIntent{}, NewHTTPError(http.StatusNotFound, "payment intent not found")
	}
	return pi, nil
}

func (u *PaymentUsecase) Refund(ctx context.Context, userID int64, in RefundInput) (model.Refund, error) {
	if userID <= 0 {
		return model.Refund{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	intentID := strings.TrimSpace(in.PaymentIntentID)
	if intentID == "" {
		return model.Refund{}, NewHTTPError(http.StatusBadRequest, "payment_intent_id is required")
	}
	if in.Amount != nil && in.Amount.LessThan(minIntentAmount) {
		return model.Refund{}, NewHTTPError(http.StatusBadRequest, "amount must be at least 0.01")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = refundReasonCustomer
	}
	switch reason {
	case "duplicate", "fraudulent", refundReasonCustomer:
	default:
		return model.Refund{}, NewHTTPError(http.StatusBadRequest, "invalid refund reason")
	}

	//注文に紐付くintentなら注文側の状態も見る
	order, err := u.orders.FindByPaymentIntentID(ctx, intentID)
	if errors.Is(err, repo.ErrNotFound) {
		if _, err := u.ownedIntent(ctx, userID, intentID); err != nil {
			return model.Refund{}, err
		}
		rf, err := u.gateway.CreateRefund(ctx, intentID, in.Amount, reason)
		if err != nil {
			return model.Refund{}, WrapHTTPError(http.StatusInternalServerError, "failed to create refund", err)
		}
		u.logRefund(rf, intentID, userID)
		return rf, nil
	}
	if err != nil {
		return model.Refund{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	if order.UserID != userID {
		return model.Refund{}, NewHTTPError(http.StatusNotFound, "order not found")
	}

	// キャンセルと同時に来ても返金が二重にならないよう、ロックしたまま返金する
	var rf model.Refund
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.Orders().FindByIDForUpdate(ctx, order.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "db error", err)
		}
		// キャンセル済みの注文はキャンセル側で返金する
		if cur.Status == model.OrderStatusCancelled {
			return NewHTTPError(http.StatusBadRequest, "cancelled order is refunded by cancellation")
		}
		if cur.PaymentStatus != model.PaymentStatusCompleted {
			return NewHTTPError(http.StatusBadRequest, "order payment is not refundable")
		}
		if in.Amount != nil && in.Amount.GreaterThan(cur.TotalAmount) {
			return NewHTTPError(http.StatusBadRequest, "refund amount exceeds order total")
		}

		rf, err = u.gateway.CreateRefund(ctx, intentID, in.Amount, reason)
		if err != nil {
			return WrapHTTPError(http.StatusInternalServerError, "failed to create refund", err)
		}

		// 一部返金ならcompletedのまま。残りはキャンセル時に返金される
		if in.Amount != nil && !in.Amount.Equal(cur.TotalAmount) {
			return nil
		}
		if err := r.Orders().UpdatePaymentStatus(ctx, cur.ID, model.PaymentStatusRefunded); err != nil {
			// 返金自体は成功。charge.refundedのwebhookで追いつく
			u.logger.Error("mark order refunded", zap.Int64("order_id", cur.ID), zap.Error(err))
		}
		return nil
	})
	if err != nil && rf.ID == "" {
		return model.Refund{}, err
	}
	if err != nil {
		u.logger.Error("commit after refund", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	u.logRefund(rf, intentID, userID)
	return rf, nil
}

func (u *PaymentUsecase) logRefund(rf model.Refund, intentID string, userID int64) {
	u.logger.Info("refund created",
		zap.String("refund_id", rf.ID),
		zap.String("payment_intent_id", intentID),
		zap.Int64("user_id", userID),
	)
}

// 既存の顧客があればそれを返す
func (u *PaymentUsecase) Customer(ctx context.Context, userID int64) (model.PaymentCustomer, error) {
	user, err := u.user(ctx, userID)
	if err != nil {
		return model.PaymentCustomer{}, err
	}

	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		c, err := u.gateway.GetCustomer(ctx, *user.StripeCustomerID)
		if err != nil {
			return model.PaymentCustomer{}, WrapHTTPError(http.StatusInternalServerError, "failed to retrieve customer", err)
		}
		return c, nil
	}

	c, err := u.gateway.CreateCustomer(ctx, user.Email, user.Name, map[string]string{
		"userId": strconv.FormatInt(user.ID, 10),
	})
	if err != nil {
		return model.PaymentCustomer{}, WrapHTTPError(http.StatusInternalServerError, "failed to create customer", err)
	}
	if err := u.users.SetStripeCustomerID(ctx, user.ID, c.ID); err != nil {
		return model.PaymentCustomer{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return c, nil
}

func (u *PaymentUsecase) SetupIntent(ctx context.Context, userID int64) (model.SetupIntent, error) {
	customerID, err := u.customerID(ctx, userID)
	if err != nil {
		return model.SetupIntent{}, err
	}

	si, err := u.gateway.CreateSetupIntent(ctx, customerID)
	if err != nil {
		return model.SetupIntent{}, WrapHTTPError(http.StatusInternalServerError, "failed to create setup intent", err)
	}
	return si, nil
}

func (u *PaymentUsecase) PaymentMethods(ctx context.Context, userID int64) ([]model.PaymentMethodInfo, error) {
	customerID, err := u.customerID(ctx, userID)
	if err != nil {
		return nil, err
	}

	methods, err := u.gateway.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, WrapHTTPError(http.StatusInternalServerError, "failed to list payment methods", err)
	}
	return methods, nil
}

func (u *PaymentUsecase) user(ctx context.Context, userID int64) (model.User, error) {
	if userID <= 0 {
		return model.User{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := u.users.FindByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.User{}, NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return model.User{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return user, nil
}

func (u *PaymentUsecase) customerID(ctx context.Context, userID int64) (string, error) {
	user, err := u.user(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", NewHTTPError(http.StatusNotFound, "customer not found")
	}
	return *user.StripeCustomerID, nil
}

// 署名検証後のイベントを注文に反映する
func (u *PaymentUsecase) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := u.gateway.ParseWebhookEvent(payload, signature)
	if err != nil {
		u.logger.Warn("webhook signature verification failed", zap.Error(err))
		return WrapHTTPError(http.StatusBadRequest, "webhook signature verification failed", err)
	}

	log := u.logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	switch ev.Type {
	case model.EventPaymentIntentSucceeded, model.EventPaymentIntentFailed, model.EventChargeRefunded:
	default:
		log.Info("unhandled webhook event")
		return nil
	}
	if ev.PaymentIntentID == "" {
		log.Warn("webhook event without payment intent")
		return nil
	}

	order, err := u.orders.FindByPaymentIntentID(ctx, ev.PaymentIntentID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Info("no order for payment intent", zap.String("payment_intent_id", ev.PaymentIntentID))
		return nil
	}
	if err != nil {
		return WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	log = log.With(zap.Int64("order_id", order.ID))

	// 同時に走るキャンセルや確定と競合しないよう、ロックした行で判定する
	var applied bool
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.Orders().FindByIDForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		applied, err = applyPaymentEvent(ctx, r.Orders(), cur, ev, log)
		return err
	})
	if err != nil {
		return WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	if applied {
		log.Info("webhook applied")
	}
	return nil
}

func applyPaymentEvent(ctx context.Context, orders repo.OrderRepository, o model.Order, ev model.PaymentEvent, log *zap.Logger) (bool, error) {
	switch ev.Type {
	case model.EventPaymentIntentSucceeded:
		if o.PaymentStatus != model.PaymentStatusPending {
			log.Info("payment already settled", zap.String("payment_status", string(o.PaymentStatus)))
			return false, nil
		}
		if o.Status.Terminal() {
			// キャンセル後に決済された。返金は手動
			log.Warn("payment succeeded for closed order", zap.String("status", string(o.Status)))
			return true, orders.UpdatePaymentStatus(ctx, o.ID, model.PaymentStatusCompleted)
		}
		return true, orders.UpdateStatuses(ctx, o.ID, model.OrderStatusProcessing, model.PaymentStatusCompleted)
	case model.EventPaymentIntentFailed:
		if o.PaymentStatus != model.PaymentStatusPending {
			return false, nil
		}
		return true, orders.UpdatePaymentStatus(ctx, o.ID, model.PaymentStatusFailed)
	case model.EventChargeRefunded:
		// refundedはcompletedからの全額返金だけ
		if o.PaymentStatus != model.PaymentStatusCompleted || !ev.FullyRefunded {
			return false, nil
		}
		return true, orders.UpdatePaymentStatus(ctx, o.ID, model.PaymentStatusRefunded)
	}
	return false, nil
}
