package usecase

import (
	"context"
	"errors"

	"shopapi/internal/domain/model"

	"github.com/shopspring/decimal"
)

var (
	// 決済代行の呼び出し失敗（通信/APIエラー）
	ErrGateway = errors.New("payment gateway error")
	// intentがsucceededではない
	ErrPaymentNotSucceeded = errors.New("payment not succeeded")
	// webhook署名が不正
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// 決済代行（Stripe）との境界。金額は小数（ドル単位）で受け渡す。
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (model.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (model.PaymentIntent, error)
	// succeeded以外はErrPaymentNotSucceeded
	ConfirmPaymentIntent(ctx context.Context, intentID string) (model.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, intentID string) error
	// amountがnilなら全額
	CreateRefund(ctx context.Context, intentID string, amount *decimal.Decimal, reason string) (model.Refund, error)

	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (model.PaymentCustomer, error)
	GetCustomer(ctx context.Context, customerID string) (model.PaymentCustomer, error)
	CreateSetupIntent(ctx context.Context, customerID string) (model.SetupIntent, error)
	ListPaymentMethods(ctx context.Context, customerID string) ([]model.PaymentMethodInfo, error)

	ParseWebhookEvent(payload []byte, signature string) (model.PaymentEvent, error)
}
