package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shopapi/internal/domain/model"
	"shopapi/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

var hundred = decimal.NewFromInt(100)

// ToMinorUnitsはドル単位をセント単位へ（四捨五入、0から遠い方へ）
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

var _ usecase.PaymentGateway = (*StripeGateway)(nil)

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (model.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return model.PaymentIntent{}, wrap("create payment intent", err)
	}
	return toPaymentIntent(pi), nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, intentID string) (model.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return model.PaymentIntent{}, wrap("get payment intent", err)
	}
	return toPaymentIntent(pi), nil
}

// サーバー側では状態確認だけを行う（確定はクライアントSDK側）
func (g *StripeGateway) ConfirmPaymentIntent(ctx context.Context, intentID string) (model.PaymentIntent, error) {
	pi, err := g.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return model.PaymentIntent{}, err
	}
	if pi.Status != model.PaymentIntentStatusSucceeded {
		return pi, fmt.Errorf("%w: status %s", usecase.ErrPaymentNotSucceeded, pi.Status)
	}
	return pi, nil
}

func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := g.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return wrap("cancel payment intent", err)
	}
	return nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, intentID string, amount *decimal.Decimal, reason string) (model.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if amount != nil {
		params.Amount = stripe.Int64(ToMinorUnits(*amount))
	}
	if reason != "" {
		params.Reason = stripe.String(reason)
	}

	rf, err := g.api.Refunds.New(params)
	if err != nil {
		return model.Refund{}, wrap("create refund", err)
	}

	out := model.Refund{
		ID:              rf.ID,
		PaymentIntentID: intentID,
		Amount:          FromMinorUnits(rf.Amount),
		Status:          string(rf.Status),
		Reason:          string(rf.Reason),
	}
	return out, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (model.PaymentCustomer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	c, err := g.api.Customers.New(params)
	if err != nil {
		return model.PaymentCustomer{}, wrap("create customer", err)
	}
	return model.PaymentCustomer{ID: c.ID, Email: c.Email, Name: c.Name}, nil
}

func (g *StripeGateway) GetCustomer(ctx context.Context, customerID string) (model.PaymentCustomer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := g.api.Customers.Get(customerID, params)
	if err != nil {
		return model.PaymentCustomer{}, wrap("get customer", err)
	}
	return model.PaymentCustomer{ID: c.ID, Email: c.Email, Name: c.Name}, nil
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, customerID string) (model.SetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx

	si, err := g.api.SetupIntents.New(params)
	if err != nil {
		return model.SetupIntent{}, wrap("create setup intent", err)
	}
	return model.SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

func (g *StripeGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]model.PaymentMethodInfo, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	out := []model.PaymentMethodInfo{}
	it := g.api.PaymentMethods.List(params)
	for it.Next() {
		out = append(out, toPaymentMethodInfo(it.PaymentMethod()))
	}
	if err := it.Err(); err != nil {
		return nil, wrap("list payment methods", err)
	}
	return out, nil
}

// 署名を検証してイベントを返す
func (g *StripeGateway) ParseWebhookEvent(payload []byte, signature string) (model.PaymentEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return model.PaymentEvent{}, fmt.Errorf("%w: %v", usecase.ErrInvalidSignature, err)
	}
	return toPaymentEvent(ev)
}

func toPaymentEvent(ev stripe.Event) (model.PaymentEvent, error) {
	out := model.PaymentEvent{
		ID:   ev.ID,
		Type: string(ev.Type),
	}
	if ev.Data == nil {
		return out, nil
	}
	out.Raw = ev.Data.Raw

	var obj struct {
		ID            string `json:"id"`
		Object        string `json:"object"`
		PaymentIntent string `json:"payment_intent"`
		Refunded      bool   `json:"refunded"`
	}
	if len(ev.Data.Raw) > 0 {
		if err := json.Unmarshal(ev.Data.Raw, &obj); err != nil {
			return model.PaymentEvent{}, fmt.Errorf("decode event object: %w", err)
		}
	}

	//chargeはpayment_intentを持つ
	switch obj.Object {
	case "payment_intent":
		out.PaymentIntentID = obj.ID
	case "charge":
		out.PaymentIntentID = obj.PaymentIntent
		out.FullyRefunded = obj.Refunded
	}
	return out, nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) model.PaymentIntent {
	return model.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       FromMinorUnits(pi.Amount),
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
		CreatedAt:    time.Unix(pi.Created, 0).UTC(),
	}
}

func toPaymentMethodInfo(pm *stripe.PaymentMethod) model.PaymentMethodInfo {
	out := model.PaymentMethodInfo{ID: pm.ID, Type: string(pm.Type)}
	if pm.Card != nil {
		out.Card = &model.PaymentCard{
			Brand:    string(pm.Card.Brand),
			Last4:    pm.Card.Last4,
			ExpMonth: pm.Card.ExpMonth,
			ExpYear:  pm.Card.ExpYear,
		}
	}
	return out
}

// Stripeのエラーは全部ErrGatewayで包む
func wrap(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %s: %s (%s)", usecase.ErrGateway, op, se.Msg, se.Code)
	}
	return fmt.Errorf("%w: %s: %v", usecase.ErrGateway, op, err)
}
