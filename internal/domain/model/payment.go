package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// 決済代行側のオブジェクト。金額は小数（ドル単位）に戻して持つ。

type PaymentIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Status       string            `json:"status"`
	Amount       decimal.Decimal   `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created"`
}

type Refund struct {
	ID              string          `json:"id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	Reason          string          `json:"reason"`
}

type PaymentCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type SetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type PaymentCard struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

type PaymentMethodInfo struct {
	ID   string       `json:"id"`
	Type string       `json:"type"`
	Card *PaymentCard `json:"card"`
}

// 署名検証済みのwebhookイベント
type PaymentEvent struct {
	ID   string
	Type string
	// payment_intent.* のとき
	PaymentIntentID string
	// charge.refunded で全額返金済みか
	FullyRefunded bool
	Raw           json.RawMessage
}

const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded         = "charge.refunded"
)

// 決済代行のintentステータス
const PaymentIntentStatusSucceeded = "succeeded"
