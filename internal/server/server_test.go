package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shopapi/internal/config"
	"shopapi/internal/domain/model"
	"shopapi/internal/handler"
	infraAuth "shopapi/internal/infra/auth"
	"shopapi/internal/infra/db"
	infraRepo "shopapi/internal/infra/repository"
	"shopapi/internal/server"
	"shopapi/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// =====================
// 決済代行のフェイク
// =====================

type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	intents  map[string]model.PaymentIntent
	refunds  int
	canceled []string
	// 確認の応答を返す前に呼ばれる（ロックの外）
	onConfirm func(id string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]model.PaymentIntent{}}
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (model.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("pi_%d", g.seq)
	pi := model.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		Amount:       amount,
		Currency:     currency,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}
	g.intents[id] = pi
	return pi, nil
}

func (g *fakeGateway) GetPaymentIntent(_ context.Context, id string) (model.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[id]
	if !ok {
		return model.PaymentIntent{}, fmt.Errorf("%w: no such intent", usecase.ErrGateway)
	}
	return pi, nil
}

// 金額が13.00のintentは失敗扱い
func (g *fakeGateway) ConfirmPaymentIntent(ctx context.Context, id string) (model.PaymentIntent, error) {
	pi, err := g.confirm(id)
	if g.onConfirm != nil {
		g.onConfirm(id)
	}
	return pi, err
}

func (g *fakeGateway) confirm(id string) (model.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[id]
	if !ok {
		return model.PaymentIntent{}, fmt.Errorf("%w: no such intent", usecase.ErrGateway)
	}
	if pi.Amount.Equal(decimal.NewFromInt(13)) {
		return pi, usecase.ErrPaymentNotSucceeded
	}
	pi.Status = model.PaymentIntentStatusSucceeded
	g.intents[id] = pi
	return pi, nil
}

func (g *fakeGateway) CancelPaymentIntent(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceled = append(g.canceled, id)
	return nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, id string, amount *decimal.Decimal, reason string) (model.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds++
	rf := model.Refund{ID: fmt.Sprintf("re_%d", g.refunds), PaymentIntentID: id, Status: "succeeded", Reason: reason}
	if amount != nil {
		rf.Amount = *amount
	} else {
		rf.Amount = g.intents[id].Amount
	}
	return rf, nil
}

func (g *fakeGateway) CreateCustomer(_ context.Context, email, name string, _ map[string]string) (model.PaymentCustomer, error) {
	return model.PaymentCustomer{ID: "cus_" + strings.Split(email, "@")[0], Email: email, Name: name}, nil
}

func (g *fakeGateway) GetCustomer(_ context.Context, id string) (model.PaymentCustomer, error) {
	return model.PaymentCustomer{ID: id}, nil
}

func (g *fakeGateway) CreateSetupIntent(_ context.Context, customerID string) (model.SetupIntent, error) {
	return model.SetupIntent{ID: "seti_" + customerID, ClientSecret: "seti_secret"}, nil
}

func (g *fakeGateway) ListPaymentMethods(_ context.Context, _ string) ([]model.PaymentMethodInfo, error) {
	return []model.PaymentMethodInfo{}, nil
}

// payloadは {"type": ..., "pi": ...}、署名は "good" のみ有効
func (g *fakeGateway) ParseWebhookEvent(payload []byte, signature string) (model.PaymentEvent, error) {
	if signature != "good" {
		return model.PaymentEvent{}, usecase.ErrInvalidSignature
	}
	var body struct {
		Type string `json:"type"`
		PI   string `json:"pi"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return model.PaymentEvent{}, errors.New("bad payload")
	}
	return model.PaymentEvent{ID: "evt_1", Type: body.Type, PaymentIntentID: body.PI}, nil
}

// =====================
// helper
// =====================

type testApp struct {
	e       *echo.Echo
	db      *gorm.DB
	gateway *fakeGateway
	cfg     config.Config
}

func testConfig() config.Config {
	return config.Config{
		Port:             "0",
		GoEnv:            "test",
		JWTSecret:        "test-secret",
		JWTTTL:           time.Hour,
		BcryptCost:       bcrypt.MinCost,
		Currency:         "usd",
		AllowedOrigins:   []string{"http://localhost:3000"},
		RateLimitGeneral: 1000,
		RateLimitStrict:  1000,
		RateLimitWindow:  time.Minute,
	}
}

func newTestApp(t *testing.T, cfg config.Config) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	log := zap.NewNop()
	gw := newFakeGateway()

	userRepo := infraRepo.NewUserGormRepository(gdb)
	productRepo := infraRepo.NewProductGormRepository(gdb)
	cartRepo := infraRepo.NewCartItemGormRepository(gdb)
	orderRepo := infraRepo.NewOrderGormRepository(gdb)
	itemRepo := infraRepo.NewOrderItemGormRepository(gdb)
	auditRepo := infraRepo.NewAuditLogGormRepository(gdb)
	txm := infraRepo.NewTxManagerGorm(gdb)

	authUC := usecase.NewAuthUsecase(userRepo, infraAuth.NewBcryptHasher(cfg.BcryptCost), infraAuth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTTTL), log)
	productUC := usecase.NewProductUsecase(productRepo, auditRepo, log)
	orderUC := usecase.NewOrderUsecase(txm, orderRepo, itemRepo, gw, log, cfg.Currency)

	srv := server.New(cfg, log, server.Handlers{
		Health:       handler.NewHealthHandler(cfg.GoEnv, time.Now()),
		Auth:         handler.NewAuthHandler(authUC),
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		Cart:         handler.NewCartHandler(usecase.NewCartUsecase(cartRepo, productRepo)),
		Order:        handler.NewOrderHandler(orderUC),
		AdminOrder:   handler.NewAdminOrderHandler(usecase.NewAdminOrderUsecase(txm, orderRepo, itemRepo, auditRepo, log)),
		AuditLog:     handler.NewAdminAuditLogHandler(usecase.NewAuditLogUsecase(auditRepo)),
		Payment:      handler.NewPaymentHandler(usecase.NewPaymentUsecase(gw, txm, orderRepo, userRepo, log)),
	}, server.RateStores{})

	return &testApp{e: srv.Echo(), db: gdb, gateway: gw, cfg: cfg}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (a *testApp) signup(t *testing.T, email string) string {
	t.Helper()
	rec, out := a.do(t, http.MethodPost, "/auth/signup", echo.Map{
		"name": "Test User", "email": email, "password": "Passw0rd",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return out["token"].(string)
}

// ADMINは登録APIでは作れないのでDBに直接入れる
func (a *testApp) adminToken(t *testing.T) string {
	t.Helper()
	u := model.User{Name: "Admin", Email: "admin@example.com", PasswordHash: "x", Role: model.RoleAdmin, IsActive: true}
	require.NoError(t, a.db.Create(&u).Error)
	tok, err := infraAuth.NewJWTIssuer(a.cfg.JWTSecret, a.cfg.JWTTTL).Issue(u)
	require.NoError(t, err)
	return tok
}

func (a *testApp) seedProduct(t *testing.T, name, price string, available bool) model.Product {
	t.Helper()
	p := model.Product{
		Name:      name,
		Category:  model.CategoryWomen,
		NewPrice:  decimal.RequireFromString(price),
		OldPrice:  decimal.RequireFromString(price),
		Available: available,
	}
	require.NoError(t, a.db.Create(&p).Error)
	return p
}

func errMessage(out map[string]interface{}) string {
	e, _ := out["error"].(map[string]interface{})
	s, _ := e["message"].(string)
	return s
}

func sub(out map[string]interface{}, key string) map[string]interface{} {
	m, _ := out[key].(map[string]interface{})
	return m
}

func orderBody(productID int64, qty int, method string) echo.Map {
	return echo.Map{
		"items": []echo.Map{{"product_id": productID, "quantity": qty}},
		"shipping_address": echo.Map{
			"street": "1 Main St", "city": "Springfield", "state": "IL", "zip_code": "62701", "country": "US",
		},
		"payment_method": method,
	}
}

// =====================
// tests
// =====================

func TestHealth(t *testing.T) {
	a := newTestApp(t, testConfig())

	rec, out := a.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "OK", out["status"])
	assert.Equal(t, "test", out["environment"])
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	a := newTestApp(t, testConfig())

	rec, out := a.do(t, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.NotEmpty(t, errMessage(out))
}

func TestAuthFlow(t *testing.T) {
	a := newTestApp(t, testConfig())

	token := a.signup(t, "alice@example.com")

	rec, out := a.do(t, http.MethodPost, "/auth/signup", echo.Map{
		"name": "Alice", "email": "ALICE@example.com", "password": "Passw0rd",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user already exists with this email", errMessage(out))

	rec, out = a.do(t, http.MethodPost, "/auth/signup", echo.Map{
		"name": "Bob", "email": "bob@example.com", "password": "password",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, errMessage(out))

	rec, out = a.do(t, http.MethodPost, "/auth/login", echo.Map{"email": "alice@example.com", "password": "Passw0rd"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, out["token"])

	rec, out = a.do(t, http.MethodPost, "/auth/login", echo.Map{"email": "alice@example.com", "password": "Wrong999"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid email or password", errMessage(out))

	rec, out = a.do(t, http.MethodGet, "/profile", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", sub(out, "user")["email"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec, _ = a.do(t, http.MethodGet, "/profile", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartFlow(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "cart@example.com")
	p := a.seedProduct(t, "Dress", "40.00", true)
	key := fmt.Sprint(p.ID)

	rec, out := a.do(t, http.MethodGet, "/cart", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sub(out, "cart"))

	a.do(t, http.MethodPost, "/cart/add", echo.Map{"product_id": p.ID}, token)
	rec, out = a.do(t, http.MethodPost, "/cart/add", echo.Map{"product_id": p.ID, "quantity": 2}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), sub(out, "cart")[key])

	rec, out = a.do(t, http.MethodPost, "/cart/remove", echo.Map{"product_id": p.ID, "quantity": 10}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sub(out, "cart"))

	rec, _ = a.do(t, http.MethodPost, "/cart/add", echo.Map{"product_id": 9999}, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderLifecycle(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "buyer@example.com")
	p := a.seedProduct(t, "Dress", "25.00", true)

	a.do(t, http.MethodPost, "/cart/add", echo.Map{"product_id": p.ID, "quantity": 2}, token)

	rec, out := a.do(t, http.MethodPost, "/orders", orderBody(p.ID, 2, "stripe"), token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := sub(out, "order")
	assert.True(t, decimal.RequireFromString(order["total_amount"].(string)).Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "pending", order["status"])
	intent := sub(order, "payment_intent")
	require.NotNil(t, intent)
	intentID := intent["id"].(string)
	orderID := int64(order["id"].(float64))

	// 注文した商品はカートから消える
	_, out = a.do(t, http.MethodGet, "/cart", nil, token)
	assert.Empty(t, sub(out, "cart"))

	rec, out = a.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/confirm-payment", orderID), echo.Map{"payment_intent_id": intentID}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "processing", sub(out, "order")["status"])
	assert.Equal(t, "completed", sub(out, "order")["payment_status"])

	// 他人には見えない
	other := a.signup(t, "other@example.com")
	rec, _ = a.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", orderID), nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out = a.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/cancel", orderID), nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", out["status"])
	assert.Equal(t, "refunded", out["refund_status"])
	assert.Equal(t, "refunded", out["payment_status"])
	assert.Equal(t, 1, a.gateway.refunds)

	rec, out = a.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/cancel", orderID), nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "order cannot be cancelled", errMessage(out))
	assert.Equal(t, 1, a.gateway.refunds)

	rec, out = a.do(t, http.MethodGet, "/orders?page=1&limit=10", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["total"])
}

func TestConfirmPayment_CancelledWhileGatewayResponds(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "buyer@example.com")
	p := a.seedProduct(t, "Dress", "25.00", true)

	_, out := a.do(t, http.MethodPost, "/orders", orderBody(p.ID, 1, "stripe"), token)
	order := sub(out, "order")
	orderID := int64(order["id"].(float64))
	intentID := sub(order, "payment_intent")["id"].(string)

	a.gateway.onConfirm = func(string) {
		rec, _ := a.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/cancel", orderID), nil, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec, out := a.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/confirm-payment", orderID), echo.Map{"payment_intent_id": intentID}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "order cannot be confirmed", errMessage(out))

	var o model.Order
	require.NoError(t, a.db.First(&o, orderID).Error)
	assert.Equal(t, model.OrderStatusCancelled, o.Status)
	assert.Equal(t, model.PaymentStatusPending, o.PaymentStatus)
}

func TestConfirmPayment_ForeignIntentRejected(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "buyer@example.com")
	cheap := a.seedProduct(t, "Socks", "1.00", true)
	pricey := a.seedProduct(t, "Coat", "500.00", true)

	_, out := a.do(t, http.MethodPost, "/orders", orderBody(cheap.ID, 1, "stripe"), token)
	first := sub(out, "order")
	firstID := int64(first["id"].(float64))
	cheapIntent := sub(first, "payment_intent")["id"].(string)
	rec, _ := a.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/confirm-payment", firstID), echo.Map{"payment_intent_id": cheapIntent}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, out = a.do(t, http.MethodPost, "/orders", orderBody(pricey.ID, 1, "cash_on_delivery"), token)
	secondID := int64(sub(out, "order")["id"].(float64))
	path := fmt.Sprintf("/orders/%d/confirm-payment", secondID)

	// 別の注文のintent
	rec, out = a.do(t, http.MethodPost, path, echo.Map{"payment_intent_id": cheapIntent}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "payment intent does not belong to order", errMessage(out))

	// 注文に紐付かない少額のintent
	_, out = a.do(t, http.MethodPost, "/payments/create-intent", echo.Map{"amount": "1.00", "currency": "usd"}, token)
	small := out["payment_intent_id"].(string)
	rec, out = a.do(t, http.MethodPost, path, echo.Map{"payment_intent_id": small}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "payment amount does not match order total", errMessage(out))

	var o model.Order
	require.NoError(t, a.db.First(&o, secondID).Error)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, model.PaymentStatusPending, o.PaymentStatus)
	assert.Nil(t, o.PaymentIntentID)

	// 金額の合うintentなら付けられる
	_, out = a.do(t, http.MethodPost, "/payments/create-intent", echo.Map{"amount": "500.00", "currency": "usd"}, token)
	exact := out["payment_intent_id"].(string)
	rec, out = a.do(t, http.MethodPost, path, echo.Map{"payment_intent_id": exact}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, exact, sub(out, "order")["payment_intent_id"])
	assert.Equal(t, "completed", sub(out, "order")["payment_status"])
}

func TestOrderKeepsPricesAfterCatalogChange(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "buyer@example.com")
	admin := a.adminToken(t)
	p := a.seedProduct(t, "Dress", "25.00", true)

	_, out := a.do(t, http.MethodPost, "/orders", orderBody(p.ID, 2, "cash_on_delivery"), token)
	orderID := int64(sub(out, "order")["id"].(float64))

	rec, _ := a.do(t, http.MethodPut, fmt.Sprintf("/admin/products/%d", p.ID), echo.Map{
		"name": "Dress", "category": "women", "new_price": "99.00", "old_price": "120.00", "available": true,
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, out = a.do(t, http.MethodGet, fmt.Sprintf("/orders/%d", orderID), nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	order := sub(out, "order")
	assert.True(t, decimal.RequireFromString(order["total_amount"].(string)).Equal(decimal.NewFromInt(50)))

	items, _ := order["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.True(t, decimal.RequireFromString(item["unit_price_snapshot"].(string)).Equal(decimal.NewFromInt(25)))
	assert.Equal(t, "Dress", item["product_name_snapshot"])
}

func TestRefund_PartialThenCancelRefundsRest(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "buyer@example.com")
	p := a.seedProduct(t, "Dress", "20.00", true)

	_, out := a.do(t, http.MethodPost, "/orders", orderBody(p.ID, 1, "stripe"), token)
	order := sub(out, "order")
	orderID := int64(order["id"].(float64))
	intentID := sub(order, "payment_intent")["id"].(string)
	a.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/confirm-payment", orderID), echo.Map{"payment_intent_id": intentID}, token)

	rec, _ := a.do(t, http.MethodPost, "/payments/refund", echo.Map{"payment_intent_id": intentID, "amount": "5.00"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var o model.Order
	require.NoError(t, a.db.First(&o, orderID).Error)
	assert.Equal(t, model.PaymentStatusCompleted, o.PaymentStatus)

	rec, out = a.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/cancel", orderID), nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "refunded", out["refund_status"])
	assert.Equal(t, 2, a.gateway.refunds)

	// キャンセル後の返金はキャンセル側の責務
	rec, out = a.do(t, http.MethodPost, "/payments/refund", echo.Map{"payment_intent_id": intentID}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cancelled order is refunded by cancellation", errMessage(out))
	assert.Equal(t, 2, a.gateway.refunds)
}

func TestCreateOrder_UnavailableProductPersistsNothing(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "buyer@example.com")
	p := a.seedProduct(t, "Sold Out", "10.00", false)

	rec, out := a.do(t, http.MethodPost, "/orders", orderBody(p.ID, 1, "stripe"), token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "product not available: Sold Out", errMessage(out))

	var n int64
	require.NoError(t, a.db.Model(&model.Order{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, a.gateway.intents)
}

func TestConfirmPayment_NotSucceeded(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "buyer@example.com")
	p := a.seedProduct(t, "Scarf", "13.00", true)

	_, out := a.do(t, http.MethodPost, "/orders", orderBody(p.ID, 1, "stripe"), token)
	order := sub(out, "order")
	orderID := int64(order["id"].(float64))
	intentID := sub(order, "payment_intent")["id"].(string)

	rec, out := a.do(t, http.MethodPost, fmt.Sprintf("/orders/%d/confirm-payment", orderID), echo.Map{"payment_intent_id": intentID}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "payment not completed", errMessage(out))

	var o model.Order
	require.NoError(t, a.db.First(&o, orderID).Error)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, model.PaymentStatusPending, o.PaymentStatus)
}

func TestAdminRoutes(t *testing.T) {
	a := newTestApp(t, testConfig())
	userToken := a.signup(t, "user@example.com")
	adminToken := a.adminToken(t)

	body := echo.Map{"name": "Coat", "category": "women", "new_price": "80.00", "old_price": "120.00", "available": true}

	rec, _ := a.do(t, http.MethodPost, "/admin/products", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, out := a.do(t, http.MethodPost, "/admin/products", body, userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin only", errMessage(out))

	rec, out = a.do(t, http.MethodPost, "/admin/products", body, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	productID := int64(sub(out, "product")["id"].(float64))

	rec, out = a.do(t, http.MethodGet, fmt.Sprintf("/products/%d", productID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Coat", sub(out, "product")["name"])

	// 注文を作ってステータスを更新
	_, out = a.do(t, http.MethodPost, "/orders", orderBody(productID, 1, "cash_on_delivery"), userToken)
	orderID := int64(sub(out, "order")["id"].(float64))

	rec, _ = a.do(t, http.MethodPut, fmt.Sprintf("/orders/%d/status", orderID), echo.Map{"status": "shipped"}, userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out = a.do(t, http.MethodPut, fmt.Sprintf("/orders/%d/status", orderID), echo.Map{"status": "shipped", "tracking_number": "TRK-1"}, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "shipped", sub(out, "order")["status"])
	assert.Equal(t, "TRK-1", sub(out, "order")["tracking_number"])

	rec, out = a.do(t, http.MethodGet, "/orders/stats", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), sub(out, "stats")["total_orders"])

	var logs []model.AuditLog
	require.NoError(t, a.db.Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, model.AuditActionCreateProduct, logs[0].Action)
	assert.Equal(t, model.AuditActionUpdateOrderStatus, logs[1].Action)

	rec, out = a.do(t, http.MethodGet, "/admin/audit-logs?action=update_order_status", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), out["count"])

	rec, _ = a.do(t, http.MethodGet, "/admin/audit-logs", nil, userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/admin/products/%d", productID), nil, adminToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = a.do(t, http.MethodGet, fmt.Sprintf("/products/%d", productID), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "buyer@example.com")
	p := a.seedProduct(t, "Dress", "20.00", true)

	_, out := a.do(t, http.MethodPost, "/orders", orderBody(p.ID, 1, "stripe"), token)
	order := sub(out, "order")
	orderID := int64(order["id"].(float64))
	intentID := sub(order, "payment_intent")["id"].(string)

	post := func(sig string, payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(payload))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("Stripe-Signature", sig)
		rec := httptest.NewRecorder()
		a.e.ServeHTTP(rec, req)
		return rec
	}

	rec := post("bad", `{"type":"payment_intent.succeeded","pi":"`+intentID+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post("good", `{"type":"payment_intent.succeeded","pi":"`+intentID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	var o model.Order
	require.NoError(t, a.db.First(&o, orderID).Error)
	assert.Equal(t, model.OrderStatusProcessing, o.Status)
	assert.Equal(t, model.PaymentStatusCompleted, o.PaymentStatus)
}

func TestPayments(t *testing.T) {
	a := newTestApp(t, testConfig())
	token := a.signup(t, "payer@example.com")
	other := a.signup(t, "other@example.com")

	rec, out := a.do(t, http.MethodPost, "/payments/create-intent", echo.Map{"amount": "12.50", "currency": "eur"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	intentID := out["payment_intent_id"].(string)
	assert.NotEmpty(t, out["client_secret"])

	rec, _ = a.do(t, http.MethodGet, "/payments/intent/"+intentID, nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out = a.do(t, http.MethodGet, "/payments/intent/"+intentID, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "eur", sub(out, "payment_intent")["currency"])

	rec, _ = a.do(t, http.MethodGet, "/payments/methods", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out = a.do(t, http.MethodPost, "/payments/customer", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cus_payer", sub(out, "customer")["id"])

	rec, out = a.do(t, http.MethodPost, "/payments/setup-intent", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "seti_cus_payer", out["setup_intent_id"])

	rec, _ = a.do(t, http.MethodPost, "/payments/create-intent", echo.Map{"amount": "0"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStrictRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitStrict = 2
	a := newTestApp(t, cfg)

	login := echo.Map{"email": "nobody@example.com", "password": "Passw0rd"}
	for i := 0; i < 2; i++ {
		rec, _ := a.do(t, http.MethodPost, "/auth/login", login, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec, out := a.do(t, http.MethodPost, "/auth/login", login, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too many requests, please try again later", errMessage(out))

	// /productsは全体の上限だけ
	rec, _ = a.do(t, http.MethodGet, "/products?page=1&limit=10", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
