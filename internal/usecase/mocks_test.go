package usecase_test

import (
	"context"
	"testing"

	"shopapi/internal/domain/model"
	repo "shopapi/internal/repository"
	"shopapi/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定する。
// fnのエラーはそのまま返す（rollback相当）
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.Called(ctx)
	return fn(m.Repos)
}

// 注文だけを使うusecase向け
func newOrdersTxMock(orders *OrderRepoMock) *TxManagerMock {
	tx := &TxManagerMock{Repos: &TxReposMock{orders: orders}}
	tx.On("WithinTx", mock.Anything).Return()
	return tx
}

type TxReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	cartItems  repo.CartItemRepository
	products   repo.ProductRepository
}

func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *TxReposMock) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *TxReposMock) Products() repo.ProductRepository     { return r.products }

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

var _ repo.OrderRepository = (*OrderRepoMock)(nil)

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) FindByPaymentIntentID(ctx context.Context, intentID string) (model.Order, error) {
	args := m.Called(ctx, intentID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUser(ctx context.Context, f repo.OrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) SetPaymentIntentID(ctx context.Context, orderID int64, intentID string) error {
	return m.Called(ctx, orderID, intentID).Error(0)
}

func (m *OrderRepoMock) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	return m.Called(ctx, orderID, status).Error(0)
}

func (m *OrderRepoMock) UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error {
	return m.Called(ctx, orderID, status).Error(0)
}

func (m *OrderRepoMock) UpdateStatuses(ctx context.Context, orderID int64, status model.OrderStatus, paymentStatus model.PaymentStatus) error {
	return m.Called(ctx, orderID, status, paymentStatus).Error(0)
}

func (m *OrderRepoMock) ApplyStatusPatch(ctx context.Context, orderID int64, p repo.OrderStatusPatch) error {
	return m.Called(ctx, orderID, p).Error(0)
}

func (m *OrderRepoMock) StatsByStatus(ctx context.Context) ([]repo.OrderStatusStat, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).([]repo.OrderStatusStat)
	return stats, args.Error(1)
}

func (m *OrderRepoMock) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) CompletedRevenue(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type OrderItemRepoMock struct{ mock.Mock }

var _ repo.OrderItemRepository = (*OrderItemRepoMock)(nil)

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	return m.Called(ctx, orderID, items).Error(0)
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

func (m *OrderItemRepoMock) ListByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	args := m.Called(ctx, orderIDs)
	items, _ := args.Get(0).(map[int64][]model.OrderItem)
	return items, args.Error(1)
}

type CartItemRepoMock struct{ mock.Mock }

var _ repo.CartItemRepository = (*CartItemRepoMock)(nil)

func (m *CartItemRepoMock) ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, userID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *CartItemRepoMock) Add(ctx context.Context, userID int64, productID int64, qty int64) error {
	return m.Called(ctx, userID, productID, qty).Error(0)
}

func (m *CartItemRepoMock) Remove(ctx context.Context, userID int64, productID int64, qty int64) error {
	return m.Called(ctx, userID, productID, qty).Error(0)
}

func (m *CartItemRepoMock) DeleteProducts(ctx context.Context, userID int64, productIDs []int64) error {
	return m.Called(ctx, userID, productIDs).Error(0)
}

type ProductRepoMock struct{ mock.Mock }

var _ repo.ProductRepository = (*ProductRepoMock)(nil)

func (m *ProductRepoMock) List(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	ps, _ := args.Get(0).([]model.Product)
	return ps, args.Get(1).(int64), args.Error(2)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) Search(ctx context.Context, q string, limit int) ([]model.Product, error) {
	args := m.Called(ctx, q, limit)
	ps, _ := args.Get(0).([]model.Product)
	return ps, args.Error(1)
}

func (m *ProductRepoMock) Latest(ctx context.Context, limit int) ([]model.Product, error) {
	args := m.Called(ctx, limit)
	ps, _ := args.Get(0).([]model.Product)
	return ps, args.Error(1)
}

func (m *ProductRepoMock) FirstInCategory(ctx context.Context, category model.Category, limit int) ([]model.Product, error) {
	args := m.Called(ctx, category, limit)
	ps, _ := args.Get(0).([]model.Product)
	return ps, args.Error(1)
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).(model.Product)
	return out, args.Error(1)
}

func (m *ProductRepoMock) Update(ctx context.Context, p model.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *ProductRepoMock) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type UserRepoMock struct{ mock.Mock }

var _ repo.UserRepository = (*UserRepoMock)(nil)

func (m *UserRepoMock) Create(ctx context.Context, user *model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *UserRepoMock) FindByID(ctx context.Context, userID int64) (model.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) FindByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) UpdateLastLogin(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *UserRepoMock) SetStripeCustomerID(ctx context.Context, userID int64, customerID string) error {
	return m.Called(ctx, userID, customerID).Error(0)
}

type AuditRepoMock struct{ mock.Mock }

var _ repo.AuditLogRepository = (*AuditRepoMock)(nil)

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, f)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

// =====================
// PaymentGateway mock
// =====================

type GatewayMock struct{ mock.Mock }

var _ usecase.PaymentGateway = (*GatewayMock)(nil)

func (m *GatewayMock) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (model.PaymentIntent, error) {
	args := m.Called(ctx, amount, currency, metadata)
	pi, _ := args.Get(0).(model.PaymentIntent)
	return pi, args.Error(1)
}

func (m *GatewayMock) GetPaymentIntent(ctx context.Context, intentID string) (model.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	pi, _ := args.Get(0).(model.PaymentIntent)
	return pi, args.Error(1)
}

func (m *GatewayMock) ConfirmPaymentIntent(ctx context.Context, intentID string) (model.PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	pi, _ := args.Get(0).(model.PaymentIntent)
	return pi, args.Error(1)
}

func (m *GatewayMock) CancelPaymentIntent(ctx context.Context, intentID string) error {
	return m.Called(ctx, intentID).Error(0)
}

func (m *GatewayMock) CreateRefund(ctx context.Context, intentID string, amount *decimal.Decimal, reason string) (model.Refund, error) {
	args := m.Called(ctx, intentID, amount, reason)
	rf, _ := args.Get(0).(model.Refund)
	return rf, args.Error(1)
}

func (m *GatewayMock) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (model.PaymentCustomer, error) {
	args := m.Called(ctx, email, name, metadata)
	c, _ := args.Get(0).(model.PaymentCustomer)
	return c, args.Error(1)
}

func (m *GatewayMock) GetCustomer(ctx context.Context, customerID string) (model.PaymentCustomer, error) {
	args := m.Called(ctx, customerID)
	c, _ := args.Get(0).(model.PaymentCustomer)
	return c, args.Error(1)
}

func (m *GatewayMock) CreateSetupIntent(ctx context.Context, customerID string) (model.SetupIntent, error) {
	args := m.Called(ctx, customerID)
	si, _ := args.Get(0).(model.SetupIntent)
	return si, args.Error(1)
}

func (m *GatewayMock) ListPaymentMethods(ctx context.Context, customerID string) ([]model.PaymentMethodInfo, error) {
	args := m.Called(ctx, customerID)
	ms, _ := args.Get(0).([]model.PaymentMethodInfo)
	return ms, args.Error(1)
}

func (m *GatewayMock) ParseWebhookEvent(payload []byte, signature string) (model.PaymentEvent, error) {
	args := m.Called(payload, signature)
	ev, _ := args.Get(0).(model.PaymentEvent)
	return ev, args.Error(1)
}

// =====================
// helper
// =====================

func assertHTTPError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "expected HTTPError, got %v", err)
	assert.Equal(t, status, he.Status)
	assert.Equal(t, msg, he.Message)
}

func strPtr(s string) *string { return &s }

func ctx() context.Context { return context.Background() }
