package repository

import (
	"fmt"
	"testing"

	"shopapi/internal/domain/model"
	"shopapi/internal/infra/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// テストごとに別のインメモリDB
func newTestDB(t *testing.T) *gorm.DB {
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
	return gdb
}

func seedProduct(t *testing.T, gdb *gorm.DB, name string, category model.Category, price string) model.Product {
	t.Helper()

	p := model.Product{
		Name:      name,
		Category:  category,
		NewPrice:  decimal.RequireFromString(price),
		OldPrice:  decimal.RequireFromString(price),
		Available: true,
	}
	require.NoError(t, gdb.Create(&p).Error)
	return p
}

func seedOrder(t *testing.T, gdb *gorm.DB, userID int64, status model.OrderStatus, payment model.PaymentStatus, total string) model.Order {
	t.Helper()

	o := model.Order{
		UserID:        userID,
		Status:        status,
		TotalAmount:   decimal.RequireFromString(total),
		Currency:      "usd",
		PaymentMethod: model.PaymentMethodStripe,
		PaymentStatus: payment,
		ShippingAddress: model.ShippingAddress{
			Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "US",
		},
	}
	require.NoError(t, gdb.Create(&o).Error)
	return o
}
