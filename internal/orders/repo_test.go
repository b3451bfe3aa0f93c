package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS vendors (
  id TEXT PRIMARY KEY,
  owner_user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  commission_rate NUMERIC NOT NULL DEFAULT 10,
  balance_cents INTEGER NOT NULL DEFAULT 0,
  total_sales_cents INTEGER NOT NULL DEFAULT 0,
  total_orders INTEGER NOT NULL DEFAULT 0,
  payout_details TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS inventory_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  reserved_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  customer_id TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'placed',
  subtotal_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  payment_method TEXT NOT NULL,
  coupon_id TEXT,
  coupon_code TEXT,
  shipping_address TEXT,
  notes TEXT,
  paid_at DATETIME,
  shipped_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  cancel_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  vendor_id TEXT NOT NULL,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS coupons (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  description TEXT,
  discount_type TEXT NOT NULL,
  discount_value INTEGER NOT NULL,
  min_order_cents INTEGER NOT NULL DEFAULT 0,
  max_discount_cents INTEGER,
  scope TEXT NOT NULL DEFAULT 'all',
  scope_ids TEXT,
  scope_categories TEXT,
  usage_limit INTEGER,
  usage_count INTEGER NOT NULL DEFAULT 0,
  starts_at DATETIME,
  expires_at DATETIME,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS ledger_entries (
  id TEXT PRIMARY KEY,
  vendor_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  gross_cents INTEGER,
  commission_cents INTEGER,
  balance_after_cents INTEGER NOT NULL,
  order_id TEXT,
  payout_id TEXT,
  description TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newVendor(t *testing.T, db *gorm.DB, name string) *models.Vendor {
	t.Helper()

	vendor := &models.Vendor{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		Name:        name,
		Email:       uuid.NewString() + "@vendor.test",
		IsActive:    true,
	}
	require.NoError(t, db.Create(vendor).Error)
	return vendor
}

func newProduct(t *testing.T, db *gorm.DB, vendor *models.Vendor, name string, priceCents, stock int) *models.Product {
	t.Helper()

	product := &models.Product{
		ID:         uuid.New(),
		VendorID:   vendor.ID,
		Name:       name,
		Category:   "general",
		PriceCents: priceCents,
		IsActive:   true,
	}
	require.NoError(t, db.Create(product).Error)
	require.NoError(t, db.Create(&models.InventoryItem{
		ProductID:    product.ID,
		AvailableQty: stock,
	}).Error)
	return product
}

func seedOrder(t *testing.T, db *gorm.DB, customerID uuid.UUID, vendor *models.Vendor, status enums.OrderStatus, created time.Time) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "SL-TEST-" + uuid.NewString()[:8],
		CustomerID:    customerID,
		Currency:      enums.CurrencyUSD,
		Status:        status,
		SubtotalCents: 2000,
		TotalCents:    2000,
		PaymentMethod: enums.PaymentMethodCard,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	require.NoError(t, db.Omit("Items").Create(order).Error)

	item := &models.OrderLineItem{
		ID:             uuid.New(),
		OrderID:        order.ID,
		ProductID:      uuid.New(),
		VendorID:       vendor.ID,
		Name:           "Seeded Item",
		Category:       "general",
		UnitPriceCents: 1000,
		Qty:            2,
		TotalCents:     2000,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	require.NoError(t, db.Create(item).Error)
	order.Items = []models.OrderLineItem{*item}
	return order
}

func TestRepositoryListCustomerOrders_pagination(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	customerID := uuid.New()
	vendor := newVendor(t, db, "Vendor One")

	now := time.Now().UTC()
	older := seedOrder(t, db, customerID, vendor, enums.OrderStatusPlaced, now.Add(-time.Hour))
	newer := seedOrder(t, db, customerID, vendor, enums.OrderStatusPaid, now)
	seedOrder(t, db, uuid.New(), vendor, enums.OrderStatusPlaced, now)

	list, err := repo.ListCustomerOrders(context.Background(), customerID, pagination.Params{Limit: 1}, CustomerOrderFilters{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, newer.ID, list.Orders[0].ID)
	assert.Equal(t, 1, list.Orders[0].TotalItems)
	assert.NotEmpty(t, list.NextCursor)

	second, err := repo.ListCustomerOrders(context.Background(), customerID, pagination.Params{Limit: 1, Cursor: list.NextCursor}, CustomerOrderFilters{})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, older.ID, second.Orders[0].ID)
	assert.Empty(t, second.NextCursor)
}

func TestRepositoryListCustomerOrders_statusFilter(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	customerID := uuid.New()
	vendor := newVendor(t, db, "Vendor Filter")

	now := time.Now().UTC()
	seedOrder(t, db, customerID, vendor, enums.OrderStatusPlaced, now.Add(-time.Minute))
	paid := seedOrder(t, db, customerID, vendor, enums.OrderStatusPaid, now)

	status := enums.OrderStatusPaid
	list, err := repo.ListCustomerOrders(context.Background(), customerID, pagination.Params{Limit: 10}, CustomerOrderFilters{Status: &status})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, paid.ID, list.Orders[0].ID)
	assert.Empty(t, list.NextCursor)
}

func TestRepositoryListVendorOrders_onlyOrdersWithVendorItems(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	vendorA := newVendor(t, db, "Vendor A")
	vendorB := newVendor(t, db, "Vendor B")

	now := time.Now().UTC()
	mine := seedOrder(t, db, uuid.New(), vendorA, enums.OrderStatusPaid, now)
	seedOrder(t, db, uuid.New(), vendorB, enums.OrderStatusPaid, now)

	list, err := repo.ListVendorOrders(context.Background(), vendorA.ID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, mine.ID, list.Orders[0].ID)
}

func TestRepositoryUpdateStatusGuarded_conflict(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	vendor := newVendor(t, db, "Vendor CAS")
	order := seedOrder(t, db, uuid.New(), vendor, enums.OrderStatusPlaced, time.Now().UTC())

	err := repo.UpdateStatusGuarded(context.Background(), order.ID, enums.OrderStatusPlaced, enums.OrderStatusPaid, map[string]any{
		"paid_at": time.Now().UTC(),
	})
	require.NoError(t, err)

	err = repo.UpdateStatusGuarded(context.Background(), order.ID, enums.OrderStatusPlaced, enums.OrderStatusPaid, nil)
	require.Error(t, err)

	reloaded, err := repo.FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
	assert.NotNil(t, reloaded.PaidAt)
}
