package payments

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/internal/coupons"
	"github.com/danielvega-dev/shoplane-backend/internal/inventory"
	"github.com/danielvega-dev/shoplane-backend/internal/ledger"
	"github.com/danielvega-dev/shoplane-backend/internal/orders"
	"github.com/danielvega-dev/shoplane-backend/pkg/config"
	dbpkg "github.com/danielvega-dev/shoplane-backend/pkg/db"
	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/outbox"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
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
);`, `
CREATE TABLE IF NOT EXISTS payment_attempts (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  method TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  provider TEXT NOT NULL,
  provider_tx_id TEXT NOT NULL,
  redirect_url TEXT,
  failure_reason TEXT,
  metadata TEXT,
  expires_at DATETIME,
  settled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (order_id, provider_tx_id)
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{keys: map[string]struct{}{}}
}

func (g *memoryGuard) SettlementGuardKey(orderID, providerTxID string) string {
	return "settlement:" + orderID + ":" + providerTxID
}

func (g *memoryGuard) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.keys[key]; ok {
		return false, nil
	}
	g.keys[key] = struct{}{}
	return true, nil
}

func (g *memoryGuard) Del(ctx context.Context, keys ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		delete(g.keys, key)
	}
	return nil
}

type fakeIntentClient struct {
	failWith error
	status   stripe.PaymentIntentStatus
	intents  map[string]*stripe.PaymentIntent
}

func newFakeIntentClient() *fakeIntentClient {
	return &fakeIntentClient{intents: map[string]*stripe.PaymentIntent{}}
}

func (f *fakeIntentClient) CreateIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	status := f.status
	if status == "" {
		status = stripe.PaymentIntentStatusSucceeded
	}
	metadata := map[string]string{}
	for key, value := range params.Metadata {
		metadata[key] = value
	}
	intent := &stripe.PaymentIntent{
		ID:       "pi_" + uuid.NewString()[:12],
		Amount:   *params.Amount,
		Status:   status,
		Metadata: metadata,
	}
	f.intents[intent.ID] = intent
	return intent, nil
}

func (f *fakeIntentClient) GetIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	intent, ok := f.intents[id]
	if !ok {
		return nil, &stripe.Error{Code: stripe.ErrorCodeResourceMissing}
	}
	return intent, nil
}

type paymentsTestEnv struct {
	db       *gorm.DB
	svc      Service
	orders   orders.Service
	guard    *memoryGuard
	card     *fakeIntentClient
	notifier *settledRecorder
}

type settledEvent struct {
	userID  uuid.UUID
	orderID uuid.UUID
}

type settledRecorder struct {
	events []settledEvent
}

func (r *settledRecorder) PaymentSettled(_ context.Context, userID uuid.UUID, order *models.Order) {
	r.events = append(r.events, settledEvent{userID: userID, orderID: order.ID})
}

const testWalletSecret = "wallet-test-secret"

func newPaymentsTestEnv(t *testing.T) *paymentsTestEnv {
	t.Helper()

	db := setupPaymentsTestDB(t)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.NewRepository(db))
	require.NoError(t, err)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)

	orderSvc, err := orders.NewService(
		orders.NewRepository(db),
		dbpkg.NewWithConn(db),
		outboxSvc,
		couponSvc,
		inventory.NewRepository(db),
		ledgerSvc,
		nil,
		orders.Pricing{TaxRateBps: 800, ShippingFlatCents: 500},
	)
	require.NoError(t, err)

	cardClient := newFakeIntentClient()
	cardGW, err := NewCardGateway(cardClient)
	require.NoError(t, err)
	walletGW := NewWalletGateway(config.WalletConfig{
		SharedSecret:    testWalletSecret,
		RedirectBaseURL: "https://wallet.example.test/pay",
		PendingTTL:      30 * time.Minute,
	})
	guard := newMemoryGuard()
	notifier := &settledRecorder{}

	svc, err := NewService(
		NewRepository(db),
		dbpkg.NewWithConn(db),
		guard,
		orderSvc,
		ledgerSvc,
		outboxSvc,
		notifier,
		nil,
		nil,
		cardGW,
		walletGW,
		NewManualGateway(),
	)
	require.NoError(t, err)

	return &paymentsTestEnv{db: db, svc: svc, orders: orderSvc, guard: guard, card: cardClient, notifier: notifier}
}

func (e *paymentsTestEnv) newVendor(t *testing.T, name string, commissionRate int64) *models.Vendor {
	t.Helper()
	vendor := &models.Vendor{
		ID:             uuid.New(),
		OwnerUserID:    uuid.New(),
		Name:           name,
		Email:          uuid.NewString() + "@vendor.test",
		CommissionRate: decimal.NewFromInt(commissionRate),
		IsActive:       true,
	}
	require.NoError(t, e.db.Create(vendor).Error)
	return vendor
}

func (e *paymentsTestEnv) newProduct(t *testing.T, vendor *models.Vendor, name string, priceCents, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		VendorID:   vendor.ID,
		Name:       name,
		Category:   "general",
		PriceCents: priceCents,
		IsActive:   true,
	}
	require.NoError(t, e.db.Create(product).Error)
	require.NoError(t, e.db.Create(&models.InventoryItem{
		ProductID:    product.ID,
		AvailableQty: stock,
	}).Error)
	return product
}

func (e *paymentsTestEnv) place(t *testing.T, customerID uuid.UUID, method enums.PaymentMethod, couponCode *string, items ...orders.PlaceOrderItem) *models.Order {
	t.Helper()
	order, err := e.orders.Place(context.Background(), orders.PlaceOrderInput{
		Actor:         orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer},
		PaymentMethod: method,
		CouponCode:    couponCode,
		Items:         items,
	})
	require.NoError(t, err)
	return order
}

func (e *paymentsTestEnv) reloadOrder(t *testing.T, orderID uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, e.db.Preload("Items").Where("id = ?", orderID).First(&order).Error)
	return &order
}

func (e *paymentsTestEnv) vendorBalance(t *testing.T, vendorID uuid.UUID) int {
	t.Helper()
	var vendor models.Vendor
	require.NoError(t, e.db.Where("id = ?", vendorID).First(&vendor).Error)
	return vendor.BalanceCents
}

func (e *paymentsTestEnv) attemptCount(t *testing.T, orderID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&models.PaymentAttempt{}).Where("order_id = ?", orderID).Count(&count).Error)
	return count
}

// walletCallbackParams pulls the payment id and signature out of the
// redirect URL the wallet adapter hands the customer.
func walletCallbackParams(t *testing.T, attempt *models.PaymentAttempt) (string, string) {
	t.Helper()
	require.NotNil(t, attempt.RedirectURL)
	parsed, err := url.Parse(*attempt.RedirectURL)
	require.NoError(t, err)
	query := parsed.Query()
	return query.Get("paymentId"), query.Get("sig")
}

func TestInitiateCardCapturesAndSettles(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Card Vendor", 10)
	product := env.newProduct(t, vendor, "Keyboard", 5000, 5)
	customerID := uuid.New()
	order := env.place(t, customerID, enums.PaymentMethodCard, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})

	attempt, err := env.svc.Initiate(context.Background(), InitiateInput{
		OrderID:      order.ID,
		Actor:        orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer},
		PaymentToken: "pm_card_visa",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentAttemptStatusSucceeded, attempt.Status)
	assert.Equal(t, ProviderStripe, attempt.Provider)
	assert.Equal(t, order.TotalCents, attempt.AmountCents)
	require.NotNil(t, attempt.SettledAt)

	reloaded := env.reloadOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
	require.NotNil(t, reloaded.PaidAt)

	// Vendor gross excludes tax and shipping, commission 10% of 5000.
	assert.Equal(t, 4500, env.vendorBalance(t, vendor.ID))

	var item models.InventoryItem
	require.NoError(t, env.db.Where("product_id = ?", product.ID).First(&item).Error)
	assert.Equal(t, 0, item.ReservedQty)

	var events int64
	require.NoError(t, env.db.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventPaymentSettled, order.ID).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestInitiateRequiresOrderOwnership(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Owner Vendor", 10)
	product := env.newProduct(t, vendor, "Mug", 1200, 3)
	order := env.place(t, uuid.New(), enums.PaymentMethodCard, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})

	_, err := env.svc.Initiate(context.Background(), InitiateInput{
		OrderID:      order.ID,
		Actor:        orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleCustomer},
		PaymentToken: "pm_card_visa",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestInitiateRejectsSettledOrder(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Paid Vendor", 10)
	product := env.newProduct(t, vendor, "Poster", 2500, 4)
	customerID := uuid.New()
	order := env.place(t, customerID, enums.PaymentMethodCard, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})
	actor := orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer}

	_, err := env.svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, Actor: actor, PaymentToken: "pm_card_visa"})
	require.NoError(t, err)

	_, err = env.svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, Actor: actor, PaymentToken: "pm_card_visa"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestInitiateWalletIsPendingAndIdempotent(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Wallet Vendor", 10)
	product := env.newProduct(t, vendor, "Lamp", 3000, 2)
	customerID := uuid.New()
	order := env.place(t, customerID, enums.PaymentMethodWallet, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})
	actor := orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer}

	attempt, err := env.svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentAttemptStatusPending, attempt.Status)
	assert.Equal(t, ProviderWallet, attempt.Provider)
	require.NotNil(t, attempt.ExpiresAt)

	paymentID, sig := walletCallbackParams(t, attempt)
	assert.Equal(t, attempt.ProviderTxID, paymentID)
	assert.Len(t, sig, 64)

	again, err := env.svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, again.ID)
	assert.Equal(t, int64(1), env.attemptCount(t, order.ID))
}

func TestConfirmWalletSettlesExactlyOnce(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Once Vendor", 10)
	product := env.newProduct(t, vendor, "Chair", 10000, 2)
	customerID := uuid.New()
	order := env.place(t, customerID, enums.PaymentMethodWallet, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})
	actor := orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer}

	attempt, err := env.svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)
	paymentID, sig := walletCallbackParams(t, attempt)

	input := WalletConfirmInput{
		OrderID:     order.ID,
		PaymentID:   paymentID,
		Signature:   sig,
		AmountCents: order.TotalCents,
	}
	require.NoError(t, env.svc.ConfirmWallet(context.Background(), input))

	reloaded := env.reloadOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
	assert.Equal(t, 9000, env.vendorBalance(t, vendor.ID))
	require.Len(t, env.notifier.events, 1)
	assert.Equal(t, customerID, env.notifier.events[0].userID)
	assert.Equal(t, order.ID, env.notifier.events[0].orderID)

	// A replayed callback is acknowledged without moving money again.
	require.NoError(t, env.svc.ConfirmWallet(context.Background(), input))
	assert.Equal(t, 9000, env.vendorBalance(t, vendor.ID))
	assert.Equal(t, int64(1), env.attemptCount(t, order.ID))
	assert.Len(t, env.notifier.events, 1)
}

func TestConfirmWalletRejectsBadSignature(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Sig Vendor", 10)
	product := env.newProduct(t, vendor, "Rug", 7000, 1)
	customerID := uuid.New()
	order := env.place(t, customerID, enums.PaymentMethodWallet, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})
	actor := orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer}

	attempt, err := env.svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)
	paymentID, _ := walletCallbackParams(t, attempt)

	err = env.svc.ConfirmWallet(context.Background(), WalletConfirmInput{
		OrderID:     order.ID,
		PaymentID:   paymentID,
		Signature:   "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		AmountCents: order.TotalCents,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification))

	reloaded := env.reloadOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusPlaced, reloaded.Status)
	assert.Zero(t, env.vendorBalance(t, vendor.ID))

	var stored models.PaymentAttempt
	require.NoError(t, env.db.Where("id = ?", attempt.ID).First(&stored).Error)
	assert.Equal(t, enums.PaymentAttemptStatusFailed, stored.Status)
}

func TestConfirmWalletRejectsExpiredAttempt(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Expiry Vendor", 10)
	product := env.newProduct(t, vendor, "Vase", 4000, 1)
	customerID := uuid.New()
	order := env.place(t, customerID, enums.PaymentMethodWallet, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})
	actor := orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer}

	attempt, err := env.svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)
	paymentID, sig := walletCallbackParams(t, attempt)

	stale := time.Now().Add(-time.Minute)
	require.NoError(t, env.db.Model(&models.PaymentAttempt{}).
		Where("id = ?", attempt.ID).
		Update("expires_at", stale).Error)

	err = env.svc.ConfirmWallet(context.Background(), WalletConfirmInput{
		OrderID:     order.ID,
		PaymentID:   paymentID,
		Signature:   sig,
		AmountCents: order.TotalCents,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	var stored models.PaymentAttempt
	require.NoError(t, env.db.Where("id = ?", attempt.ID).First(&stored).Error)
	assert.Equal(t, enums.PaymentAttemptStatusExpired, stored.Status)
	assert.Equal(t, enums.OrderStatusPlaced, env.reloadOrder(t, order.ID).Status)
}

func TestConfirmWalletAmountMismatchLeavesOrderUnpaid(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Amount Vendor", 10)
	product := env.newProduct(t, vendor, "Clock", 6000, 1)
	customerID := uuid.New()
	order := env.place(t, customerID, enums.PaymentMethodWallet, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})
	actor := orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer}

	attempt, err := env.svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)
	paymentID, sig := walletCallbackParams(t, attempt)

	err = env.svc.ConfirmWallet(context.Background(), WalletConfirmInput{
		OrderID:     order.ID,
		PaymentID:   paymentID,
		Signature:   sig,
		AmountCents: order.TotalCents - 1,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification))
	assert.Equal(t, enums.OrderStatusPlaced, env.reloadOrder(t, order.ID).Status)

	// The guard is released on failure, so a corrected callback settles.
	require.NoError(t, env.svc.ConfirmWallet(context.Background(), WalletConfirmInput{
		OrderID:     order.ID,
		PaymentID:   paymentID,
		Signature:   sig,
		AmountCents: order.TotalCents,
	}))
	assert.Equal(t, enums.OrderStatusPaid, env.reloadOrder(t, order.ID).Status)
}

func TestSettleManualRequiresAdminAndDeferredMethod(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Manual Vendor", 10)
	product := env.newProduct(t, vendor, "Bookshelf", 8000, 2)
	customerID := uuid.New()
	deferred := env.place(t, customerID, enums.PaymentMethodBankTransfer, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})
	card := env.place(t, customerID, enums.PaymentMethodCard, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})

	err := env.svc.SettleManual(context.Background(), ManualSettleInput{
		OrderID: deferred.ID,
		Actor:   orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	admin := orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	err = env.svc.SettleManual(context.Background(), ManualSettleInput{OrderID: card.ID, Actor: admin})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	require.NoError(t, env.svc.SettleManual(context.Background(), ManualSettleInput{OrderID: deferred.ID, Actor: admin}))
	assert.Equal(t, enums.OrderStatusPaid, env.reloadOrder(t, deferred.ID).Status)
	assert.Equal(t, 7200, env.vendorBalance(t, vendor.ID))

	var stored models.PaymentAttempt
	require.NoError(t, env.db.Where("order_id = ?", deferred.ID).First(&stored).Error)
	assert.Equal(t, "manual-"+deferred.ID.String(), stored.ProviderTxID)

	// A second admin settle collides with the applied settlement.
	require.NoError(t, env.svc.SettleManual(context.Background(), ManualSettleInput{OrderID: deferred.ID, Actor: admin}))
	assert.Equal(t, 7200, env.vendorBalance(t, vendor.ID))
	assert.Equal(t, int64(1), env.attemptCount(t, deferred.ID))
}

func TestSettleManualSplitsDiscountAcrossVendors(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendorA := env.newVendor(t, "Split Vendor A", 10)
	vendorB := env.newVendor(t, "Split Vendor B", 20)
	productA := env.newProduct(t, vendorA, "Table", 3000, 2)
	productB := env.newProduct(t, vendorB, "Stool", 2000, 2)

	code := "SPLIT10"
	require.NoError(t, env.db.Create(&models.Coupon{
		ID:            uuid.New(),
		Code:          code,
		DiscountType:  enums.CouponDiscountPercentage,
		DiscountValue: 10,
		Scope:         enums.CouponScopeAll,
		IsActive:      true,
	}).Error)

	customerID := uuid.New()
	order := env.place(t, customerID, enums.PaymentMethodCashOnDelivery, &code,
		orders.PlaceOrderItem{ProductID: productA.ID, Qty: 1},
		orders.PlaceOrderItem{ProductID: productB.ID, Qty: 1},
	)
	require.Equal(t, 500, order.DiscountCents)

	admin := orders.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}
	require.NoError(t, env.svc.SettleManual(context.Background(), ManualSettleInput{OrderID: order.ID, Actor: admin}))

	// Vendor A: gross 3000-300=2700, 10% commission -> 2430.
	// Vendor B: gross 2000-200=1800, 20% commission -> 1440.
	assert.Equal(t, 2430, env.vendorBalance(t, vendorA.ID))
	assert.Equal(t, 1440, env.vendorBalance(t, vendorB.ID))

	var entries int64
	require.NoError(t, env.db.Model(&models.LedgerEntry{}).
		Where("order_id = ? AND type = ?", order.ID, enums.LedgerEntryTypeSaleCredit).
		Count(&entries).Error)
	assert.Equal(t, int64(2), entries)
}

func TestExpirePendingFlipsStaleAttempts(t *testing.T) {
	env := newPaymentsTestEnv(t)
	vendor := env.newVendor(t, "Stale Vendor", 10)
	product := env.newProduct(t, vendor, "Shelf", 2000, 4)
	customerID := uuid.New()
	order := env.place(t, customerID, enums.PaymentMethodWallet, nil, orders.PlaceOrderItem{ProductID: product.ID, Qty: 1})
	actor := orders.Actor{UserID: customerID, Role: enums.ActorRoleCustomer}

	attempt, err := env.svc.Initiate(context.Background(), InitiateInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.PaymentAttempt{}).
		Where("id = ?", attempt.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	flipped, err := env.svc.ExpirePending(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)

	var stored models.PaymentAttempt
	require.NoError(t, env.db.Where("id = ?", attempt.ID).First(&stored).Error)
	assert.Equal(t, enums.PaymentAttemptStatusExpired, stored.Status)

	flipped, err = env.svc.ExpirePending(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, flipped)
}

func TestVendorGrossSharesDistributesRemainder(t *testing.T) {
	vendorA := uuid.New()
	vendorB := uuid.New()
	vendorC := uuid.New()
	order := &models.Order{
		SubtotalCents: 10000,
		DiscountCents: 100,
		Items: []models.OrderLineItem{
			{VendorID: vendorA, TotalCents: 3333},
			{VendorID: vendorB, TotalCents: 3333},
			{VendorID: vendorC, TotalCents: 3334},
		},
	}

	shares := vendorGrossShares(order)
	total := 0
	for _, share := range shares {
		total += share
	}
	assert.Equal(t, order.SubtotalCents-order.DiscountCents, total)
	for vendorID, share := range shares {
		assert.Greater(t, share, 3200, vendorID.String())
	}
}
