package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/internal/coupons"
	"github.com/danielvega-dev/shoplane-backend/internal/inventory"
	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/outbox"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type couponEngine interface {
	Validate(ctx context.Context, input coupons.ValidateInput) (*coupons.Quote, error)
	Apply(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error
}

type saleReverser interface {
	ReverseSaleCredits(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, description string) error
}

// statusNotifier receives fire-and-forget notifications after a status
// change commits. Implementations must never fail the triggering operation.
type statusNotifier interface {
	OrderStatusChanged(ctx context.Context, userID uuid.UUID, order *models.Order, to enums.OrderStatus)
}

// Pricing holds the platform-wide charges applied at placement.
type Pricing struct {
	TaxRateBps        int
	ShippingFlatCents int
}

// Service owns the order lifecycle from placement through delivery or
// cancellation. Payment settlement calls MarkPaid inside its own
// transaction; everything else runs its own.
type Service interface {
	Place(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters CustomerOrderFilters) (*OrderList, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*OrderList, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time) error
	MarkDelivered(ctx context.Context, orderID uuid.UUID, actor Actor) error
	UpdateStatus(ctx context.Context, input UpdateStatusInput) error
	Cancel(ctx context.Context, input CancelInput) error
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	coupons  couponEngine
	stock    inventory.Repository
	ledger   saleReverser
	notifier statusNotifier
	pricing  Pricing
	now      func() time.Time
}

// NewService builds an order service with the required dependencies.
// The notifier may be nil.
func NewService(repo Repository, tx txRunner, ob outboxPublisher, engine couponEngine, stock inventory.Repository, ledger saleReverser, notifier statusNotifier, pricing Pricing) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if engine == nil {
		return nil, fmt.Errorf("coupon engine required")
	}
	if stock == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if pricing.TaxRateBps < 0 || pricing.ShippingFlatCents < 0 {
		return nil, fmt.Errorf("pricing values cannot be negative")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   ob,
		coupons:  engine,
		stock:    stock,
		ledger:   ledger,
		notifier: notifier,
		pricing:  pricing,
		now:      time.Now,
	}, nil
}

func (s *service) Place(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}

	// Merge duplicate product lines so one reservation covers each product.
	qtyByProduct := map[uuid.UUID]int{}
	productOrder := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item product id is required")
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item qty must be positive")
		}
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			productOrder = append(productOrder, item.ProductID)
		}
		qtyByProduct[item.ProductID] += item.Qty
	}

	var placed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stock := s.stock.WithTx(tx)

		products, err := repo.FindActiveProducts(ctx, productOrder)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}
		byID := make(map[uuid.UUID]models.Product, len(products))
		for _, product := range products {
			byID[product.ID] = product
		}

		orderID := uuid.New()
		now := s.now().UTC()
		lineItems := make([]models.OrderLineItem, 0, len(productOrder))
		couponItems := make([]coupons.Item, 0, len(productOrder))
		vendorSet := map[uuid.UUID]struct{}{}
		subtotal := 0

		for _, productID := range productOrder {
			product, ok := byID[productID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "product unavailable: "+productID.String())
			}
			qty := qtyByProduct[productID]
			if err := stock.Reserve(ctx, productID, qty); err != nil {
				return err
			}
			lineTotal := product.PriceCents * qty
			subtotal += lineTotal
			vendorSet[product.VendorID] = struct{}{}
			lineItems = append(lineItems, models.OrderLineItem{
				ID:             uuid.New(),
				OrderID:        orderID,
				ProductID:      productID,
				VendorID:       product.VendorID,
				Name:           product.Name,
				Category:       product.Category,
				UnitPriceCents: product.PriceCents,
				Qty:            qty,
				TotalCents:     lineTotal,
			})
			couponItems = append(couponItems, coupons.Item{
				ProductID:  productID,
				VendorID:   product.VendorID,
				Category:   product.Category,
				TotalCents: lineTotal,
			})
		}

		discount := 0
		var couponID *uuid.UUID
		var couponCode *string
		if input.CouponCode != nil && strings.TrimSpace(*input.CouponCode) != "" {
			quote, err := s.coupons.Validate(ctx, coupons.ValidateInput{
				Code:          *input.CouponCode,
				SubtotalCents: subtotal,
				Items:         couponItems,
			})
			if err != nil {
				return err
			}
			if err := s.coupons.Apply(ctx, tx, quote.CouponID); err != nil {
				return err
			}
			discount = quote.DiscountCents
			id := quote.CouponID
			code := quote.Code
			couponID = &id
			couponCode = &code
		}

		taxable := subtotal - discount
		if taxable < 0 {
			taxable = 0
		}
		tax := taxable * s.pricing.TaxRateBps / 10000
		shipping := s.pricing.ShippingFlatCents
		total := taxable + tax + shipping

		order := &models.Order{
			ID:              orderID,
			OrderNumber:     newOrderNumber(now),
			CustomerID:      input.Actor.UserID,
			Currency:        enums.CurrencyUSD,
			Status:          enums.OrderStatusPlaced,
			SubtotalCents:   subtotal,
			DiscountCents:   discount,
			TaxCents:        tax,
			ShippingCents:   shipping,
			TotalCents:      total,
			PaymentMethod:   input.PaymentMethod,
			CouponID:        couponID,
			CouponCode:      couponCode,
			ShippingAddress: input.ShippingAddress,
			Notes:           input.Notes,
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.CreateLineItems(ctx, lineItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create line items")
		}
		order.Items = lineItems

		vendorIDs := make([]uuid.UUID, 0, len(vendorSet))
		for vendorID := range vendorSet {
			vendorIDs = append(vendorIDs, vendorID)
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: OrderPlacedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				CustomerID:    order.CustomerID,
				PaymentMethod: order.PaymentMethod,
				SubtotalCents: order.SubtotalCents,
				DiscountCents: order.DiscountCents,
				TotalCents:    order.TotalCents,
				VendorIDs:     vendorIDs,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters CustomerOrderFilters) (*OrderList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.repo.ListCustomerOrders(ctx, customerID, params, filters)
}

func (s *service) ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	return s.repo.ListVendorOrders(ctx, vendorID, params)
}

// MarkPaid is invoked by payment settlement inside the settlement
// transaction. It is idempotent: an order already paid is left alone so a
// replayed settlement cannot double-commit stock.
func (s *service) MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required to mark order paid")
	}
	repo := s.repo.WithTx(tx)
	order, err := s.loadOrder(ctx, repo, orderID)
	if err != nil {
		return err
	}
	if order.Status == enums.OrderStatusPaid {
		return nil
	}
	if !order.Status.CanTransitionTo(enums.OrderStatusPaid) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order %s cannot be paid from status %s", order.OrderNumber, order.Status))
	}

	if paidAt.IsZero() {
		paidAt = s.now().UTC()
	}
	err = repo.UpdateStatusGuarded(ctx, order.ID, enums.OrderStatusPlaced, enums.OrderStatusPaid, map[string]any{
		"paid_at": paidAt,
	})
	if err != nil {
		return err
	}

	stock := s.stock.WithTx(tx)
	for productID, qty := range qtyPerProduct(order.Items) {
		if err := stock.CommitReservation(ctx, productID, qty); err != nil {
			return err
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: OrderPaidEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			TotalCents:  order.TotalCents,
			PaidAt:      paidAt,
		},
	})
}

func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID, actor Actor) error {
	if actor.Role != enums.ActorRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins can mark orders delivered")
	}
	return s.UpdateStatus(ctx, UpdateStatusInput{
		OrderID: orderID,
		Target:  enums.OrderStatusDelivered,
		Actor:   actor,
	})
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.Target))
	}
	switch input.Target {
	case enums.OrderStatusPlaced:
		return pkgerrors.New(pkgerrors.CodeValidation, "orders cannot return to placed")
	case enums.OrderStatusPaid:
		return pkgerrors.New(pkgerrors.CodeValidation, "paid is set by payment settlement")
	case enums.OrderStatusCancelled:
		return pkgerrors.New(pkgerrors.CodeValidation, "use the cancel operation to cancel an order")
	}

	var changed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if err := s.authorizeStatusChange(ctx, repo, order, input); err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(input.Target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, input.Target))
		}

		updates := map[string]any{}
		now := s.now().UTC()
		switch input.Target {
		case enums.OrderStatusShipped:
			updates["shipped_at"] = now
		case enums.OrderStatusDelivered:
			updates["delivered_at"] = now
		}
		if err := repo.UpdateStatusGuarded(ctx, order.ID, order.Status, input.Target, updates); err != nil {
			return err
		}
		changed = order

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				From:        order.Status,
				To:          input.Target,
			},
		})
	})
	if err != nil {
		return err
	}
	s.notifyStatus(ctx, changed, input.Target)
	return nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}

		switch input.Actor.Role {
		case enums.ActorRoleAdmin:
		case enums.ActorRoleCustomer:
			if order.CustomerID != input.Actor.UserID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
			}
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "vendors cannot cancel orders")
		}

		if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order cannot be cancelled from status %s", order.Status))
		}

		updates := map[string]any{
			"cancelled_at": s.now().UTC(),
		}
		if input.Reason != nil {
			updates["cancel_reason"] = *input.Reason
		}
		if err := repo.UpdateStatusGuarded(ctx, order.ID, order.Status, enums.OrderStatusCancelled, updates); err != nil {
			return err
		}
		cancelled = order

		// Before payment stock is still reserved; after payment the
		// reservation was committed, so cancelled stock is restocked.
		stock := s.stock.WithTx(tx)
		wasPaid := order.PaidAt != nil
		for productID, qty := range qtyPerProduct(order.Items) {
			if wasPaid {
				err = stock.Restock(ctx, productID, qty)
			} else {
				err = stock.Release(ctx, productID, qty)
			}
			if err != nil {
				return err
			}
		}

		if order.CouponID != nil {
			if err := s.coupons.Release(ctx, tx, *order.CouponID); err != nil {
				return err
			}
		}

		if wasPaid {
			reason := "order " + order.OrderNumber + " cancelled"
			if err := s.ledger.ReverseSaleCredits(ctx, tx, order.ID, reason); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(input.Actor),
			Data: OrderCancelledEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				CustomerID:    order.CustomerID,
				From:          order.Status,
				Reason:        input.Reason,
				StockRestored: true,
			},
		})
	})
	if err != nil {
		return err
	}
	s.notifyStatus(ctx, cancelled, enums.OrderStatusCancelled)
	return nil
}

func (s *service) notifyStatus(ctx context.Context, order *models.Order, to enums.OrderStatus) {
	if s.notifier == nil || order == nil {
		return
	}
	s.notifier.OrderStatusChanged(ctx, order.CustomerID, order, to)
}

func (s *service) loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) authorizeRead(ctx context.Context, order *models.Order, actor Actor) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleCustomer:
		if order.CustomerID == actor.UserID {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
	case enums.ActorRoleVendor:
		if actor.VendorID == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
		}
		has, err := s.repo.HasVendorItems(ctx, order.ID, *actor.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check vendor items")
		}
		if !has {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from this vendor")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown actor role")
	}
}

func (s *service) authorizeStatusChange(ctx context.Context, repo Repository, order *models.Order, input UpdateStatusInput) error {
	switch input.Actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleVendor:
		if input.Target != enums.OrderStatusProcessing && input.Target != enums.OrderStatusShipped {
			return pkgerrors.New(pkgerrors.CodeForbidden, "vendors can only move orders to processing or shipped")
		}
		if input.Actor.VendorID == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
		}
		has, err := repo.HasVendorItems(ctx, order.ID, *input.Actor.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check vendor items")
		}
		if !has {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from this vendor")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "customers cannot change order status")
	}
}

func qtyPerProduct(items []models.OrderLineItem) map[uuid.UUID]int {
	totals := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Qty
	}
	return totals
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("SL-%s-%s", now.Format("20060102"), suffix)
}

func buildActor(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:   actor.UserID,
		VendorID: actor.VendorID,
		Role:     actor.Role.String(),
	}
}
