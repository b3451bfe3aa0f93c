package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	"github.com/danielvega-dev/shoplane-backend/pkg/types"
)

// Actor identifies who is performing an order operation.
type Actor struct {
	UserID   uuid.UUID
	VendorID *uuid.UUID
	Role     enums.ActorRole
}

// PlaceOrderItem is one requested line at placement time. Price, name and
// vendor are snapshotted server-side from the catalog, never trusted from
// the client.
type PlaceOrderItem struct {
	ProductID uuid.UUID
	Qty       int
}

// PlaceOrderInput carries everything needed to place an order.
type PlaceOrderInput struct {
	Actor           Actor
	Items           []PlaceOrderItem
	PaymentMethod   enums.PaymentMethod
	CouponCode      *string
	ShippingAddress *types.Address
	Notes           *string
}

// UpdateStatusInput moves an order one step forward in its lifecycle.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	Actor   Actor
}

// CancelInput cancels an order with an optional customer-facing reason.
type CancelInput struct {
	OrderID uuid.UUID
	Reason  *string
	Actor   Actor
}

// CustomerOrderFilters describe the inputs supported by the customer list.
type CustomerOrderFilters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// OrderSummary is the aggregated row returned by the order lists.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"order_number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalCents    int                 `json:"total_cents"`
	DiscountCents int                 `json:"discount_cents"`
	TotalItems    int                 `json:"total_items"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OrderPlacedEvent is emitted when an order is created.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	SubtotalCents int                 `json:"subtotal_cents"`
	DiscountCents int                 `json:"discount_cents"`
	TotalCents    int                 `json:"total_cents"`
	VendorIDs     []uuid.UUID         `json:"vendor_ids"`
}

// OrderPaidEvent is emitted when settlement marks an order paid.
type OrderPaidEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  uuid.UUID `json:"customer_id"`
	TotalCents  int       `json:"total_cents"`
	PaidAt      time.Time `json:"paid_at"`
}

// OrderStatusChangedEvent is emitted on every lifecycle move after placement.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	CustomerID  uuid.UUID         `json:"customer_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
}

// OrderCancelledEvent is emitted when an order is cancelled.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	CustomerID    uuid.UUID         `json:"customer_id"`
	From          enums.OrderStatus `json:"from"`
	Reason        *string           `json:"reason,omitempty"`
	StockRestored bool              `json:"stock_restored"`
}

func summarize(order models.Order) OrderSummary {
	return OrderSummary{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		TotalCents:    order.TotalCents,
		DiscountCents: order.DiscountCents,
		TotalItems:    len(order.Items),
		CreatedAt:     order.CreatedAt,
	}
}
