package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	"github.com/danielvega-dev/shoplane-backend/pkg/types"
)

// Order is the customer-facing order aggregate. Money fields are integer
// cents; totals are computed server-side at placement and never mutated after.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string              `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID      uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	Currency        enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status          enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'placed'"`
	SubtotalCents   int                 `gorm:"column:subtotal_cents;not null"`
	DiscountCents   int                 `gorm:"column:discount_cents;not null;default:0"`
	TaxCents        int                 `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int                 `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents      int                 `gorm:"column:total_cents;not null"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	CouponID        *uuid.UUID          `gorm:"column:coupon_id;type:uuid"`
	CouponCode      *string             `gorm:"column:coupon_code"`
	ShippingAddress *types.Address      `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Notes           *string             `gorm:"column:notes"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	ShippedAt       *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time          `gorm:"column:delivered_at"`
	CancelledAt     *time.Time          `gorm:"column:cancelled_at"`
	CancelReason    *string             `gorm:"column:cancel_reason"`
	Items           []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
