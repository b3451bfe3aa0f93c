package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/danielvega-dev/shoplane-backend/pkg/types"
)

// Vendor holds the seller profile plus its running ledger balance.
// BalanceCents only moves through guarded ledger updates.
type Vendor struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerUserID     uuid.UUID            `gorm:"column:owner_user_id;type:uuid;not null"`
	Name            string               `gorm:"column:name;not null"`
	Email           string               `gorm:"column:email;not null;uniqueIndex"`
	CommissionRate  decimal.Decimal      `gorm:"column:commission_rate;type:numeric(5,2);not null;default:10"`
	BalanceCents    int                  `gorm:"column:balance_cents;not null;default:0"`
	TotalSalesCents int                  `gorm:"column:total_sales_cents;not null;default:0"`
	TotalOrders     int                  `gorm:"column:total_orders;not null;default:0"`
	PayoutDetails   *types.PayoutDetails `gorm:"column:payout_details;type:jsonb;serializer:json"`
	IsActive        bool                 `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
