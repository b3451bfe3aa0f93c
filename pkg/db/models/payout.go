package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	"github.com/danielvega-dev/shoplane-backend/pkg/types"
)

// Payout is a vendor withdrawal request. PayoutDetails are snapshotted from
// the vendor profile when the request is created.
type Payout struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID      uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null;index"`
	AmountCents   int                  `gorm:"column:amount_cents;not null"`
	Currency      enums.Currency       `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status        enums.PayoutStatus   `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	PayoutDetails *types.PayoutDetails `gorm:"column:payout_details;type:jsonb;serializer:json"`
	RequestedBy   *uuid.UUID           `gorm:"column:requested_by;type:uuid"`
	AutoRequested bool                 `gorm:"column:auto_requested;not null;default:false"`
	FailureReason *string              `gorm:"column:failure_reason"`
	ProcessedAt   *time.Time           `gorm:"column:processed_at"`
	CompletedAt   *time.Time           `gorm:"column:completed_at"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
