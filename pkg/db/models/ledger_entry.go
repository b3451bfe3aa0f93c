package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
)

// LedgerEntry records an immutable money movement on a vendor balance.
// BalanceAfterCents is captured inside the same transaction as the guarded
// balance update, so entries replay to the vendor's current balance.
type LedgerEntry struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID          uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null;index"`
	Type              enums.LedgerEntryType `gorm:"column:type;type:ledger_entry_type;not null"`
	AmountCents       int                   `gorm:"column:amount_cents;not null"`
	GrossCents        *int                  `gorm:"column:gross_cents"`
	CommissionCents   *int                  `gorm:"column:commission_cents"`
	BalanceAfterCents int                   `gorm:"column:balance_after_cents;not null"`
	OrderID           *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	PayoutID          *uuid.UUID            `gorm:"column:payout_id;type:uuid"`
	Description       string                `gorm:"column:description;not null"`
	Metadata          json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
}
