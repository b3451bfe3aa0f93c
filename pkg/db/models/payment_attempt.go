package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
)

// PaymentAttempt records every settlement attempt against an order. The
// (order_id, provider_tx_id) unique index is what makes settlement
// idempotent under webhook retries.
type PaymentAttempt struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_payment_attempts_order_provider_tx"`
	Method        enums.PaymentMethod        `gorm:"column:method;type:payment_method;not null"`
	Status        enums.PaymentAttemptStatus `gorm:"column:status;type:payment_attempt_status;not null;default:'pending'"`
	AmountCents   int                        `gorm:"column:amount_cents;not null"`
	Currency      enums.Currency             `gorm:"column:currency;type:text;not null;default:'USD'"`
	Provider      string                     `gorm:"column:provider;not null"`
	ProviderTxID  string                     `gorm:"column:provider_tx_id;not null;uniqueIndex:idx_payment_attempts_order_provider_tx"`
	RedirectURL   *string                    `gorm:"column:redirect_url"`
	FailureReason *string                    `gorm:"column:failure_reason"`
	Metadata      json.RawMessage            `gorm:"column:metadata;type:jsonb"`
	ExpiresAt     *time.Time                 `gorm:"column:expires_at"`
	SettledAt     *time.Time                 `gorm:"column:settled_at"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
