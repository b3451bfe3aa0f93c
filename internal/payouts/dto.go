package payouts

import (
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/internal/orders"
	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
)

// RequestInput is a vendor asking to withdraw part of their balance.
type RequestInput struct {
	Actor       orders.Actor
	AmountCents int
}

// UpdateStatusInput moves a payout along its lifecycle. FailureReason is
// required when the target is failed.
type UpdateStatusInput struct {
	PayoutID      uuid.UUID
	Actor         orders.Actor
	Target        enums.PayoutStatus
	FailureReason *string
}

// ListFilters narrows admin payout listings.
type ListFilters struct {
	Status   *enums.PayoutStatus
	VendorID *uuid.UUID
}

// PayoutList is one page of payouts plus the cursor for the next.
type PayoutList struct {
	Payouts    []models.Payout `json:"payouts"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// VendorBalance is the balance summary a vendor sees before requesting a
// payout.
type VendorBalance struct {
	VendorID        uuid.UUID `json:"vendor_id"`
	BalanceCents    int       `json:"balance_cents"`
	TotalSalesCents int       `json:"total_sales_cents"`
	TotalOrders     int       `json:"total_orders"`
	PendingPayouts  int64     `json:"pending_payouts"`
}

// SweepResult summarizes one automatic payout sweep run.
type SweepResult struct {
	VendorsExamined int
	PayoutsCreated  int
	TotalCents      int
}

// PayoutRequestedEvent is the outbox payload for a new payout request.
type PayoutRequestedEvent struct {
	PayoutID      uuid.UUID `json:"payoutId"`
	VendorID      uuid.UUID `json:"vendorId"`
	AmountCents   int       `json:"amountCents"`
	AutoRequested bool      `json:"autoRequested"`
}

// PayoutStatusChangedEvent is the outbox payload for a status transition.
type PayoutStatusChangedEvent struct {
	PayoutID      uuid.UUID          `json:"payoutId"`
	VendorID      uuid.UUID          `json:"vendorId"`
	From          enums.PayoutStatus `json:"from"`
	To            enums.PayoutStatus `json:"to"`
	AmountCents   int                `json:"amountCents"`
	FailureReason *string            `json:"failureReason,omitempty"`
	ChangedAt     time.Time          `json:"changedAt"`
}
