package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
)

// Provider identifiers stored on payment attempts and ledger metadata.
const (
	ProviderStripe = "stripe"
	ProviderWallet = "wallet"
	ProviderManual = "manual"
)

// SettlementEvent is the single shape every provider converges on. The
// settlement applier only ever consumes this; adapters never touch order
// or ledger state themselves.
type SettlementEvent struct {
	OrderID      uuid.UUID
	Provider     string
	ProviderTxID string
	AmountCents  int
	Currency     enums.Currency
	SettledAt    time.Time
}

// InitiateRequest carries what an adapter needs to start a payment.
// PaymentToken is only meaningful for the card provider.
type InitiateRequest struct {
	Order        *models.Order
	PaymentToken string
}

// InitiateResult is what an adapter hands back after starting a payment.
// A non-nil Settlement means the provider captured synchronously and the
// order can be settled in the same request.
type InitiateResult struct {
	Provider     string
	ProviderTxID string
	Status       enums.PaymentAttemptStatus
	RedirectURL  *string
	ExpiresAt    *time.Time
	Settlement   *SettlementEvent
}

// ConfirmRequest carries a provider callback or an administrative
// settlement action back into the adapter for verification.
type ConfirmRequest struct {
	Order        *models.Order
	ProviderTxID string
	Signature    string
	AmountCents  int
}

// Gateway is the provider adapter contract. Initiate starts a payment
// for an order; Confirm verifies an asynchronous completion and yields
// the settlement event to apply.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*SettlementEvent, error)
}
