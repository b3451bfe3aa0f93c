package payments

import (
	"context"
	"time"

	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
)

// manualGateway covers deferred methods (bank transfer, cash on delivery).
// Initiate records intent only; settlement happens when an admin confirms
// the money arrived. The provider transaction id is derived from the order
// so a double settle collides on the unique index instead of paying twice.
type manualGateway struct {
	now func() time.Time
}

// NewManualGateway builds the deferred-settlement adapter.
func NewManualGateway() Gateway {
	return &manualGateway{now: time.Now}
}

func manualTxID(orderID string) string {
	return "manual-" + orderID
}

func (g *manualGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	return &InitiateResult{
		Provider:     ProviderManual,
		ProviderTxID: manualTxID(req.Order.ID.String()),
		Status:       enums.PaymentAttemptStatusPending,
	}, nil
}

func (g *manualGateway) Confirm(ctx context.Context, req ConfirmRequest) (*SettlementEvent, error) {
	if req.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	return &SettlementEvent{
		OrderID:      req.Order.ID,
		Provider:     ProviderManual,
		ProviderTxID: manualTxID(req.Order.ID.String()),
		AmountCents:  req.Order.TotalCents,
		Currency:     req.Order.Currency,
		SettledAt:    g.now().UTC(),
	}, nil
}
