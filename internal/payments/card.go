package payments

import (
	"context"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	pkgstripe "github.com/danielvega-dev/shoplane-backend/pkg/stripe"
)

// StripeIntentClient exposes the subset of Stripe operations the card
// adapter needs, so the adapter can be tested without the SDK.
type StripeIntentClient interface {
	CreateIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeIntentWrapper struct{}

// NewStripeIntentClient wraps the initialized Stripe client for the card adapter.
func NewStripeIntentClient(api *pkgstripe.Client) StripeIntentClient {
	if api == nil {
		return nil
	}
	return &stripeIntentWrapper{}
}

func (w *stripeIntentWrapper) CreateIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (w *stripeIntentWrapper) GetIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params == nil {
		params = &stripe.PaymentIntentParams{}
	}
	params.Context = ctx
	return paymentintent.Get(id, params)
}

// cardGateway captures card payments in a single round trip. A confirmed
// intent settles the order during Initiate; Confirm only re-verifies an
// intent against Stripe when a caller retries out of band.
type cardGateway struct {
	client StripeIntentClient
	now    func() time.Time
}

// NewCardGateway builds the Stripe-backed card adapter.
func NewCardGateway(client StripeIntentClient) (Gateway, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client is required for the card gateway")
	}
	return &cardGateway{client: client, now: time.Now}, nil
}

func (g *cardGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if strings.TrimSpace(req.PaymentToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment token is required for card payments")
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(req.Order.TotalCents)),
		Currency:      stripe.String(strings.ToLower(req.Order.Currency.String())),
		PaymentMethod: stripe.String(req.PaymentToken),
		Confirm:       stripe.Bool(true),
	}
	params.AddMetadata("order_id", req.Order.ID.String())
	params.AddMetadata("order_number", req.Order.OrderNumber)

	intent, err := g.client.CreateIntent(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, "stripe payment intent failed")
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodePaymentProvider, "card payment was not captured").
			WithDetails(map[string]string{"intent_status": string(intent.Status)})
	}

	settledAt := g.now().UTC()
	return &InitiateResult{
		Provider:     ProviderStripe,
		ProviderTxID: intent.ID,
		Status:       enums.PaymentAttemptStatusSucceeded,
		Settlement: &SettlementEvent{
			OrderID:      req.Order.ID,
			Provider:     ProviderStripe,
			ProviderTxID: intent.ID,
			AmountCents:  int(intent.Amount),
			Currency:     req.Order.Currency,
			SettledAt:    settledAt,
		},
	}, nil
}

func (g *cardGateway) Confirm(ctx context.Context, req ConfirmRequest) (*SettlementEvent, error) {
	if req.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if strings.TrimSpace(req.ProviderTxID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider transaction id is required")
	}

	intent, err := g.client.GetIntent(ctx, req.ProviderTxID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, "stripe payment intent lookup failed")
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerification, "payment intent has not succeeded")
	}
	if intent.Metadata["order_id"] != req.Order.ID.String() {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerification, "payment intent does not belong to this order")
	}

	return &SettlementEvent{
		OrderID:      req.Order.ID,
		Provider:     ProviderStripe,
		ProviderTxID: intent.ID,
		AmountCents:  int(intent.Amount),
		Currency:     req.Order.Currency,
		SettledAt:    g.now().UTC(),
	}, nil
}
