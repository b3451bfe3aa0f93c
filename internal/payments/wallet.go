package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/pkg/config"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
)

// walletGateway implements the redirect-then-execute flow. Initiate hands
// the customer a signed redirect URL; the wallet provider calls back with
// the same signature, which Confirm verifies before anything settles.
// Verification fails closed: a missing secret or a mismatched signature
// never settles an order.
type walletGateway struct {
	cfg config.WalletConfig
	now func() time.Time
}

// NewWalletGateway builds the HMAC-verified wallet adapter.
func NewWalletGateway(cfg config.WalletConfig) Gateway {
	return &walletGateway{cfg: cfg, now: time.Now}
}

func (g *walletGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if strings.TrimSpace(g.cfg.SharedSecret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet shared secret is not configured")
	}

	paymentID := uuid.NewString()
	signature := g.sign(req.Order.ID.String(), paymentID)

	redirect, err := url.Parse(g.cfg.RedirectBaseURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalid wallet redirect base url")
	}
	query := redirect.Query()
	query.Set("orderId", req.Order.ID.String())
	query.Set("paymentId", paymentID)
	query.Set("amount", fmt.Sprintf("%d", req.Order.TotalCents))
	query.Set("sig", signature)
	redirect.RawQuery = query.Encode()

	redirectURL := redirect.String()
	expiresAt := g.now().UTC().Add(g.cfg.PendingTTL)

	return &InitiateResult{
		Provider:     ProviderWallet,
		ProviderTxID: paymentID,
		Status:       enums.PaymentAttemptStatusPending,
		RedirectURL:  &redirectURL,
		ExpiresAt:    &expiresAt,
	}, nil
}

func (g *walletGateway) Confirm(ctx context.Context, req ConfirmRequest) (*SettlementEvent, error) {
	if req.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if strings.TrimSpace(g.cfg.SharedSecret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerification, "wallet signature rejected")
	}

	expected := g.sign(req.Order.ID.String(), req.ProviderTxID)
	provided, err := hex.DecodeString(strings.TrimSpace(req.Signature))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerification, "wallet signature rejected")
	}
	expectedRaw, _ := hex.DecodeString(expected)
	if !hmac.Equal(expectedRaw, provided) {
		return nil, pkgerrors.New(pkgerrors.CodePaymentVerification, "wallet signature rejected")
	}

	return &SettlementEvent{
		OrderID:      req.Order.ID,
		Provider:     ProviderWallet,
		ProviderTxID: req.ProviderTxID,
		AmountCents:  req.AmountCents,
		Currency:     req.Order.Currency,
		SettledAt:    g.now().UTC(),
	}, nil
}

// sign computes the hex HMAC-SHA256 the wallet provider and we agree on.
func (g *walletGateway) sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(g.cfg.SharedSecret))
	fmt.Fprintf(mac, "%s|%s", orderID, paymentID)
	return hex.EncodeToString(mac.Sum(nil))
}
