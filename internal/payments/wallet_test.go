package payments

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielvega-dev/shoplane-backend/pkg/config"
	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
)

func walletTestConfig(secret string) config.WalletConfig {
	return config.WalletConfig{
		SharedSecret:    secret,
		RedirectBaseURL: "https://wallet.example.test/pay",
		PendingTTL:      30 * time.Minute,
	}
}

func walletTestOrder() *models.Order {
	return &models.Order{
		ID:         uuid.New(),
		TotalCents: 4200,
		Currency:   enums.CurrencyUSD,
	}
}

func TestWalletInitiateSignsRedirect(t *testing.T) {
	gw := NewWalletGateway(walletTestConfig("secret"))
	order := walletTestOrder()

	result, err := gw.Initiate(context.Background(), InitiateRequest{Order: order})
	require.NoError(t, err)
	assert.Equal(t, ProviderWallet, result.Provider)
	assert.Equal(t, enums.PaymentAttemptStatusPending, result.Status)
	require.NotNil(t, result.RedirectURL)
	require.NotNil(t, result.ExpiresAt)

	parsed, err := url.Parse(*result.RedirectURL)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, order.ID.String(), query.Get("orderId"))
	assert.Equal(t, result.ProviderTxID, query.Get("paymentId"))
	assert.Len(t, query.Get("sig"), 64)

	ev, err := gw.Confirm(context.Background(), ConfirmRequest{
		Order:        order,
		ProviderTxID: result.ProviderTxID,
		Signature:    query.Get("sig"),
		AmountCents:  order.TotalCents,
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID, ev.OrderID)
	assert.Equal(t, order.TotalCents, ev.AmountCents)
	assert.Equal(t, result.ProviderTxID, ev.ProviderTxID)
}

func TestWalletConfirmRejectsTamperedSignature(t *testing.T) {
	gw := NewWalletGateway(walletTestConfig("secret"))
	order := walletTestOrder()

	result, err := gw.Initiate(context.Background(), InitiateRequest{Order: order})
	require.NoError(t, err)

	parsed, err := url.Parse(*result.RedirectURL)
	require.NoError(t, err)
	sig := parsed.Query().Get("sig")
	tampered := "00" + sig[2:]

	_, err = gw.Confirm(context.Background(), ConfirmRequest{
		Order:        order,
		ProviderTxID: result.ProviderTxID,
		Signature:    tampered,
		AmountCents:  order.TotalCents,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification))
}

func TestWalletFailsClosedWithoutSecret(t *testing.T) {
	gw := NewWalletGateway(walletTestConfig(""))
	order := walletTestOrder()

	_, err := gw.Initiate(context.Background(), InitiateRequest{Order: order})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	_, err = gw.Confirm(context.Background(), ConfirmRequest{
		Order:        order,
		ProviderTxID: uuid.NewString(),
		Signature:    "deadbeef",
		AmountCents:  order.TotalCents,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification))
}

func TestWalletConfirmRejectsMalformedSignature(t *testing.T) {
	gw := NewWalletGateway(walletTestConfig("secret"))
	order := walletTestOrder()

	_, err := gw.Confirm(context.Background(), ConfirmRequest{
		Order:        order,
		ProviderTxID: uuid.NewString(),
		Signature:    "not-hex",
		AmountCents:  order.TotalCents,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification))
}
