package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/api/responses"
	"github.com/danielvega-dev/shoplane-backend/api/validators"
	"github.com/danielvega-dev/shoplane-backend/internal/payments"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
)

type initiatePaymentRequest struct {
	PaymentToken string `json:"payment_token,omitempty"`
}

type walletConfirmRequest struct {
	OrderID     string `json:"order_id" validate:"required,uuid"`
	PaymentID   string `json:"payment_id" validate:"required"`
	Signature   string `json:"signature" validate:"required"`
	AmountCents int    `json:"amount_cents" validate:"required,min=1"`
}

// InitiatePayment starts collection for a placed order using its chosen method.
func InitiatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req initiatePaymentRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		attempt, err := svc.Initiate(r.Context(), payments.InitiateInput{
			OrderID:      orderID,
			Actor:        actor,
			PaymentToken: req.PaymentToken,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, attempt)
	}
}

// ConfirmWalletPayment handles the signed provider callback. The HMAC in the
// body is the authentication; no bearer token is required.
func ConfirmWalletPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req walletConfirmRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		if err := svc.ConfirmWallet(r.Context(), payments.WalletConfirmInput{
			OrderID:     orderID,
			PaymentID:   req.PaymentID,
			Signature:   req.Signature,
			AmountCents: req.AmountCents,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "settled"})
	}
}

// SettleManualPayment records collection of a deferred payment method.
// Admin only via routing.
func SettleManualPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SettleManual(r.Context(), payments.ManualSettleInput{
			OrderID: orderID,
			Actor:   actor,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "settled"})
	}
}
