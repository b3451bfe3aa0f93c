package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/api/responses"
	"github.com/danielvega-dev/shoplane-backend/api/validators"
	pkgauth "github.com/danielvega-dev/shoplane-backend/pkg/auth"
	"github.com/danielvega-dev/shoplane-backend/pkg/config"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
)

type mintTokenRequest struct {
	UserID   string  `json:"user_id" validate:"required,uuid"`
	Role     string  `json:"role" validate:"required,oneof=customer vendor admin"`
	VendorID *string `json:"vendor_id,omitempty" validate:"omitempty,uuid"`
}

type mintTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// MintToken issues a signed JWT for local development. The route is only
// mounted outside production; identity management lives in a separate service.
func MintToken(cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mintTokenRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		payload := pkgauth.AccessTokenPayload{
			UserID: userID,
			Role:   enums.ActorRole(req.Role),
		}
		if req.VendorID != nil {
			vendorID, err := uuid.Parse(*req.VendorID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id"))
				return
			}
			payload.VendorID = &vendorID
		}

		token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mint token"))
			return
		}

		responses.WriteSuccess(w, mintTokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int(cfg.JWT.AccessTokenTTL().Seconds()),
		})
	}
}
