package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/api/middleware"
	"github.com/danielvega-dev/shoplane-backend/internal/orders"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
)

// actorFromRequest rebuilds the authenticated actor from the values the Auth
// middleware seeded into the request context.
func actorFromRequest(r *http.Request) (orders.Actor, error) {
	ctx := r.Context()

	rawUserID := middleware.UserIDFromContext(ctx)
	if rawUserID == "" {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing identity")
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid identity")
	}

	role := enums.ActorRole(middleware.RoleFromContext(ctx))
	if !role.IsValid() {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing role")
	}

	actor := orders.Actor{UserID: userID, Role: role}
	if rawVendorID := middleware.VendorIDFromContext(ctx); rawVendorID != "" {
		vendorID, err := uuid.Parse(rawVendorID)
		if err != nil {
			return orders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid vendor identity")
		}
		actor.VendorID = &vendorID
	}
	return actor, nil
}
