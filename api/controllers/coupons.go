package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/api/responses"
	"github.com/danielvega-dev/shoplane-backend/api/validators"
	"github.com/danielvega-dev/shoplane-backend/internal/coupons"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/logger"
	"github.com/danielvega-dev/shoplane-backend/pkg/types"
)

// txRunner scopes the coupon apply endpoint to a database transaction.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type createCouponRequest struct {
	Code             string     `json:"code" validate:"required,min=3,max=32"`
	Description      *string    `json:"description,omitempty"`
	DiscountType     string     `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue    int        `json:"discount_value" validate:"required,min=1"`
	MinOrderCents    int        `json:"min_order_cents" validate:"min=0"`
	MaxDiscountCents *int       `json:"max_discount_cents,omitempty"`
	Scope            string     `json:"scope,omitempty"`
	ScopeIDs         []string   `json:"scope_ids,omitempty"`
	ScopeCategories  []string   `json:"scope_categories,omitempty"`
	UsageLimit       *int       `json:"usage_limit,omitempty"`
	StartsAt         *time.Time `json:"starts_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

type updateCouponRequest struct {
	Description      *string    `json:"description,omitempty"`
	DiscountValue    *int       `json:"discount_value,omitempty" validate:"omitempty,min=1"`
	MinOrderCents    *int       `json:"min_order_cents,omitempty" validate:"omitempty,min=0"`
	MaxDiscountCents *int       `json:"max_discount_cents,omitempty"`
	UsageLimit       *int       `json:"usage_limit,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	IsActive         *bool      `json:"is_active,omitempty"`
}

type validateCouponItemRequest struct {
	ProductID  string `json:"product_id" validate:"required,uuid"`
	VendorID   string `json:"vendor_id" validate:"required,uuid"`
	Category   string `json:"category,omitempty"`
	TotalCents int    `json:"total_cents" validate:"required,min=1"`
}

type validateCouponRequest struct {
	Code          string                      `json:"code" validate:"required"`
	SubtotalCents int                         `json:"subtotal_cents" validate:"required,min=1"`
	Items         []validateCouponItemRequest `json:"items,omitempty" validate:"dive"`
}

type applyCouponRequest struct {
	CouponID string `json:"coupon_id" validate:"required,uuid"`
}

// CreateCoupon registers a new coupon. Admin only via routing.
func CreateCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createCouponRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		scopeIDs := make(types.UUIDList, 0, len(req.ScopeIDs))
		for _, raw := range req.ScopeIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scope id"))
				return
			}
			scopeIDs = append(scopeIDs, id)
		}

		scope := enums.CouponScope(req.Scope)
		if req.Scope == "" {
			scope = enums.CouponScopeAll
		}

		coupon, err := svc.Create(r.Context(), coupons.CreateCouponInput{
			Code:             req.Code,
			Description:      req.Description,
			DiscountType:     enums.CouponDiscountType(req.DiscountType),
			DiscountValue:    req.DiscountValue,
			MinOrderCents:    req.MinOrderCents,
			MaxDiscountCents: req.MaxDiscountCents,
			Scope:            scope,
			ScopeIDs:         scopeIDs,
			ScopeCategories:  types.StringList(req.ScopeCategories),
			UsageLimit:       req.UsageLimit,
			StartsAt:         req.StartsAt,
			ExpiresAt:        req.ExpiresAt,
			CreatedBy:        &actor.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, coupon)
	}
}

// ListCoupons pages through coupons. Admin only via routing.
func ListCoupons(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetCoupon returns a single coupon. Admin only via routing.
func GetCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		couponID, err := validators.ParsePathUUID(chi.URLParam(r, "couponId"), "coupon id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Get(r.Context(), couponID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, coupon)
	}
}

// UpdateCoupon edits mutable coupon fields. Admin only via routing.
func UpdateCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		couponID, err := validators.ParsePathUUID(chi.URLParam(r, "couponId"), "coupon id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateCouponRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Update(r.Context(), couponID, coupons.UpdateCouponInput{
			Description:      req.Description,
			DiscountValue:    req.DiscountValue,
			MinOrderCents:    req.MinOrderCents,
			MaxDiscountCents: req.MaxDiscountCents,
			UsageLimit:       req.UsageLimit,
			ExpiresAt:        req.ExpiresAt,
			IsActive:         req.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, coupon)
	}
}

// DeactivateCoupon retires a coupon without deleting its usage history.
// Admin only via routing.
func DeactivateCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		couponID, err := validators.ParsePathUUID(chi.URLParam(r, "couponId"), "coupon id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Deactivate(r.Context(), couponID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"is_active": false})
	}
}

// ValidateCoupon quotes the discount a code would produce for a cart.
func ValidateCoupon(svc coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateCouponRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]coupons.Item, 0, len(req.Items))
		for _, item := range req.Items {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			vendorID, err := uuid.Parse(item.VendorID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id"))
				return
			}
			items = append(items, coupons.Item{
				ProductID:  productID,
				VendorID:   vendorID,
				Category:   item.Category,
				TotalCents: item.TotalCents,
			})
		}

		quote, err := svc.Validate(r.Context(), coupons.ValidateInput{
			Code:          req.Code,
			SubtotalCents: req.SubtotalCents,
			Items:         items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// ApplyCoupon consumes one usage of a coupon inside a transaction.
func ApplyCoupon(svc coupons.Service, tx txRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applyCouponRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		couponID, err := uuid.Parse(req.CouponID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon id"))
			return
		}

		if err := tx.WithTx(r.Context(), func(txConn *gorm.DB) error {
			return svc.Apply(r.Context(), txConn, couponID)
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "applied"})
	}
}
