package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
	"github.com/danielvega-dev/shoplane-backend/pkg/types"
)

// Service validates and applies coupons and owns their admin lifecycle.
type Service interface {
	Validate(ctx context.Context, input ValidateInput) (*Quote, error)
	Apply(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error
	Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error)
	Update(ctx context.Context, couponID uuid.UUID, input UpdateCouponInput) (*models.Coupon, error)
	Get(ctx context.Context, couponID uuid.UUID) (*models.Coupon, error)
	List(ctx context.Context, params pagination.Params) ([]models.Coupon, error)
	Deactivate(ctx context.Context, couponID uuid.UUID) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

// Item is the slice of an order a coupon's scope is matched against.
type Item struct {
	ProductID  uuid.UUID
	VendorID   uuid.UUID
	Category   string
	TotalCents int
}

// ValidateInput carries the order context a coupon is checked against.
type ValidateInput struct {
	Code          string
	SubtotalCents int
	Items         []Item
}

// Quote is the result of a successful validation.
type Quote struct {
	CouponID      uuid.UUID                `json:"coupon_id"`
	Code          string                   `json:"code"`
	DiscountType  enums.CouponDiscountType `json:"discount_type"`
	DiscountCents int                      `json:"discount_cents"`
}

// CreateCouponInput captures the fields an admin sets when creating a coupon.
type CreateCouponInput struct {
	Code             string
	Description      *string
	DiscountType     enums.CouponDiscountType
	DiscountValue    int
	MinOrderCents    int
	MaxDiscountCents *int
	Scope            enums.CouponScope
	ScopeIDs         types.UUIDList
	ScopeCategories  types.StringList
	UsageLimit       *int
	StartsAt         *time.Time
	ExpiresAt        *time.Time
	CreatedBy        *uuid.UUID
}

// UpdateCouponInput carries optional admin edits.
type UpdateCouponInput struct {
	Description      *string
	DiscountValue    *int
	MinOrderCents    *int
	MaxDiscountCents *int
	UsageLimit       *int
	ExpiresAt        *time.Time
	IsActive         *bool
}

// NewService wires a coupon service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Validate(ctx context.Context, input ValidateInput) (*Quote, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if input.SubtotalCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order subtotal must be positive")
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	if err := s.checkUsable(coupon, input); err != nil {
		return nil, err
	}

	applicable := applicableSubtotal(coupon, input)
	if applicable <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon does not apply to any item in this order")
	}

	discount := computeDiscount(coupon, applicable)
	if discount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon yields no discount for this order")
	}

	return &Quote{
		CouponID:      coupon.ID,
		Code:          coupon.Code,
		DiscountType:  coupon.DiscountType,
		DiscountCents: discount,
	}, nil
}

// Apply consumes a usage slot inside the caller's transaction. The repository
// guard re-checks the limit, so validation followed by a concurrent burst
// still cannot oversubscribe the coupon.
func (s *service) Apply(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for coupon apply")
	}
	if couponID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon id is required")
	}
	return s.repo.WithTx(tx).IncrementUsage(ctx, couponID)
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for coupon release")
	}
	if couponID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon id is required")
	}
	return s.repo.WithTx(tx).DecrementUsage(ctx, couponID)
}

func (s *service) Create(ctx context.Context, input CreateCouponInput) (*models.Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if !input.DiscountType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid discount type %q", input.DiscountType))
	}
	if input.DiscountValue <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount value must be positive")
	}
	if input.DiscountType == enums.CouponDiscountPercentage && input.DiscountValue > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	scope := input.Scope
	if scope == "" {
		scope = enums.CouponScopeAll
	}
	if !scope.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid coupon scope %q", scope))
	}
	switch scope {
	case enums.CouponScopeSpecificProducts, enums.CouponScopeSpecificVendors:
		if len(input.ScopeIDs) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "scoped coupons require scope ids")
		}
	case enums.CouponScopeSpecificCategories:
		if len(input.ScopeCategories) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "category coupons require categories")
		}
	}
	if input.UsageLimit != nil && *input.UsageLimit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "usage limit must be positive when set")
	}
	if input.StartsAt != nil && input.ExpiresAt != nil && !input.ExpiresAt.After(*input.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry must be after start")
	}

	coupon := &models.Coupon{
		ID:               uuid.New(),
		Code:             code,
		Description:      input.Description,
		DiscountType:     input.DiscountType,
		DiscountValue:    input.DiscountValue,
		MinOrderCents:    input.MinOrderCents,
		MaxDiscountCents: input.MaxDiscountCents,
		Scope:            scope,
		ScopeIDs:         input.ScopeIDs,
		ScopeCategories:  input.ScopeCategories,
		UsageLimit:       input.UsageLimit,
		StartsAt:         input.StartsAt,
		ExpiresAt:        input.ExpiresAt,
		IsActive:         true,
		CreatedBy:        input.CreatedBy,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "create coupon")
	}
	return coupon, nil
}

func (s *service) Update(ctx context.Context, couponID uuid.UUID, input UpdateCouponInput) (*models.Coupon, error) {
	if couponID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon id is required")
	}

	updates := map[string]any{}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.DiscountValue != nil {
		if *input.DiscountValue <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount value must be positive")
		}
		updates["discount_value"] = *input.DiscountValue
	}
	if input.MinOrderCents != nil {
		updates["min_order_cents"] = *input.MinOrderCents
	}
	if input.MaxDiscountCents != nil {
		updates["max_discount_cents"] = *input.MaxDiscountCents
	}
	if input.UsageLimit != nil {
		if *input.UsageLimit <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "usage limit must be positive when set")
		}
		updates["usage_limit"] = *input.UsageLimit
	}
	if input.ExpiresAt != nil {
		updates["expires_at"] = *input.ExpiresAt
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no updates provided")
	}

	if err := s.repo.Update(ctx, couponID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update coupon")
	}
	return s.Get(ctx, couponID)
}

func (s *service) Get(ctx context.Context, couponID uuid.UUID) (*models.Coupon, error) {
	if couponID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon id is required")
	}
	coupon, err := s.repo.FindByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return coupon, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) ([]models.Coupon, error) {
	return s.repo.List(ctx, params)
}

func (s *service) Deactivate(ctx context.Context, couponID uuid.UUID) error {
	if couponID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon id is required")
	}
	return s.repo.Update(ctx, couponID, map[string]any{"is_active": false})
}

func (s *service) checkUsable(coupon *models.Coupon, input ValidateInput) error {
	if !coupon.IsActive {
		return pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon is inactive")
	}
	now := s.now()
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon is not active yet")
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon has expired")
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon usage limit reached")
	}
	if input.SubtotalCents < coupon.MinOrderCents {
		return pkgerrors.New(pkgerrors.CodeCouponInvalid,
			fmt.Sprintf("order must be at least %d cents to use this coupon", coupon.MinOrderCents))
	}
	return nil
}

// applicableSubtotal returns the portion of the order the coupon scope covers.
func applicableSubtotal(coupon *models.Coupon, input ValidateInput) int {
	switch coupon.Scope {
	case enums.CouponScopeAll:
		return input.SubtotalCents
	case enums.CouponScopeSpecificProducts:
		total := 0
		for _, item := range input.Items {
			if coupon.ScopeIDs.Contains(item.ProductID) {
				total += item.TotalCents
			}
		}
		return total
	case enums.CouponScopeSpecificVendors:
		total := 0
		for _, item := range input.Items {
			if coupon.ScopeIDs.Contains(item.VendorID) {
				total += item.TotalCents
			}
		}
		return total
	case enums.CouponScopeSpecificCategories:
		total := 0
		for _, item := range input.Items {
			if coupon.ScopeCategories.ContainsFold(item.Category) {
				total += item.TotalCents
			}
		}
		return total
	default:
		return 0
	}
}

func computeDiscount(coupon *models.Coupon, applicableCents int) int {
	var discount int
	switch coupon.DiscountType {
	case enums.CouponDiscountPercentage:
		discount = applicableCents * coupon.DiscountValue / 100
	case enums.CouponDiscountFixed:
		discount = coupon.DiscountValue
	}
	if discount > applicableCents {
		discount = applicableCents
	}
	if coupon.MaxDiscountCents != nil && discount > *coupon.MaxDiscountCents {
		discount = *coupon.MaxDiscountCents
	}
	return discount
}
