package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	"github.com/danielvega-dev/shoplane-backend/pkg/types"
)

// Coupon is a discount rule. UsageCount is only advanced through the guarded
// check-and-increment update so UsageLimit can never be exceeded.
type Coupon struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code             string                   `gorm:"column:code;not null;uniqueIndex"`
	Description      *string                  `gorm:"column:description"`
	DiscountType     enums.CouponDiscountType `gorm:"column:discount_type;type:coupon_discount_type;not null"`
	DiscountValue    int                      `gorm:"column:discount_value;not null"`
	MinOrderCents    int                      `gorm:"column:min_order_cents;not null;default:0"`
	MaxDiscountCents *int                     `gorm:"column:max_discount_cents"`
	Scope            enums.CouponScope        `gorm:"column:scope;type:coupon_scope;not null;default:'all'"`
	ScopeIDs         types.UUIDList           `gorm:"column:scope_ids;type:jsonb;serializer:json"`
	ScopeCategories  types.StringList         `gorm:"column:scope_categories;type:jsonb;serializer:json"`
	UsageLimit       *int                     `gorm:"column:usage_limit"`
	UsageCount       int                      `gorm:"column:usage_count;not null;default:0"`
	StartsAt         *time.Time               `gorm:"column:starts_at"`
	ExpiresAt        *time.Time               `gorm:"column:expires_at"`
	IsActive         bool                     `gorm:"column:is_active;not null;default:true"`
	CreatedBy        *uuid.UUID               `gorm:"column:created_by;type:uuid"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
