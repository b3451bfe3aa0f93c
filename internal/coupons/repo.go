package coupons

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
)

// Repository manages coupon persistence. Usage is only advanced through the
// guarded IncrementUsage update so a usage limit can never be exceeded.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, coupon *models.Coupon) error
	Update(ctx context.Context, couponID uuid.UUID, updates map[string]any) error
	FindByID(ctx context.Context, couponID uuid.UUID) (*models.Coupon, error)
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context, params pagination.Params) ([]models.Coupon, error)
	IncrementUsage(ctx context.Context, couponID uuid.UUID) error
	DecrementUsage(ctx context.Context, couponID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a coupon repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *repository) Update(ctx context.Context, couponID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", couponID).
		Updates(updates).Error
}

func (r *repository) FindByID(ctx context.Context, couponID uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).
		Where("id = ?", couponID).
		First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params) ([]models.Coupon, error) {
	query := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where("created_at < ?", cursor.CreatedAt)
	}

	var coupons []models.Coupon
	if err := query.Find(&coupons).Error; err != nil {
		return nil, err
	}
	return coupons, nil
}

// IncrementUsage is the atomic check-and-increment. The guard re-checks
// active state and remaining uses so two concurrent orders cannot both take
// the last slot.
func (r *repository) IncrementUsage(ctx context.Context, couponID uuid.UUID) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE coupons
		SET usage_count = usage_count + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
			AND is_active
			AND (usage_limit IS NULL OR usage_count < usage_limit)
	`, couponID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment coupon usage")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon is no longer available")
	}
	return nil
}

// DecrementUsage returns a slot when the consuming order is cancelled.
func (r *repository) DecrementUsage(ctx context.Context, couponID uuid.UUID) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE coupons
		SET usage_count = usage_count - 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND usage_count > 0
	`, couponID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement coupon usage")
	}
	return nil
}
