package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
)

// Repository exposes the persistence operations the payment service needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	FindAttempt(ctx context.Context, orderID uuid.UUID, providerTxID string) (*models.PaymentAttempt, error)
	FindPendingAttempt(ctx context.Context, orderID uuid.UUID, provider string) (*models.PaymentAttempt, error)
	UpdateAttemptStatus(ctx context.Context, attemptID uuid.UUID, from, to enums.PaymentAttemptStatus, updates map[string]any) error
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListAttemptsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindVendors(ctx context.Context, vendorIDs []uuid.UUID) ([]models.Vendor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed payments repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *repository) FindAttempt(ctx context.Context, orderID uuid.UUID, providerTxID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND provider_tx_id = ?", orderID, providerTxID).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
		}
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) FindPendingAttempt(ctx context.Context, orderID uuid.UUID, provider string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND provider = ? AND status = ?", orderID, provider, enums.PaymentAttemptStatusPending).
		Order("created_at DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
		}
		return nil, err
	}
	return &attempt, nil
}

// UpdateAttemptStatus flips an attempt between statuses with a guarded
// update so two settlers cannot both win the same transition.
func (r *repository) UpdateAttemptStatus(ctx context.Context, attemptID uuid.UUID, from, to enums.PaymentAttemptStatus, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	result := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("id = ? AND status = ?", attemptID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment attempt is no longer "+from.String())
	}
	return nil
}

func (r *repository) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.PaymentAttemptStatusPending, cutoff).
		Update("status", enums.PaymentAttemptStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) ListAttemptsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindVendors(ctx context.Context, vendorIDs []uuid.UUID) ([]models.Vendor, error) {
	if len(vendorIDs) == 0 {
		return nil, nil
	}
	var vendors []models.Vendor
	err := r.db.WithContext(ctx).
		Where("id IN (?)", vendorIDs).
		Find(&vendors).Error
	if err != nil {
		return nil, err
	}
	return vendors, nil
}
