package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
)

// Repository exposes the persistence operations the payout service needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	Find(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	UpdateStatusGuarded(ctx context.Context, payoutID uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) error
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*PayoutList, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*PayoutList, error)
	CountOpenByVendor(ctx context.Context, vendorID uuid.UUID) (int64, error)
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
	ListSweepableVendors(ctx context.Context, minBalanceCents int) ([]models.Vendor, error)
}
