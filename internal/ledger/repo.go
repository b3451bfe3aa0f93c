package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
)

// Repository manages vendor balances and their immutable entry log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
	CreditBalance(ctx context.Context, vendorID uuid.UUID, amountCents, salesCents int) error
	DebitBalance(ctx context.Context, vendorID uuid.UUID, amountCents int) error
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	ListEntries(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, error)
	FindSaleCreditsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).
		Where("id = ?", vendorID).
		First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

// CreditBalance adds to the vendor balance. A positive salesCents records a
// sale as well: lifetime sales advance by the gross sale amount, which is
// not the same figure as the net balance credit.
func (r *repository) CreditBalance(ctx context.Context, vendorID uuid.UUID, amountCents, salesCents int) error {
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	var res *gorm.DB
	if salesCents > 0 {
		res = r.db.WithContext(ctx).Exec(`
			UPDATE vendors
			SET balance_cents = balance_cents + ?,
				total_sales_cents = total_sales_cents + ?,
				total_orders = total_orders + 1,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, amountCents, salesCents, vendorID)
	} else {
		res = r.db.WithContext(ctx).Exec(`
			UPDATE vendors
			SET balance_cents = balance_cents + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, amountCents, vendorID)
	}
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "credit vendor balance")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	return nil
}

// DebitBalance subtracts from the vendor balance. The WHERE guard rejects
// overdrafts; callers treat zero rows as insufficient balance.
func (r *repository) DebitBalance(ctx context.Context, vendorID uuid.UUID, amountCents int) error {
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	res := r.db.WithContext(ctx).Exec(`
		UPDATE vendors
		SET balance_cents = balance_cents - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND balance_cents >= ?
	`, amountCents, vendorID, amountCents)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "debit vendor balance")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance for vendor "+vendorID.String())
	}
	return nil
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindSaleCreditsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND type = ?", orderID, enums.LedgerEntryTypeSaleCredit).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListEntries(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
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

	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
