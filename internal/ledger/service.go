package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	pkgerrors "github.com/danielvega-dev/shoplane-backend/pkg/errors"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
)

// Service defines atomic balance movements. Credit and Debit must be called
// inside a caller-owned transaction so the balance update and its entry
// commit or roll back together.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.LedgerEntry, error)
	CreditSale(ctx context.Context, tx *gorm.DB, input CreditSaleInput) (*models.LedgerEntry, error)
	Debit(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.LedgerEntry, error)
	ReverseSaleCredits(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, description string) error
	GetBalance(ctx context.Context, vendorID uuid.UUID) (*BalanceSummary, error)
	ListEntries(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, error)
}

type service struct {
	repo Repository
}

// CreditInput captures the data a balance credit requires.
type CreditInput struct {
	VendorID    uuid.UUID
	Type        enums.LedgerEntryType
	AmountCents int
	OrderID     *uuid.UUID
	PayoutID    *uuid.UUID
	Description string
	Metadata    json.RawMessage
	// SalesCents, when positive, records a sale alongside the credit:
	// lifetime sales advance by this gross amount.
	SalesCents int
}

// CreditSaleInput credits a vendor for a settled order. The platform
// commission is deducted from the gross before the balance moves.
type CreditSaleInput struct {
	VendorID       uuid.UUID
	OrderID        uuid.UUID
	GrossCents     int
	CommissionRate decimal.Decimal
	Description    string
	Metadata       json.RawMessage
}

// DebitInput captures the data a balance debit requires.
type DebitInput struct {
	VendorID    uuid.UUID
	Type        enums.LedgerEntryType
	AmountCents int
	PayoutID    *uuid.UUID
	Description string
	Metadata    json.RawMessage
}

// BalanceSummary reports a vendor's current position.
type BalanceSummary struct {
	VendorID        uuid.UUID `json:"vendor_id"`
	BalanceCents    int       `json:"balance_cents"`
	TotalSalesCents int       `json:"total_sales_cents"`
	TotalOrders     int       `json:"total_orders"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for ledger credit")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", input.Type))
	}

	repo := s.repo.WithTx(tx)
	if err := repo.CreditBalance(ctx, input.VendorID, input.AmountCents, input.SalesCents); err != nil {
		return nil, err
	}

	vendor, err := repo.FindVendor(ctx, input.VendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor after credit")
	}

	entry := &models.LedgerEntry{
		ID:                uuid.New(),
		VendorID:          input.VendorID,
		Type:              input.Type,
		AmountCents:       input.AmountCents,
		BalanceAfterCents: vendor.BalanceCents,
		OrderID:           input.OrderID,
		PayoutID:          input.PayoutID,
		Description:       input.Description,
		Metadata:          input.Metadata,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ledger entry")
	}
	return entry, nil
}

func (s *service) CreditSale(ctx context.Context, tx *gorm.DB, input CreditSaleInput) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for ledger credit")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.GrossCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be positive")
	}
	if input.CommissionRate.IsNegative() || input.CommissionRate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 100")
	}

	gross := decimal.NewFromInt(int64(input.GrossCents))
	commission := int(gross.Mul(input.CommissionRate).Div(decimal.NewFromInt(100)).Round(0).IntPart())
	net := input.GrossCents - commission
	if net <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "net amount after commission must be positive")
	}

	repo := s.repo.WithTx(tx)
	// The balance moves by net, but lifetime sales record the gross sale.
	if err := repo.CreditBalance(ctx, input.VendorID, net, input.GrossCents); err != nil {
		return nil, err
	}

	vendor, err := repo.FindVendor(ctx, input.VendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor after credit")
	}

	orderID := input.OrderID
	entry := &models.LedgerEntry{
		ID:                uuid.New(),
		VendorID:          input.VendorID,
		Type:              enums.LedgerEntryTypeSaleCredit,
		AmountCents:       net,
		GrossCents:        &input.GrossCents,
		CommissionCents:   &commission,
		BalanceAfterCents: vendor.BalanceCents,
		OrderID:           &orderID,
		Description:       input.Description,
		Metadata:          input.Metadata,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ledger entry")
	}
	return entry, nil
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for ledger debit")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", input.Type))
	}

	repo := s.repo.WithTx(tx)
	if err := repo.DebitBalance(ctx, input.VendorID, input.AmountCents); err != nil {
		return nil, err
	}

	vendor, err := repo.FindVendor(ctx, input.VendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor after debit")
	}

	entry := &models.LedgerEntry{
		ID:                uuid.New(),
		VendorID:          input.VendorID,
		Type:              input.Type,
		AmountCents:       -input.AmountCents,
		BalanceAfterCents: vendor.BalanceCents,
		PayoutID:          input.PayoutID,
		Description:       input.Description,
		Metadata:          input.Metadata,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ledger entry")
	}
	return entry, nil
}

// ReverseSaleCredits claws back every sale credit recorded for an order.
// Vendors who already withdrew the funds fail the balance guard, which
// aborts the caller's transaction and leaves the order untouched.
func (s *service) ReverseSaleCredits(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, description string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for sale reversal")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	repo := s.repo.WithTx(tx)
	credits, err := repo.FindSaleCreditsByOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale credits")
	}

	for _, credit := range credits {
		if err := repo.DebitBalance(ctx, credit.VendorID, credit.AmountCents); err != nil {
			return err
		}
		vendor, err := repo.FindVendor(ctx, credit.VendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor after reversal")
		}
		oid := orderID
		entry := &models.LedgerEntry{
			ID:                uuid.New(),
			VendorID:          credit.VendorID,
			Type:              enums.LedgerEntryTypeAdjustment,
			AmountCents:       -credit.AmountCents,
			BalanceAfterCents: vendor.BalanceCents,
			OrderID:           &oid,
			Description:       description,
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reversal entry")
		}
	}
	return nil
}

func (s *service) GetBalance(ctx context.Context, vendorID uuid.UUID) (*BalanceSummary, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	vendor, err := s.repo.FindVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	return &BalanceSummary{
		VendorID:        vendor.ID,
		BalanceCents:    vendor.BalanceCents,
		TotalSalesCents: vendor.TotalSalesCents,
		TotalOrders:     vendor.TotalOrders,
	}, nil
}

func (s *service) ListEntries(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.LedgerEntry, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return s.repo.ListEntries(ctx, vendorID, params)
}
