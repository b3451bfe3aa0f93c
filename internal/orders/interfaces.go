package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danielvega-dev/shoplane-backend/pkg/db/models"
	"github.com/danielvega-dev/shoplane-backend/pkg/enums"
	"github.com/danielvega-dev/shoplane-backend/pkg/pagination"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindActiveProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	UpdateStatusGuarded(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) error
	HasVendorItems(ctx context.Context, orderID, vendorID uuid.UUID) (bool, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters CustomerOrderFilters) (*OrderList, error)
	ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*OrderList, error)
}
