package ports

import (
	"context"

	"github.com/99minutos/custody-tracker/internal/core/domain"
)

// CreateProductInput carries the data for a new product.
type CreateProductInput struct {
	Actor       string
	SKU         string
	Description string
	Location    string
	Note        string
}

// TransferInput hands custody to Recipient. RoleLabel is recorded in history
// exactly as supplied by the caller.
type TransferInput struct {
	Actor     string
	ProductID uint64
	Recipient string
	RoleLabel string
	Location  string
	Note      string
}

// UpdateStatusInput sets a new status. The history role label is derived from
// the caller's grants.
type UpdateStatusInput struct {
	Actor     string
	ProductID uint64
	Location  string
	Note      string
	Status    domain.Status
}

// CustodyInput is used by receive-at-warehouse and deliver-to-retailer, where
// the caller takes custody.
type CustodyInput struct {
	Actor     string
	ProductID uint64
	Location  string
	Note      string
}

// RecallInput marks a product as recalled.
type RecallInput struct {
	Actor     string
	ProductID uint64
	Reason    string
}

// AdminOverrideInput overwrites owner and status unconditionally.
type AdminOverrideInput struct {
	Actor     string
	ProductID uint64
	NewOwner  string
	NewStatus domain.Status
}

// LifecycleService is the lifecycle controller: every product mutation and the
// read-only query surface.
type LifecycleService interface {
	CreateProduct(ctx context.Context, in CreateProductInput) (uint64, error)
	TransferTo(ctx context.Context, in TransferInput) error
	UpdateLocationAndStatus(ctx context.Context, in UpdateStatusInput) error
	ReceiveAtWarehouse(ctx context.Context, in CustodyInput) error
	DeliverToRetailer(ctx context.Context, in CustodyInput) error
	RecallProduct(ctx context.Context, in RecallInput) error
	AdminForceUpdateOwnerAndStatus(ctx context.Context, in AdminOverrideInput) error

	GetProduct(ctx context.Context, id uint64) (*domain.Product, error)
	HistoryCount(ctx context.Context, id uint64) (uint64, error)
	HistoryItem(ctx context.Context, id, index uint64) (*domain.HistoryItem, error)
	RecentHistory(ctx context.Context, id, count uint64) ([]domain.HistoryItem, error)
}

// RoleService manages capability grants.
type RoleService interface {
	Grant(ctx context.Context, caller string, role domain.Role, actor string) error
	Roles(ctx context.Context, actor string) ([]domain.Role, error)
}
