package ports

import (
	"context"

	"github.com/99minutos/custody-tracker/internal/core/domain"
)

// Ledger persists products and their append-only history. History is stored as
// an arena keyed by (product id, index) with a length counter per product.
type Ledger interface {
	// CreateProduct allocates the next product id and stores the product
	// together with its first history entry in one atomic step. The ID and
	// HistoryLen fields of p and the Index of first are assigned by the store.
	CreateProduct(ctx context.Context, p domain.Product, first domain.HistoryItem) (*domain.Product, error)

	// GetProduct returns domain.ErrProductNotFound for id 0 or an unknown id.
	GetProduct(ctx context.Context, id uint64) (*domain.Product, error)

	// UpdateProduct stores the new owner and status of p and appends item at
	// position item.Index, atomically. item.Index must equal the stored history
	// length, otherwise domain.ErrConcurrentUpdate is returned.
	UpdateProduct(ctx context.Context, p domain.Product, item domain.HistoryItem) error

	HistoryCount(ctx context.Context, id uint64) (uint64, error)
	HistoryItem(ctx context.Context, id, index uint64) (*domain.HistoryItem, error)

	// HistoryWindow returns the last min(count, total) entries, oldest first.
	HistoryWindow(ctx context.Context, id, count uint64) ([]domain.HistoryItem, error)
}

// RoleRepository persists capability grants.
type RoleRepository interface {
	// GrantRole is idempotent.
	GrantRole(ctx context.Context, actor string, role domain.Role) error
	ListRoles(ctx context.Context, actor string) ([]domain.Role, error)
}

// Store is a complete persistence backend.
type Store interface {
	Ledger
	RoleRepository
	Ping(ctx context.Context) error
}
