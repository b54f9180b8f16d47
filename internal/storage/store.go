// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/scopewise/internal/models"
)

// ErrNotFound is returned (wrapped) when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for scope, configuration and bill storage.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	// PutScopeType creates or replaces a scope type by name.
	PutScopeType(ctx context.Context, st *models.ScopeType) error

	// GetScopeType retrieves a scope type by name.
	GetScopeType(ctx context.Context, name string) (*models.ScopeType, error)

	// PutCustomFunction creates or replaces a custom function by name.
	PutCustomFunction(ctx context.Context, fn *models.CustomFunction) error

	// ListCustomFunctions returns every stored custom function, enabled or not,
	// ordered by name.
	ListCustomFunctions(ctx context.Context) ([]models.CustomFunction, error)

	// CreateScope persists a new scope record.
	// The ID, timestamps and missing item row IDs are populated by the store.
	CreateScope(ctx context.Context, rec *models.ScopeRecord) error

	// GetScope retrieves a scope record with its items in order.
	GetScope(ctx context.Context, id string) (*models.ScopeRecord, error)

	// UpdateScope replaces the items, constants and totals of a scope record.
	UpdateScope(ctx context.Context, rec *models.ScopeRecord) error

	// CreateBill persists a new bill. The bill.ID field will be populated by the store.
	CreateBill(ctx context.Context, bill *models.Bill) error

	// GetBill retrieves a bill by its ID.
	GetBill(ctx context.Context, billID string) (*models.Bill, error)

	// UpdateBill updates the totals of an existing bill.
	UpdateBill(ctx context.Context, bill *models.Bill) error

	// ListBillsByScope returns the bills that include the given scope record.
	ListBillsByScope(ctx context.Context, scopeID string) ([]*models.Bill, error)

	// Close releases any resources held by the store.
	Close() error
}
