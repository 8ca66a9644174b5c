package ports

import (
	"context"

	"crm-visma-sync-layer/internal/domain"
)

// TokenSource yields a bearer token that is valid for at least the renewal
// buffer, refreshing first when necessary. Implementations may block while
// a refresh is in flight.
type TokenSource interface {
	EnsureValid(ctx context.Context) (string, error)
}

// AuthManager owns the OAuth2 session lifecycle for exactly one
// Visma.net connection.
type AuthManager interface {
	// AuthorizationURL returns the consent URL and the CSRF state
	// embedded in it.
	AuthorizationURL(state string) (url string, usedState string, err error)
	ExchangeCode(ctx context.Context, code string) error
	Clear()
	Status() domain.AuthStatus
}

// VismaClient defines the typed operations against the Visma.net API.
type VismaClient interface {
	// Customer resource
	ListCustomers(ctx context.Context) ([]domain.VismaCustomer, error)
	GetCustomer(ctx context.Context, number string) (*domain.VismaCustomer, error)
	CreateCustomer(ctx context.Context, customer *domain.VismaCustomer) (*domain.VismaCustomer, error)
	UpdateCustomer(ctx context.Context, number string, customer *domain.VismaCustomer) (*domain.VismaCustomer, error)

	// Inventory item resource
	ListItems(ctx context.Context) ([]domain.VismaItem, error)
	GetItem(ctx context.Context, inventoryID string) (*domain.VismaItem, error)
	CreateItem(ctx context.Context, item *domain.VismaItem) (*domain.VismaItem, error)
	UpdateItem(ctx context.Context, inventoryID string, item *domain.VismaItem) (*domain.VismaItem, error)
	UpdateItemPrice(ctx context.Context, inventoryID string, basePrice float64) (*domain.VismaItem, error)

	// Lookups
	CompanyInfo(ctx context.Context) (map[string]any, error)
	VATCategories(ctx context.Context) ([]domain.VATCategory, error)
	ItemClasses(ctx context.Context) ([]domain.ItemClass, error)
}
