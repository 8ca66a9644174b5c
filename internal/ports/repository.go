package ports

import (
	"context"
	"time"

	"crm-visma-sync-layer/internal/domain"
)

// CustomerRepository is the engine's view of the CRM customer collection.
// The collection is owned by the CRM; besides Upsert for records created
// from the remote side, the engine only attaches the Visma back-reference.
type CustomerRepository interface {
	List(ctx context.Context) ([]*domain.Customer, error)
	Upsert(ctx context.Context, customer *domain.Customer) error
	SetVismaNumber(ctx context.Context, id string, number string) error
}

// ProductRepository is the engine's view of the CRM price list.
type ProductRepository interface {
	ListActive(ctx context.Context) ([]*domain.Product, error)
	Upsert(ctx context.Context, product *domain.Product) error
	SetVismaInventoryID(ctx context.Context, id string, inventoryID string) error
}

// SyncStateRepository persists one sync state document per entity type.
// Mutations are scoped (single mapping, single conflict, counter deltas)
// so concurrent customer and product runs never lose each other's writes.
type SyncStateRepository interface {
	Load(ctx context.Context, entityType domain.EntityType) (*domain.SyncState, error)
	SetLastSync(ctx context.Context, entityType domain.EntityType, at time.Time) error
	SaveMapping(ctx context.Context, entityType domain.EntityType, localID, remoteID string) error
	AddConflict(ctx context.Context, entityType domain.EntityType, record domain.ConflictRecord) error
	AddStats(ctx context.Context, entityType domain.EntityType, delta domain.SyncStats) error
	Clear(ctx context.Context, entityType domain.EntityType) error
}

// AuthStateStore keeps short-lived OAuth CSRF state tokens.
type AuthStateStore interface {
	SaveAuthState(ctx context.Context, state string, ttl time.Duration) error
	// ConsumeAuthState deletes the state and reports whether it existed.
	ConsumeAuthState(ctx context.Context, state string) (bool, error)
}
