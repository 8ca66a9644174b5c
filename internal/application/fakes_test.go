package application

import (
	"context"
	"fmt"
	"time"

	"crm-visma-sync-layer/internal/domain"
)

// In-memory fakes for the repository and client ports. They mirror just
// enough remote behavior (number assignment, record replacement) for
// the services to be exercised end to end.

type fakeCustomerRepo struct {
	customers []*domain.Customer
	listErr   error
}

func (f *fakeCustomerRepo) List(ctx context.Context) ([]*domain.Customer, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.customers, nil
}

func (f *fakeCustomerRepo) Upsert(ctx context.Context, customer *domain.Customer) error {
	for i, c := range f.customers {
		if c.ID == customer.ID {
			f.customers[i] = customer
			return nil
		}
	}
	f.customers = append(f.customers, customer)
	return nil
}

func (f *fakeCustomerRepo) SetVismaNumber(ctx context.Context, id string, number string) error {
	for _, c := range f.customers {
		if c.ID == id {
			c.VismaNumber = number
			return nil
		}
	}
	return nil
}

type fakeProductRepo struct {
	products []*domain.Product
}

func (f *fakeProductRepo) ListActive(ctx context.Context) ([]*domain.Product, error) {
	var active []*domain.Product
	for _, p := range f.products {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

func (f *fakeProductRepo) Upsert(ctx context.Context, product *domain.Product) error {
	for i, p := range f.products {
		if p.ID == product.ID {
			f.products[i] = product
			return nil
		}
	}
	f.products = append(f.products, product)
	return nil
}

func (f *fakeProductRepo) SetVismaInventoryID(ctx context.Context, id string, inventoryID string) error {
	for _, p := range f.products {
		if p.ID == id {
			p.VismaInventoryID = inventoryID
			return nil
		}
	}
	return nil
}

type fakeStateRepo struct {
	states map[domain.EntityType]*domain.SyncState
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: map[domain.EntityType]*domain.SyncState{}}
}

func (f *fakeStateRepo) state(entityType domain.EntityType) *domain.SyncState {
	s, ok := f.states[entityType]
	if !ok {
		s = &domain.SyncState{EntityType: entityType, Mappings: map[string]string{}}
		f.states[entityType] = s
	}
	return s
}

func (f *fakeStateRepo) Load(ctx context.Context, entityType domain.EntityType) (*domain.SyncState, error) {
	src := f.state(entityType)
	mappings := make(map[string]string, len(src.Mappings))
	for k, v := range src.Mappings {
		mappings[k] = v
	}
	copied := *src
	copied.Mappings = mappings
	return &copied, nil
}

func (f *fakeStateRepo) SetLastSync(ctx context.Context, entityType domain.EntityType, at time.Time) error {
	f.state(entityType).LastSync = at
	return nil
}

func (f *fakeStateRepo) SaveMapping(ctx context.Context, entityType domain.EntityType, localID, remoteID string) error {
	f.state(entityType).Mappings[localID] = remoteID
	return nil
}

func (f *fakeStateRepo) AddConflict(ctx context.Context, entityType domain.EntityType, record domain.ConflictRecord) error {
	s := f.state(entityType)
	s.Conflicts = append(s.Conflicts, record)
	return nil
}

func (f *fakeStateRepo) AddStats(ctx context.Context, entityType domain.EntityType, delta domain.SyncStats) error {
	s := f.state(entityType)
	s.Stats.Created += delta.Created
	s.Stats.Updated += delta.Updated
	s.Stats.PriceUpdates += delta.PriceUpdates
	s.Stats.Errors += delta.Errors
	s.Stats.Conflicts += delta.Conflicts
	return nil
}

func (f *fakeStateRepo) Clear(ctx context.Context, entityType domain.EntityType) error {
	delete(f.states, entityType)
	return nil
}

type fakeVisma struct {
	customers []domain.VismaCustomer
	items     []domain.VismaItem

	nextCustomerNumber int

	createCustomerCalls int
	updateCustomerCalls int
	createItemCalls     int
	updateItemCalls     int
	priceUpdateCalls    int

	// createCustomerErr fails CreateCustomer for customers with a
	// matching name.
	createCustomerErr map[string]error
	updateCustomerErr map[string]error
	priceUpdateErr    map[string]error
}

func (f *fakeVisma) ListCustomers(ctx context.Context) ([]domain.VismaCustomer, error) {
	out := make([]domain.VismaCustomer, len(f.customers))
	copy(out, f.customers)
	return out, nil
}

func (f *fakeVisma) GetCustomer(ctx context.Context, number string) (*domain.VismaCustomer, error) {
	for i := range f.customers {
		if f.customers[i].Number == number {
			c := f.customers[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeVisma) CreateCustomer(ctx context.Context, customer *domain.VismaCustomer) (*domain.VismaCustomer, error) {
	f.createCustomerCalls++
	if err := f.createCustomerErr[customer.Name]; err != nil {
		return nil, err
	}
	created := *customer
	if created.Number == "" {
		f.nextCustomerNumber++
		created.Number = fmt.Sprintf("C%03d", f.nextCustomerNumber)
	}
	f.customers = append(f.customers, created)
	return &created, nil
}

func (f *fakeVisma) UpdateCustomer(ctx context.Context, number string, customer *domain.VismaCustomer) (*domain.VismaCustomer, error) {
	f.updateCustomerCalls++
	if err := f.updateCustomerErr[customer.Name]; err != nil {
		return nil, err
	}
	updated := *customer
	updated.Number = number
	for i := range f.customers {
		if f.customers[i].Number == number {
			f.customers[i] = updated
			return &updated, nil
		}
	}
	return &updated, nil
}

func (f *fakeVisma) ListItems(ctx context.Context) ([]domain.VismaItem, error) {
	out := make([]domain.VismaItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeVisma) GetItem(ctx context.Context, inventoryID string) (*domain.VismaItem, error) {
	for i := range f.items {
		if f.items[i].InventoryID == inventoryID {
			item := f.items[i]
			return &item, nil
		}
	}
	return nil, nil
}

func (f *fakeVisma) CreateItem(ctx context.Context, item *domain.VismaItem) (*domain.VismaItem, error) {
	f.createItemCalls++
	created := *item
	f.items = append(f.items, created)
	return &created, nil
}

func (f *fakeVisma) UpdateItem(ctx context.Context, inventoryID string, item *domain.VismaItem) (*domain.VismaItem, error) {
	f.updateItemCalls++
	updated := *item
	updated.InventoryID = inventoryID
	for i := range f.items {
		if f.items[i].InventoryID == inventoryID {
			f.items[i] = updated
			return &updated, nil
		}
	}
	return &updated, nil
}

func (f *fakeVisma) UpdateItemPrice(ctx context.Context, inventoryID string, basePrice float64) (*domain.VismaItem, error) {
	f.priceUpdateCalls++
	if err := f.priceUpdateErr[inventoryID]; err != nil {
		return nil, err
	}
	for i := range f.items {
		if f.items[i].InventoryID == inventoryID {
			f.items[i].BasePrice = basePrice
			item := f.items[i]
			return &item, nil
		}
	}
	return nil, fmt.Errorf("inventory item %s not found", inventoryID)
}

func (f *fakeVisma) CompanyInfo(ctx context.Context) (map[string]any, error) {
	return map[string]any{"name": "Sweden Broker AB"}, nil
}

func (f *fakeVisma) VATCategories(ctx context.Context) ([]domain.VATCategory, error) {
	return []domain.VATCategory{
		{Number: "NORMAL", Description: "Standard rate 25%"},
		{Number: "REDUCED", Description: "Reduced rate 12%"},
	}, nil
}

func (f *fakeVisma) ItemClasses(ctx context.Context) ([]domain.ItemClass, error) {
	return []domain.ItemClass{{ID: "SOFTWARE", Description: "Software and services"}}, nil
}
