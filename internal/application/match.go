package application

import (
	"strings"

	"crm-visma-sync-layer/internal/application/mapping"
	"crm-visma-sync-layer/internal/domain"
)

// Matching is a deterministic priority chain, not a scored heuristic:
// a stored identity mapping wins, then the normalized organization
// number, then the lowercased primary email. Ambiguous or partial
// matches fall through to "no match" so two distinct accounts are never
// silently merged.

// RemoteCustomerIndex indexes a loaded Visma.net customer set for O(1)
// matching.
type RemoteCustomerIndex struct {
	byNumber map[string]*domain.VismaCustomer
	byOrg    map[string]*domain.VismaCustomer
	byEmail  map[string]*domain.VismaCustomer
}

// NewRemoteCustomerIndex builds an index over customers. The index holds
// pointers into the slice so refreshing an element after an update is
// visible to later lookups.
func NewRemoteCustomerIndex(customers []domain.VismaCustomer) *RemoteCustomerIndex {
	idx := &RemoteCustomerIndex{
		byNumber: make(map[string]*domain.VismaCustomer, len(customers)),
		byOrg:    make(map[string]*domain.VismaCustomer, len(customers)),
		byEmail:  make(map[string]*domain.VismaCustomer, len(customers)),
	}
	for i := range customers {
		idx.Add(&customers[i])
	}
	return idx
}

// Add registers a customer in the index.
func (idx *RemoteCustomerIndex) Add(c *domain.VismaCustomer) {
	if c.Number != "" {
		idx.byNumber[c.Number] = c
	}
	if c.CorporateID != "" {
		idx.byOrg[mapping.FormatOrgNumber(c.CorporateID)] = c
	}
	if c.MainContact != nil && c.MainContact.Email != "" {
		idx.byEmail[strings.ToLower(c.MainContact.Email)] = c
	}
}

// FindMatch returns the remote counterpart for a canonical customer, or
// nil when no identifier hits.
func (idx *RemoteCustomerIndex) FindMatch(c *domain.Customer, mappings map[string]string) *domain.VismaCustomer {
	if number, ok := mappings[c.ID]; ok {
		if match := idx.byNumber[number]; match != nil {
			return match
		}
	}
	if mapping.ValidOrgNumber(c.OrgNumber) {
		if match := idx.byOrg[mapping.FormatOrgNumber(c.OrgNumber)]; match != nil {
			return match
		}
	}
	if c.Email != "" {
		if match := idx.byEmail[strings.ToLower(c.Email)]; match != nil {
			return match
		}
	}
	return nil
}

// LocalCustomerIndex indexes the CRM customer set for the mirror
// direction.
type LocalCustomerIndex struct {
	byID    map[string]*domain.Customer
	byOrg   map[string]*domain.Customer
	byEmail map[string]*domain.Customer
}

// NewLocalCustomerIndex builds an index over the CRM customers.
func NewLocalCustomerIndex(customers []*domain.Customer) *LocalCustomerIndex {
	idx := &LocalCustomerIndex{
		byID:    make(map[string]*domain.Customer, len(customers)),
		byOrg:   make(map[string]*domain.Customer, len(customers)),
		byEmail: make(map[string]*domain.Customer, len(customers)),
	}
	for _, c := range customers {
		idx.byID[c.ID] = c
		if mapping.ValidOrgNumber(c.OrgNumber) {
			idx.byOrg[mapping.FormatOrgNumber(c.OrgNumber)] = c
		}
		if c.Email != "" {
			idx.byEmail[strings.ToLower(c.Email)] = c
		}
	}
	return idx
}

// FindMatch returns the canonical counterpart for a Visma.net customer.
// reverseMappings is keyed by remote number.
func (idx *LocalCustomerIndex) FindMatch(v *domain.VismaCustomer, reverseMappings map[string]string) *domain.Customer {
	if localID, ok := reverseMappings[v.Number]; ok {
		if match := idx.byID[localID]; match != nil {
			return match
		}
	}
	if v.CorporateID != "" {
		if match := idx.byOrg[mapping.FormatOrgNumber(v.CorporateID)]; match != nil {
			return match
		}
	}
	if v.MainContact != nil && v.MainContact.Email != "" {
		if match := idx.byEmail[strings.ToLower(v.MainContact.Email)]; match != nil {
			return match
		}
	}
	return nil
}

// RemoteItemIndex indexes a loaded Visma.net inventory item set.
type RemoteItemIndex struct {
	byInventoryID map[string]*domain.VismaItem
	byName        map[string]*domain.VismaItem
}

// NewRemoteItemIndex builds an index over items.
func NewRemoteItemIndex(items []domain.VismaItem) *RemoteItemIndex {
	idx := &RemoteItemIndex{
		byInventoryID: make(map[string]*domain.VismaItem, len(items)),
		byName:        make(map[string]*domain.VismaItem, len(items)),
	}
	for i := range items {
		idx.Add(&items[i])
	}
	return idx
}

// Add registers an item in the index.
func (idx *RemoteItemIndex) Add(item *domain.VismaItem) {
	if item.InventoryID != "" {
		idx.byInventoryID[item.InventoryID] = item
	}
	if item.Description != "" {
		idx.byName[strings.ToLower(item.Description)] = item
	}
}

// Get looks an item up by inventory ID.
func (idx *RemoteItemIndex) Get(inventoryID string) *domain.VismaItem {
	return idx.byInventoryID[inventoryID]
}

// FindMatch returns the remote counterpart for a price-list product:
// stored mapping, then inventory ID, then lowercased name.
func (idx *RemoteItemIndex) FindMatch(p *domain.Product, mappings map[string]string) *domain.VismaItem {
	if inventoryID, ok := mappings[p.ID]; ok {
		if match := idx.byInventoryID[inventoryID]; match != nil {
			return match
		}
	}
	if p.VismaInventoryID != "" {
		if match := idx.byInventoryID[p.VismaInventoryID]; match != nil {
			return match
		}
	}
	if p.Name != "" {
		if match := idx.byName[strings.ToLower(p.Name)]; match != nil {
			return match
		}
	}
	return nil
}

// LocalProductIndex indexes the CRM price list.
type LocalProductIndex struct {
	byID          map[string]*domain.Product
	byInventoryID map[string]*domain.Product
	byName        map[string]*domain.Product
}

// NewLocalProductIndex builds an index over the price-list products.
func NewLocalProductIndex(products []*domain.Product) *LocalProductIndex {
	idx := &LocalProductIndex{
		byID:          make(map[string]*domain.Product, len(products)),
		byInventoryID: make(map[string]*domain.Product, len(products)),
		byName:        make(map[string]*domain.Product, len(products)),
	}
	for _, p := range products {
		idx.byID[p.ID] = p
		if p.VismaInventoryID != "" {
			idx.byInventoryID[p.VismaInventoryID] = p
		}
		if p.Name != "" {
			idx.byName[strings.ToLower(p.Name)] = p
		}
	}
	return idx
}

// FindMatch returns the canonical counterpart for a Visma.net item.
func (idx *LocalProductIndex) FindMatch(item *domain.VismaItem, reverseMappings map[string]string) *domain.Product {
	if localID, ok := reverseMappings[item.InventoryID]; ok {
		if match := idx.byID[localID]; match != nil {
			return match
		}
	}
	if item.InventoryID != "" {
		if match := idx.byInventoryID[item.InventoryID]; match != nil {
			return match
		}
	}
	if item.Description != "" {
		if match := idx.byName[strings.ToLower(item.Description)]; match != nil {
			return match
		}
	}
	return nil
}

// reverseMappings flips a localID→remoteID map for the pull direction.
func reverseMappings(mappings map[string]string) map[string]string {
	reversed := make(map[string]string, len(mappings))
	for localID, remoteID := range mappings {
		reversed[remoteID] = localID
	}
	return reversed
}
