package domain

import "time"

// Product is a CRM price-list entry. VismaInventoryID is the only field
// the sync engine writes back after a remote create.
type Product struct {
	ID               string    `json:"id" bson:"_id"`
	Name             string    `json:"name" bson:"name"`
	Description      string    `json:"description,omitempty" bson:"description,omitempty"`
	Category         string    `json:"category,omitempty" bson:"category,omitempty"`
	BasePrice        float64   `json:"base_price" bson:"base_price"`
	CostPrice        float64   `json:"cost_price,omitempty" bson:"cost_price,omitempty"`
	Markup           float64   `json:"markup,omitempty" bson:"markup,omitempty"`
	Unit             string    `json:"unit,omitempty" bson:"unit,omitempty"`
	VATCategory      string    `json:"vat_category,omitempty" bson:"vat_category,omitempty"`
	Type             string    `json:"type,omitempty" bson:"type,omitempty"`
	Active           bool      `json:"active" bson:"active"`
	VismaInventoryID string    `json:"visma_inventory_id,omitempty" bson:"visma_inventory_id,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitzero" bson:"created_at,omitempty"`
	LastModified     time.Time `json:"last_modified,omitzero" bson:"last_modified,omitempty"`
}
