package domain

import "time"

// VismaCustomer mirrors the customer resource of the Visma.net API.
// The platform owns this shape; the engine only sends the fields it
// explicitly sets and never assumes it may mutate anything else.
type VismaCustomer struct {
	Number               string        `json:"number,omitempty"`
	Name                 string        `json:"name,omitempty"`
	CorporateID          string        `json:"corporateID,omitempty"`
	VATRegistrationID    string        `json:"vatRegistrationID,omitempty"`
	CurrencyID           string        `json:"currencyId,omitempty"`
	Status               string        `json:"status,omitempty"`
	Terms                string        `json:"terms,omitempty"`
	CreditLimit          float64       `json:"creditLimit,omitempty"`
	WebSite              string        `json:"webSite,omitempty"`
	MainContact          *VismaContact `json:"mainContact,omitempty"`
	MainAddress          *VismaAddress `json:"mainAddress,omitempty"`
	CreatedDateTime      time.Time     `json:"createdDateTime,omitzero"`
	LastModifiedDateTime time.Time     `json:"lastModifiedDateTime,omitzero"`
}

// VismaContact is the nested contact block on a Visma.net customer.
type VismaContact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// VismaAddress is the nested address block on a Visma.net customer.
type VismaAddress struct {
	AddressLine1 string `json:"addressLine1,omitempty"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
}

// VismaItem mirrors the inventory-item resource of the Visma.net API.
type VismaItem struct {
	InventoryID          string    `json:"inventoryID,omitempty"`
	Description          string    `json:"description,omitempty"`
	BasePrice            float64   `json:"basePrice"`
	BaseUnit             string    `json:"baseUnit,omitempty"`
	VATCategory          string    `json:"vatCategory,omitempty"`
	ItemClass            string    `json:"itemClass,omitempty"`
	Type                 string    `json:"type,omitempty"`
	Status               string    `json:"status,omitempty"`
	CostPrice            float64   `json:"costPrice,omitempty"`
	Markup               float64   `json:"markup,omitempty"`
	DefaultWarehouse     string    `json:"defaultWarehouse,omitempty"`
	CreatedDateTime      time.Time `json:"createdDateTime,omitzero"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime,omitzero"`
}

// VATCategory is a Visma.net VAT category lookup row.
type VATCategory struct {
	Number      string `json:"number"`
	Description string `json:"description,omitempty"`
}

// ItemClass is a Visma.net item class lookup row.
type ItemClass struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}
