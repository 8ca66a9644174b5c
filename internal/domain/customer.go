package domain

import "time"

// Customer is the CRM-owned canonical representation of a customer.
// The sync engine reads it as-is and only ever writes back the
// VismaNumber back-reference once a remote counterpart is established.
type Customer struct {
	ID             string    `json:"id" bson:"_id"`
	CustomerNumber string    `json:"customer_number,omitempty" bson:"customer_number,omitempty"`
	Name           string    `json:"name" bson:"name"`
	OrgNumber      string    `json:"org_number,omitempty" bson:"org_number,omitempty"`
	VATID          string    `json:"vat_id,omitempty" bson:"vat_id,omitempty"`
	Email          string    `json:"email,omitempty" bson:"email,omitempty"`
	Phone          string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Website        string    `json:"website,omitempty" bson:"website,omitempty"`
	Address        Address   `json:"address" bson:"address"`
	CreditLimit    float64   `json:"credit_limit,omitempty" bson:"credit_limit,omitempty"`
	PaymentTerms   string    `json:"payment_terms,omitempty" bson:"payment_terms,omitempty"`
	Currency       string    `json:"currency,omitempty" bson:"currency,omitempty"`
	VismaNumber    string    `json:"visma_number,omitempty" bson:"visma_number,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitzero" bson:"created_at,omitempty"`
	LastModified   time.Time `json:"last_modified,omitzero" bson:"last_modified,omitempty"`
}

// Address is the canonical address block shared by customers.
type Address struct {
	Line1      string `json:"line1,omitempty" bson:"line1,omitempty"`
	Line2      string `json:"line2,omitempty" bson:"line2,omitempty"`
	PostalCode string `json:"postal_code,omitempty" bson:"postal_code,omitempty"`
	City       string `json:"city,omitempty" bson:"city,omitempty"`
	Country    string `json:"country,omitempty" bson:"country,omitempty"`
}
