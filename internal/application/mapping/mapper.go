package mapping

import (
	"strconv"
	"strings"

	"crm-visma-sync-layer/internal/domain"
)

// Defaults applied when creating remote records, matching the values the
// company has always used in Visma.net.
const (
	DefaultCurrency    = "SEK"
	DefaultStatus      = "Active"
	DefaultTerms       = "30D"
	DefaultCountry     = "SE"
	DefaultUnit        = "ST"
	DefaultVATCategory = "NORMAL"
	DefaultItemClass   = "SOFTWARE"
	DefaultItemType    = "Service"
	DefaultWarehouse   = "MAIN"
)

// CustomerToVisma maps a canonical customer to the Visma.net shape.
// Pure: it never mutates its input and never fails.
func CustomerToVisma(c *domain.Customer) *domain.VismaCustomer {
	v := &domain.VismaCustomer{
		Number:               c.VismaNumber,
		Name:                 c.Name,
		CurrencyID:           MapCurrency(c.Currency),
		Status:               DefaultStatus,
		Terms:                MapPaymentTerms(c.PaymentTerms),
		CreditLimit:          c.CreditLimit,
		WebSite:              c.Website,
		CreatedDateTime:      c.CreatedAt,
		LastModifiedDateTime: c.LastModified,
	}
	if c.CustomerNumber != "" {
		v.Number = c.CustomerNumber
	}

	if ValidOrgNumber(c.OrgNumber) {
		v.CorporateID = FormatOrgNumber(c.OrgNumber)
		if c.VATID != "" {
			v.VATRegistrationID = c.VATID
		} else {
			v.VATRegistrationID = DeriveVATID(c.OrgNumber)
		}
	}

	v.MainContact = &domain.VismaContact{
		Email: c.Email,
		Phone: c.Phone,
	}

	country := c.Address.Country
	if country == "" {
		country = DefaultCountry
	}
	v.MainAddress = &domain.VismaAddress{
		AddressLine1: c.Address.Line1,
		AddressLine2: c.Address.Line2,
		PostalCode:   c.Address.PostalCode,
		City:         c.Address.City,
		Country:      country,
	}

	return v
}

// CustomerFromVisma maps a Visma.net customer back to the canonical
// shape. Lossy only for fields genuinely absent on the remote side.
func CustomerFromVisma(v *domain.VismaCustomer) *domain.Customer {
	c := &domain.Customer{
		CustomerNumber: v.Number,
		Name:           v.Name,
		OrgNumber:      v.CorporateID,
		VATID:          v.VATRegistrationID,
		Website:        v.WebSite,
		CreditLimit:    v.CreditLimit,
		PaymentTerms:   v.Terms,
		Currency:       v.CurrencyID,
		VismaNumber:    v.Number,
		CreatedAt:      v.CreatedDateTime,
		LastModified:   v.LastModifiedDateTime,
	}
	if v.MainContact != nil {
		c.Email = v.MainContact.Email
		c.Phone = v.MainContact.Phone
	}
	if v.MainAddress != nil {
		c.Address = domain.Address{
			Line1:      v.MainAddress.AddressLine1,
			Line2:      v.MainAddress.AddressLine2,
			PostalCode: v.MainAddress.PostalCode,
			City:       v.MainAddress.City,
			Country:    v.MainAddress.Country,
		}
	}
	return c
}

// ProductToVisma maps a price-list product to the Visma.net inventory
// item shape.
func ProductToVisma(p *domain.Product) *domain.VismaItem {
	status := "Inactive"
	if p.Active {
		status = DefaultStatus
	}

	unit := p.Unit
	if unit == "" {
		unit = DefaultUnit
	}
	class := p.Category
	if class == "" {
		class = DefaultItemClass
	}
	itemType := p.Type
	if itemType == "" {
		itemType = DefaultItemType
	}

	return &domain.VismaItem{
		InventoryID:          p.VismaInventoryID,
		Description:          p.Name,
		BasePrice:            p.BasePrice,
		BaseUnit:             unit,
		VATCategory:          MapVATCategory(p.VATCategory),
		ItemClass:            class,
		Type:                 itemType,
		Status:               status,
		CostPrice:            p.CostPrice,
		Markup:               p.Markup,
		DefaultWarehouse:     DefaultWarehouse,
		CreatedDateTime:      p.CreatedAt,
		LastModifiedDateTime: p.LastModified,
	}
}

// ProductFromVisma maps a Visma.net inventory item back to the canonical
// price-list shape.
func ProductFromVisma(v *domain.VismaItem) *domain.Product {
	unit := v.BaseUnit
	if unit == "" {
		unit = DefaultUnit
	}
	vat := v.VATCategory
	if vat == "" {
		vat = DefaultVATCategory
	}
	itemType := v.Type
	if itemType == "" {
		itemType = DefaultItemType
	}
	return &domain.Product{
		Name:             v.Description,
		Category:         v.ItemClass,
		BasePrice:        v.BasePrice,
		CostPrice:        v.CostPrice,
		Markup:           v.Markup,
		Unit:             unit,
		VATCategory:      vat,
		Type:             itemType,
		Active:           v.Status == DefaultStatus,
		VismaInventoryID: v.InventoryID,
		CreatedAt:        v.CreatedDateTime,
		LastModified:     v.LastModifiedDateTime,
	}
}

// GenerateInventoryID builds a short, readable Visma.net inventory ID
// from a product name, suffixing a counter when the candidate collides
// with an already-assigned ID.
func GenerateInventoryID(name string, taken map[string]bool) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	id := b.String()
	if len(id) > 20 {
		id = id[:20]
	}
	if id == "" {
		id = "ITEM"
	}

	candidate := id
	for counter := 1; taken[candidate]; counter++ {
		candidate = id + "_" + strconv.Itoa(counter)
	}
	return candidate
}
