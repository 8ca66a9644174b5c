// Package mapping translates between the CRM's canonical records and the
// Visma.net shapes. Every transform is total: malformed input falls back
// to a safe default instead of failing, so one bad field can never abort
// a sync batch.
package mapping

import "strings"

// FormatOrgNumber strips all non-digits from a Swedish organization
// number. Anything that does not end up as exactly 10 digits is returned
// unchanged so the caller can decide whether to treat it as usable.
func FormatOrgNumber(orgNumber string) string {
	if orgNumber == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range orgNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if len(cleaned) == 10 {
		return cleaned
	}
	return orgNumber
}

// ValidOrgNumber reports whether orgNumber normalizes to the 10-digit
// Swedish format.
func ValidOrgNumber(orgNumber string) bool {
	formatted := FormatOrgNumber(orgNumber)
	if len(formatted) != 10 {
		return false
	}
	for _, r := range formatted {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DeriveVATID derives the Swedish VAT registration ID from an
// organization number, or "" when it cannot.
func DeriveVATID(orgNumber string) string {
	if !ValidOrgNumber(orgNumber) {
		return ""
	}
	return "SE" + FormatOrgNumber(orgNumber) + "01"
}

// MapPaymentTerms converts free-text Swedish payment terms to the
// Visma.net terms enum, defaulting to 30 days.
func MapPaymentTerms(terms string) string {
	switch strings.ToLower(strings.TrimSpace(terms)) {
	case "kontant":
		return "CASH"
	case "netto":
		return "NET"
	case "30 dagar", "30d":
		return "30D"
	case "14 dagar", "14d":
		return "14D"
	case "10 dagar", "10d":
		return "10D"
	case "förskott":
		return "PREPAY"
	default:
		return "30D"
	}
}

// MapCurrency normalizes currency spellings to ISO codes, defaulting
// to SEK.
func MapCurrency(currency string) string {
	switch strings.ToLower(strings.TrimSpace(currency)) {
	case "kr", "sek":
		return "SEK"
	case "eur":
		return "EUR"
	case "usd":
		return "USD"
	case "nok":
		return "NOK"
	case "dkk":
		return "DKK"
	default:
		return "SEK"
	}
}

// MapVATCategory converts a CRM VAT rate label to the Visma.net VAT
// category enum, defaulting to the 25% standard rate.
func MapVATCategory(vatCategory string) string {
	switch strings.ToLower(strings.TrimSpace(vatCategory)) {
	case "25", "normal":
		return "NORMAL"
	case "12", "reduced_12":
		return "REDUCED_12"
	case "6", "reduced_6":
		return "REDUCED_6"
	case "0", "zero":
		return "ZERO"
	case "exempt":
		return "EXEMPT"
	default:
		return "NORMAL"
	}
}
