package domain

import "time"

// OAuthSession holds the token state obtained from the identity provider.
type OAuthSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthStatus is the operator-facing view of the token state.
type AuthStatus struct {
	Authenticated   bool          `json:"authenticated"`
	ExpiresAt       time.Time     `json:"expires_at,omitzero"`
	TimeUntilExpiry time.Duration `json:"time_until_expiry"`
	HasRefreshToken bool          `json:"has_refresh_token"`
}
