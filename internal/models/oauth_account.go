package models

import "time"

// OAuthAccount links a local user to one external provider identity.
// (Provider, ProviderUserID) is unique across the system; a user may hold
// several linked accounts. Provider tokens are AES-GCM encrypted at rest
// and never leave the service.
type OAuthAccount struct {
	ID                string
	UserID            string
	Provider          string
	ProviderUserID    string
	ProviderEmail     string
	AccessTokenEnc    []byte
	AccessTokenNonce  []byte
	RefreshTokenEnc   []byte
	RefreshTokenNonce []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OAuthState is a server-generated single-use nonce binding a redirect to
// its callback. Consumption is an atomic check-and-delete; a missing,
// expired, or already-consumed state fails the callback closed.
type OAuthState struct {
	State     string
	Provider  string
	ExpiresAt time.Time
	CreatedAt time.Time
}
