package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims minted into signed access tokens. SessionID
// references the server-side session so revocation checks can override a
// structurally valid signature.
type AccessClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenPair is the artifact bundle handed to a freshly authenticated client.
// The refresh token is opaque; only its hash is persisted.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime, seconds
}
