package types

import "time"

// AuthType identifies how credentials were obtained
type AuthType string

const (
	AuthTypeOAuth AuthType = "oauth"
)

// Credentials are the in-memory form of a cached OAuth token
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiryDate   time.Time
	Scopes       []string
	Type         AuthType
}

// StoredCredentials is the serialized form kept by a storage backend
type StoredCredentials struct {
	Profile      string   `json:"profile"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiryDate   string   `json:"expiryDate"`
	Scopes       []string `json:"scopes"`
	Type         AuthType `json:"type"`
}
