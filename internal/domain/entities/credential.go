package entities

import (
	"time"
)

// CredentialState is the connection state of a provider credential.
// Transitions: Disconnected -> Connecting -> Connected; while Connected an
// authorization failure moves to Refreshing, which resolves back to
// Connected (refresh succeeded) or Disconnected (no refresh token, or the
// refresh itself was rejected).
type CredentialState string

const (
	CredentialDisconnected CredentialState = "disconnected"
	CredentialConnecting   CredentialState = "connecting"
	CredentialConnected    CredentialState = "connected"
	CredentialRefreshing   CredentialState = "refreshing"
)

// ProviderCredential holds the bearer credential for one external calendar
// provider connection.
type ProviderCredential struct {
	OwnerID      string          `json:"owner_id" db:"owner_id"`
	Provider     EventSource     `json:"provider" db:"provider"`
	AccessToken  string          `json:"-" db:"access_token"`
	RefreshToken string          `json:"-" db:"refresh_token"`
	State        CredentialState `json:"state" db:"state"`
	LastSyncAt   time.Time       `json:"last_sync_at" db:"last_sync_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Connected reports whether the credential can be used for provider calls.
func (c *ProviderCredential) Connected() bool {
	return c != nil && c.State == CredentialConnected
}
