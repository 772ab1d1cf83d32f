package repositories

import (
	"context"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
)

// CredentialRepository persists provider credentials and their connection
// state.
type CredentialRepository interface {
	// Get returns the credential for (owner, provider), or a NotFound error.
	Get(ctx context.Context, ownerID string, provider entities.EventSource) (*entities.ProviderCredential, error)

	// ListConnected returns every credential of the owner currently in the
	// Connected state.
	ListConnected(ctx context.Context, ownerID string) ([]*entities.ProviderCredential, error)

	// Save upserts the credential.
	Save(ctx context.Context, credential *entities.ProviderCredential) error

	// Delete removes the credential entirely.
	Delete(ctx context.Context, ownerID string, provider entities.EventSource) error
}
