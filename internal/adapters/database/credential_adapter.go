package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/clients/postgres"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// CredentialAdapter implements the CredentialRepository interface
type CredentialAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewCredentialAdapter creates a new credential adapter
func NewCredentialAdapter(client *postgres.Client) repositories.CredentialRepository {
	return &CredentialAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var credentialColumns = []interface{}{
	"owner_id", "provider", "access_token", "refresh_token",
	"state", "last_sync_at", "updated_at",
}

// Get returns the credential for (owner, provider).
func (a *CredentialAdapter) Get(ctx context.Context, ownerID string, provider entities.EventSource) (*entities.ProviderCredential, error) {
	query, args, err := a.db.Select(credentialColumns...).
		From("provider_credentials").
		Where(goqu.Ex{"owner_id": ownerID, "provider": provider}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	cred, err := scanCredential(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no %s credential for owner %s", provider, ownerID))
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to get credential", err)
	}
	return cred, nil
}

// ListConnected returns every Connected credential of the owner.
func (a *CredentialAdapter) ListConnected(ctx context.Context, ownerID string) ([]*entities.ProviderCredential, error) {
	query, args, err := a.db.Select(credentialColumns...).
		From("provider_credentials").
		Where(goqu.Ex{"owner_id": ownerID, "state": entities.CredentialConnected}).
		Order(goqu.I("provider").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list credentials", err)
	}
	defer rows.Close()

	var creds []*entities.ProviderCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to scan credential", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read credentials", err)
	}

	return creds, nil
}

// Save upserts the credential, keyed by (owner, provider).
func (a *CredentialAdapter) Save(ctx context.Context, credential *entities.ProviderCredential) error {
	credential.UpdatedAt = time.Now()

	record := goqu.Record{
		"owner_id":      credential.OwnerID,
		"provider":      credential.Provider,
		"access_token":  credential.AccessToken,
		"refresh_token": credential.RefreshToken,
		"state":         credential.State,
		"last_sync_at":  credential.LastSyncAt,
		"updated_at":    credential.UpdatedAt,
	}

	query, args, err := a.db.Insert("provider_credentials").
		Rows(record).
		OnConflict(goqu.DoUpdate("owner_id, provider", goqu.Record{
			"access_token":  credential.AccessToken,
			"refresh_token": credential.RefreshToken,
			"state":         credential.State,
			"last_sync_at":  credential.LastSyncAt,
			"updated_at":    credential.UpdatedAt,
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewStorageError("failed to save credential", err)
	}

	return nil
}

// Delete removes the credential.
func (a *CredentialAdapter) Delete(ctx context.Context, ownerID string, provider entities.EventSource) error {
	query, args, err := a.db.Delete("provider_credentials").
		Where(goqu.Ex{"owner_id": ownerID, "provider": provider}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewStorageError("failed to delete credential", err)
	}
	return nil
}

func scanCredential(row rowScanner) (*entities.ProviderCredential, error) {
	cred := &entities.ProviderCredential{}
	var refreshToken sql.NullString
	var lastSyncAt sql.NullTime

	err := row.Scan(
		&cred.OwnerID,
		&cred.Provider,
		&cred.AccessToken,
		&refreshToken,
		&cred.State,
		&lastSyncAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cred.RefreshToken = refreshToken.String
	if lastSyncAt.Valid {
		cred.LastSyncAt = lastSyncAt.Time
	}
	return cred, nil
}
