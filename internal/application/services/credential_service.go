package services

import (
	"context"
	"sync"
	"time"

	"github.com/proagenda/calendar-engine/internal/adapters/providers/calendar"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/observability"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// RefreshOutcome is the typed result of an authorization recovery attempt.
// Callers branch on the value instead of unwinding nested error handling.
type RefreshOutcome int

const (
	// StillConnected: the failure was not an authorization failure, the
	// credential is untouched.
	StillConnected RefreshOutcome = iota

	// Refreshed: the access token was renewed and persisted; the caller may
	// retry the original call exactly once.
	Refreshed

	// Disconnected: no refresh token existed or the refresh was rejected;
	// the credential is disconnected and the caller must not retry.
	Disconnected
)

// CredentialService tracks connection state and expiry of provider
// credentials. Mutations of a shared credential are serialized through a
// per-credential lock so concurrent provider calls (the merge fan-out in
// particular) never observe a half-written token and never trigger more
// than one refresh for the same expiry.
type CredentialService struct {
	repo     repositories.CredentialRepository
	registry *calendar.Registry

	mu    sync.Mutex
	locks map[string]*sync.RWMutex // owner|provider -> credential lock
}

// NewCredentialService creates a new credential service
func NewCredentialService(repo repositories.CredentialRepository, registry *calendar.Registry) *CredentialService {
	return &CredentialService{
		repo:     repo,
		registry: registry,
		locks:    make(map[string]*sync.RWMutex),
	}
}

// lockFor returns the lock guarding one credential's fields. Provider calls
// hold it shared; recovery holds it exclusive.
func (s *CredentialService) lockFor(cred *entities.ProviderCredential) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cred.OwnerID + "|" + string(cred.Provider)
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[key] = lock
	}
	return lock
}

// Get returns the stored credential for (owner, provider).
func (s *CredentialService) Get(ctx context.Context, ownerID string, provider entities.EventSource) (*entities.ProviderCredential, error) {
	return s.repo.Get(ctx, ownerID, provider)
}

// ListConnected returns every Connected credential of the owner.
func (s *CredentialService) ListConnected(ctx context.Context, ownerID string) ([]*entities.ProviderCredential, error) {
	return s.repo.ListConnected(ctx, ownerID)
}

// Connect stores a new credential, moving it Disconnected -> Connecting ->
// Connected. The Connecting hop is observable to subscribers watching the
// store; this engine does not verify the token beyond accepting it.
func (s *CredentialService) Connect(ctx context.Context, ownerID string, provider entities.EventSource, accessToken, refreshToken string) (*entities.ProviderCredential, error) {
	if accessToken == "" {
		return nil, apperrors.NewValidationError("access token is required")
	}
	if _, ok := s.registry.Get(provider); !ok {
		return nil, apperrors.NewValidationError("unknown provider " + string(provider))
	}

	cred := &entities.ProviderCredential{
		OwnerID:      ownerID,
		Provider:     provider,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		State:        entities.CredentialConnecting,
	}
	if err := s.repo.Save(ctx, cred); err != nil {
		return nil, err
	}

	cred.State = entities.CredentialConnected
	if err := s.repo.Save(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// Disconnect drops the credential connection state.
func (s *CredentialService) Disconnect(ctx context.Context, ownerID string, provider entities.EventSource) error {
	cred, err := s.repo.Get(ctx, ownerID, provider)
	if err != nil {
		return err
	}
	cred.State = entities.CredentialDisconnected
	cred.AccessToken = ""
	cred.RefreshToken = ""
	return s.repo.Save(ctx, cred)
}

// MarkSynced records a successful provider sync.
func (s *CredentialService) MarkSynced(ctx context.Context, cred *entities.ProviderCredential) error {
	lock := s.lockFor(cred)
	lock.Lock()
	defer lock.Unlock()
	cred.LastSyncAt = time.Now()
	return s.repo.Save(ctx, cred)
}

// Recover drives the single-refresh-then-disconnect policy after a failed
// provider call. It returns the outcome; on Refreshed the credential holds
// the new access token, already persisted.
func (s *CredentialService) Recover(ctx context.Context, cred *entities.ProviderCredential, callErr error) RefreshOutcome {
	if !providers.IsAuthExpired(callErr) {
		return StillConnected
	}
	lock := s.lockFor(cred)
	lock.Lock()
	defer lock.Unlock()
	return s.recoverLocked(ctx, cred, cred.AccessToken, callErr)
}

// recoverLocked runs the refresh-or-disconnect decision. The caller holds
// the credential's write lock; staleToken is the access token the failing
// call used, so a refresh completed by a concurrent caller is detected and
// not repeated.
func (s *CredentialService) recoverLocked(ctx context.Context, cred *entities.ProviderCredential, staleToken string, callErr error) RefreshOutcome {
	if cred.State == entities.CredentialDisconnected {
		return Disconnected
	}
	if cred.AccessToken != staleToken {
		// Another caller already refreshed while this call was in flight.
		return Refreshed
	}

	logger := observability.LoggerFromContext(ctx)

	cred.State = entities.CredentialRefreshing
	if err := s.repo.Save(ctx, cred); err != nil {
		logger.Error().Err(err).Str("provider", string(cred.Provider)).Msg("failed to persist refreshing state")
	}

	refresher, ok := s.registry.Refresher(cred.Provider)
	if !ok || cred.RefreshToken == "" {
		s.disconnect(ctx, cred)
		return Disconnected
	}

	accessToken, err := refresher.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		logger.Warn().Err(err).Str("provider", string(cred.Provider)).Msg("token refresh rejected, disconnecting")
		s.disconnect(ctx, cred)
		return Disconnected
	}

	cred.AccessToken = accessToken
	cred.State = entities.CredentialConnected
	if err := s.repo.Save(ctx, cred); err != nil {
		logger.Error().Err(err).Str("provider", string(cred.Provider)).Msg("failed to persist refreshed token")
	}
	return Refreshed
}

func (s *CredentialService) disconnect(ctx context.Context, cred *entities.ProviderCredential) {
	cred.State = entities.CredentialDisconnected
	if err := s.repo.Save(ctx, cred); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).
			Str("provider", string(cred.Provider)).Msg("failed to persist disconnect")
	}
}

// CallWithRefresh runs a provider call under the credential policy: on an
// authorization failure it attempts exactly one refresh and, if refreshed,
// retries the call once. Any second failure propagates as an Auth error
// without further retries. The call runs under the credential's read lock,
// so concurrent callers proceed in parallel while recovery is exclusive;
// when several calls fail on the same stale token only the first performs
// the refresh and the rest retry on the renewed one.
func (s *CredentialService) CallWithRefresh(ctx context.Context, cred *entities.ProviderCredential, call func() error) error {
	lock := s.lockFor(cred)

	lock.RLock()
	staleToken := cred.AccessToken
	err := call()
	lock.RUnlock()
	if err == nil {
		return nil
	}
	if !providers.IsAuthExpired(err) {
		return err
	}

	lock.Lock()
	outcome := s.recoverLocked(ctx, cred, staleToken, err)
	lock.Unlock()

	switch outcome {
	case Disconnected:
		return apperrors.NewAuthError("provider credential disconnected", err)
	case Refreshed:
		lock.RLock()
		retryErr := call()
		lock.RUnlock()
		if retryErr != nil {
			if providers.IsAuthExpired(retryErr) {
				lock.Lock()
				s.disconnect(ctx, cred)
				lock.Unlock()
				return apperrors.NewAuthError("provider rejected refreshed credential", retryErr)
			}
			return retryErr
		}
		return nil
	}
	return err
}
