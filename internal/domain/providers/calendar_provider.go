package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
)

// CalendarProvider defines the interface for external calendar services
// (Google-style, Microsoft-style). Every operation takes the credential it
// should authenticate with and returns either a typed result or a
// *ProviderError.
type CalendarProvider interface {
	// Source returns the tag events fetched through this adapter carry.
	Source() entities.EventSource

	// ListCalendars returns the remote calendars reachable under the
	// credential.
	ListCalendars(ctx context.Context, cred *entities.ProviderCredential) ([]entities.CalendarRef, error)

	// FetchEvents returns the events of one remote calendar overlapping
	// [from, to), normalized into the shared CalendarEvent shape.
	FetchEvents(ctx context.Context, cred *entities.ProviderCredential, calendar entities.CalendarRef, from, to time.Time) ([]entities.CalendarEvent, error)

	// CreateEvent creates an event on the credential's primary calendar.
	CreateEvent(ctx context.Context, cred *entities.ProviderCredential, fields entities.EventFields) (*entities.CalendarEvent, error)

	// UpdateEvent patches the remote event.
	UpdateEvent(ctx context.Context, cred *entities.ProviderCredential, remoteID string, patch entities.EventPatch) (*entities.CalendarEvent, error)

	// DeleteEvent removes the remote event.
	DeleteEvent(ctx context.Context, cred *entities.ProviderCredential, remoteID string) error
}

// TokenRefresher exchanges a refresh token for a new access token. Separate
// from CalendarProvider because the credential service, not the merge path,
// drives refresh.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (accessToken string, err error)
}

// ProviderErrorCode classifies provider failures.
type ProviderErrorCode string

const (
	ProviderErrAuthExpired ProviderErrorCode = "AUTH_EXPIRED"
	ProviderErrRateLimited ProviderErrorCode = "RATE_LIMITED"
	ProviderErrNotFound    ProviderErrorCode = "NOT_FOUND"
	ProviderErrUnknown     ProviderErrorCode = "UNKNOWN"
)

// ProviderError is the typed error surface of every provider adapter.
type ProviderError struct {
	Source     entities.EventSource
	Code       ProviderErrorCode
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s provider: %s (status %d): %v", e.Source, e.Code, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider: %s (status %d)", e.Source, e.Code, e.StatusCode)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsAuthExpired reports whether err is a provider authorization failure.
func IsAuthExpired(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == ProviderErrAuthExpired
}

// IsRateLimited reports whether err is a provider throttling response.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == ProviderErrRateLimited
}
