package calendar

import (
	"fmt"
	"net/http"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
)

// mapStatus converts a non-2xx provider response into the typed error
// surface every adapter shares.
func mapStatus(source entities.EventSource, statusCode int, body string) *providers.ProviderError {
	var code providers.ProviderErrorCode
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		code = providers.ProviderErrAuthExpired
	case statusCode == http.StatusTooManyRequests:
		code = providers.ProviderErrRateLimited
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		code = providers.ProviderErrNotFound
	default:
		code = providers.ProviderErrUnknown
	}

	return &providers.ProviderError{
		Source:     source,
		Code:       code,
		StatusCode: statusCode,
		Err:        fmt.Errorf("unexpected response: %s", truncate(body, 200)),
	}
}

// transportError wraps a network-level failure (including an open circuit
// breaker) as an Unknown provider error.
func transportError(source entities.EventSource, err error) *providers.ProviderError {
	return &providers.ProviderError{
		Source: source,
		Code:   providers.ProviderErrUnknown,
		Err:    err,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
