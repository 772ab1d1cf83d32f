package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	"github.com/sony/gobreaker"
)

// restClient is the HTTP plumbing shared by both calendar adapters: bearer
// authentication, JSON codec, typed status mapping, and a circuit breaker so
// a degraded provider fails fast instead of stalling every merge cycle.
type restClient struct {
	source  entities.EventSource
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

type restResponse struct {
	status int
	body   []byte
}

func newRESTClient(source entities.EventSource, baseURL string, timeout time.Duration) *restClient {
	return &restClient{
		source:  source,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(source) + "-calendar",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// doJSON performs an authenticated request and decodes a JSON response into
// out (when out is non-nil). Authorization and not-found responses pass
// through the breaker as successes so only transport faults, throttling and
// server errors trip it.
func (c *restClient) doJSON(ctx context.Context, cred *entities.ProviderCredential, method, path string, query url.Values, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return transportError(c.source, fmt.Errorf("failed to encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return transportError(c.source, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, mapStatus(c.source, resp.StatusCode, string(data))
		}
		return restResponse{status: resp.StatusCode, body: data}, nil
	})
	if err != nil {
		if pe, ok := err.(*providers.ProviderError); ok {
			return pe
		}
		return transportError(c.source, err)
	}

	resp := result.(restResponse)
	if resp.status < http.StatusOK || resp.status >= http.StatusMultipleChoices {
		return mapStatus(c.source, resp.status, string(resp.body))
	}

	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return transportError(c.source, fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}

// refreshGrant posts a refresh-token grant to the provider token endpoint.
func refreshGrant(ctx context.Context, client *http.Client, source entities.EventSource, tokenURL, refreshToken string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", transportError(source, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", transportError(source, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(source, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", mapStatus(source, resp.StatusCode, string(data))
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &token); err != nil {
		return "", transportError(source, fmt.Errorf("failed to decode token response: %w", err))
	}
	if token.AccessToken == "" {
		return "", transportError(source, fmt.Errorf("token response missing access_token"))
	}
	return token.AccessToken, nil
}
