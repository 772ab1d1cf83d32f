package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCred() *entities.ProviderCredential {
	return &entities.ProviderCredential{
		OwnerID: "owner-1", Provider: entities.SourceGoogle,
		AccessToken: "test-access", RefreshToken: "test-refresh",
		State: entities.CredentialConnected,
	}
}

func TestGoogleAdapter_ListCalendars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/calendarList", r.URL.Path)
		assert.Equal(t, "Bearer test-access", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"id": "primary-id", "summary": "Work", "primary": true},
				{"id": "second-id", "summary": "Personal"},
			},
		})
	}))
	defer server.Close()

	adapter := NewGoogleAdapter(server.URL, server.URL+"/token", 5*time.Second)
	refs, err := adapter.ListCalendars(context.Background(), testCred())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, entities.CalendarRef{ID: "primary-id", Name: "Work", Primary: true}, refs[0])
}

func TestGoogleAdapter_FetchEvents(t *testing.T) {
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendars/cal-1/events", r.URL.Path)
		assert.Equal(t, from.Format(time.RFC3339), r.URL.Query().Get("timeMin"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{
					"id": "ev-1", "summary": "Standup",
					"start": map[string]string{"dateTime": "2026-09-07T09:00:00Z"},
					"end":   map[string]string{"dateTime": "2026-09-07T09:30:00Z"},
				},
				{
					"id": "ev-2", "summary": "Focus time", "transparency": "transparent",
					"start": map[string]string{"dateTime": "2026-09-07T13:00:00Z"},
					"end":   map[string]string{"dateTime": "2026-09-07T15:00:00Z"},
				},
				{
					"id": "ev-3", "summary": "Conference",
					"start": map[string]string{"date": "2026-09-07"},
					"end":   map[string]string{"date": "2026-09-08"},
				},
				{
					"id": "ev-4", "summary": "Cancelled thing", "status": "cancelled",
					"start": map[string]string{"dateTime": "2026-09-07T10:00:00Z"},
					"end":   map[string]string{"dateTime": "2026-09-07T11:00:00Z"},
				},
			},
		})
	}))
	defer server.Close()

	adapter := NewGoogleAdapter(server.URL, server.URL+"/token", 5*time.Second)
	events, err := adapter.FetchEvents(context.Background(), testCred(), entities.CalendarRef{ID: "cal-1"}, from, to)
	require.NoError(t, err)
	require.Len(t, events, 3, "cancelled events are dropped")

	assert.Equal(t, "Standup", events[0].Title)
	assert.Equal(t, entities.SourceGoogle, events[0].Source)
	assert.Equal(t, "ev-1", events[0].RemoteID)
	assert.Equal(t, entities.KindEvent, events[0].Kind)

	assert.Equal(t, entities.KindAvailabilityBlock, events[1].Kind, "transparent events widen availability")

	assert.True(t, events[2].AllDay)
	assert.Equal(t, time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), events[2].Start)
}

func TestGoogleAdapter_FetchEvents_AuthExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401}}`))
	}))
	defer server.Close()

	adapter := NewGoogleAdapter(server.URL, server.URL+"/token", 5*time.Second)
	_, err := adapter.FetchEvents(context.Background(), testCred(), entities.CalendarRef{ID: "cal-1"}, time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.True(t, providers.IsAuthExpired(err))
}

func TestGoogleAdapter_FetchEvents_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := NewGoogleAdapter(server.URL, server.URL+"/token", 5*time.Second)
	_, err := adapter.FetchEvents(context.Background(), testCred(), entities.CalendarRef{ID: "cal-1"}, time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.True(t, providers.IsRateLimited(err))
}

func TestGoogleAdapter_CreateEvent(t *testing.T) {
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Consult", payload["summary"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "created-1", "summary": "Consult",
			"start": map[string]string{"dateTime": start.Format(time.RFC3339)},
			"end":   map[string]string{"dateTime": end.Format(time.RFC3339)},
		})
	}))
	defer server.Close()

	adapter := NewGoogleAdapter(server.URL, server.URL+"/token", 5*time.Second)
	event, err := adapter.CreateEvent(context.Background(), testCred(), entities.EventFields{
		Title: "Consult", Start: start, End: end,
	})
	require.NoError(t, err)
	assert.Equal(t, "created-1", event.RemoteID)
	assert.Equal(t, start, event.Start)
}

func TestGoogleAdapter_RefreshToken(t *testing.T) {
	t.Run("returns the new access token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "test-refresh", r.PostForm.Get("refresh_token"))
			json.NewEncoder(w).Encode(map[string]string{"access_token": "renewed"})
		}))
		defer server.Close()

		adapter := NewGoogleAdapter(server.URL, server.URL, 5*time.Second)
		token, err := adapter.RefreshToken(context.Background(), "test-refresh")
		require.NoError(t, err)
		assert.Equal(t, "renewed", token)
	})

	t.Run("rejection maps to an auth error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer server.Close()

		adapter := NewGoogleAdapter(server.URL, server.URL, 5*time.Second)
		_, err := adapter.RefreshToken(context.Background(), "test-refresh")
		require.Error(t, err)
		assert.True(t, providers.IsAuthExpired(err))
	})
}
