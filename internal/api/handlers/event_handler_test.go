package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/proagenda/calendar-engine/internal/api/handlers"
	"github.com/proagenda/calendar-engine/internal/application/services"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEventRepo is a minimal in-memory EventRepository for handler tests.
type stubEventRepo struct {
	byOwner map[string][]entities.CalendarEvent
	failing bool
}

func newStubEventRepo() *stubEventRepo {
	return &stubEventRepo{byOwner: map[string][]entities.CalendarEvent{}}
}

func (r *stubEventRepo) Create(ctx context.Context, ownerID string, event *entities.CalendarEvent) (*entities.CalendarEvent, error) {
	if r.failing {
		return nil, apperrors.NewStorageError("event store unavailable", nil)
	}
	if !event.End.After(event.Start) {
		return nil, apperrors.NewValidationError("event end must be after start")
	}
	stored := *event
	if stored.ID == "" {
		stored.ID = "stub-1"
	}
	if stored.Source == "" {
		stored.Source = entities.SourceLocal
	}
	r.byOwner[ownerID] = append(r.byOwner[ownerID], stored)
	return &stored, nil
}

func (r *stubEventRepo) List(ctx context.Context, ownerID string, from, to time.Time) ([]entities.CalendarEvent, error) {
	if r.failing {
		return nil, apperrors.NewStorageError("event store unavailable", nil)
	}
	var out []entities.CalendarEvent
	for _, ev := range r.byOwner[ownerID] {
		if ev.Start.Before(to) && from.Before(ev.End) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *stubEventRepo) Update(ctx context.Context, ownerID, id string, patch entities.EventPatch) (*entities.CalendarEvent, error) {
	for i, ev := range r.byOwner[ownerID] {
		if ev.ID == id {
			updated := patch.Apply(ev)
			r.byOwner[ownerID][i] = updated
			return &updated, nil
		}
	}
	return nil, apperrors.NewNotFoundError("event not found")
}

func (r *stubEventRepo) Delete(ctx context.Context, ownerID, id string) error {
	for i, ev := range r.byOwner[ownerID] {
		if ev.ID == id {
			r.byOwner[ownerID] = append(r.byOwner[ownerID][:i], r.byOwner[ownerID][i+1:]...)
			return nil
		}
	}
	return apperrors.NewNotFoundError("event not found")
}

func newEventHandler(repo *stubEventRepo) *handlers.EventHandler {
	return handlers.NewEventHandler(services.NewEventService(repo, nil))
}

func TestEventHandler_CreateEvent(t *testing.T) {
	t.Run("successfully creates event", func(t *testing.T) {
		repo := newStubEventRepo()
		handler := newEventHandler(repo)

		payload := map[string]interface{}{
			"title": "Consult",
			"start": "2026-09-07T09:00:00Z",
			"end":   "2026-09-07T09:30:00Z",
		}
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest("POST", "/api/calendar/owner-1/events", bytes.NewBuffer(body))
		req.SetPathValue("ownerID", "owner-1")
		w := httptest.NewRecorder()

		handler.CreateEvent(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		require.Len(t, repo.byOwner["owner-1"], 1)
		assert.Equal(t, "Consult", repo.byOwner["owner-1"][0].Title)
	})

	t.Run("returns bad request for invalid payload", func(t *testing.T) {
		handler := newEventHandler(newStubEventRepo())

		req := httptest.NewRequest("POST", "/api/calendar/owner-1/events", bytes.NewBufferString("invalid-json"))
		req.SetPathValue("ownerID", "owner-1")
		w := httptest.NewRecorder()

		handler.CreateEvent(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns bad request when end precedes start", func(t *testing.T) {
		handler := newEventHandler(newStubEventRepo())

		payload := map[string]interface{}{
			"title": "Backwards",
			"start": "2026-09-07T10:00:00Z",
			"end":   "2026-09-07T09:00:00Z",
		}
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest("POST", "/api/calendar/owner-1/events", bytes.NewBuffer(body))
		req.SetPathValue("ownerID", "owner-1")
		w := httptest.NewRecorder()

		handler.CreateEvent(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns service unavailable when the store is down", func(t *testing.T) {
		repo := newStubEventRepo()
		repo.failing = true
		handler := newEventHandler(repo)

		payload := map[string]interface{}{
			"title": "Consult",
			"start": "2026-09-07T09:00:00Z",
			"end":   "2026-09-07T09:30:00Z",
		}
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest("POST", "/api/calendar/owner-1/events", bytes.NewBuffer(body))
		req.SetPathValue("ownerID", "owner-1")
		w := httptest.NewRecorder()

		handler.CreateEvent(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestEventHandler_ListEvents(t *testing.T) {
	repo := newStubEventRepo()
	repo.byOwner["owner-1"] = []entities.CalendarEvent{
		{
			ID: "ev-1", Title: "Standup", Source: entities.SourceLocal,
			Start: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
		},
	}
	handler := newEventHandler(repo)

	t.Run("returns events in range", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/calendar/owner-1/events?from=2026-09-07T00:00:00Z&to=2026-09-08T00:00:00Z", nil)
		req.SetPathValue("ownerID", "owner-1")
		w := httptest.NewRecorder()

		handler.ListEvents(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Events []entities.CalendarEvent `json:"events"`
			Count  int                      `json:"count"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Events, 1)
		assert.Equal(t, "Standup", resp.Events[0].Title)
	})

	t.Run("requires the range parameters", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/calendar/owner-1/events", nil)
		req.SetPathValue("ownerID", "owner-1")
		w := httptest.NewRecorder()

		handler.ListEvents(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed dates", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/calendar/owner-1/events?from=yesterday&to=tomorrow", nil)
		req.SetPathValue("ownerID", "owner-1")
		w := httptest.NewRecorder()

		handler.ListEvents(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEventHandler_UpdateEvent(t *testing.T) {
	t.Run("patches the stored event", func(t *testing.T) {
		repo := newStubEventRepo()
		repo.byOwner["owner-1"] = []entities.CalendarEvent{
			{
				ID: "ev-1", Title: "Standup", Source: entities.SourceLocal,
				Start: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
				End:   time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
			},
		}
		handler := newEventHandler(repo)

		body, _ := json.Marshal(map[string]string{"title": "Daily sync"})
		req := httptest.NewRequest("PATCH", "/api/calendar/owner-1/events/ev-1", bytes.NewBuffer(body))
		req.SetPathValue("ownerID", "owner-1")
		req.SetPathValue("id", "ev-1")
		w := httptest.NewRecorder()

		handler.UpdateEvent(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Daily sync", repo.byOwner["owner-1"][0].Title)
	})

	t.Run("returns not found for an unknown event", func(t *testing.T) {
		handler := newEventHandler(newStubEventRepo())

		body, _ := json.Marshal(map[string]string{"title": "Daily sync"})
		req := httptest.NewRequest("PATCH", "/api/calendar/owner-1/events/missing", bytes.NewBuffer(body))
		req.SetPathValue("ownerID", "owner-1")
		req.SetPathValue("id", "missing")
		w := httptest.NewRecorder()

		handler.UpdateEvent(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestEventHandler_DeleteEvent(t *testing.T) {
	repo := newStubEventRepo()
	repo.byOwner["owner-1"] = []entities.CalendarEvent{
		{
			ID: "ev-1", Source: entities.SourceLocal,
			Start: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC),
		},
	}
	handler := newEventHandler(repo)

	req := httptest.NewRequest("DELETE", "/api/calendar/owner-1/events/ev-1", nil)
	req.SetPathValue("ownerID", "owner-1")
	req.SetPathValue("id", "ev-1")
	w := httptest.NewRecorder()

	handler.DeleteEvent(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, repo.byOwner["owner-1"])
}
