package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/proagenda/calendar-engine/internal/adapters/providers/calendar"
	"github.com/proagenda/calendar-engine/internal/api/handlers"
	"github.com/proagenda/calendar-engine/internal/application/services"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCredRepo struct{}

func (stubCredRepo) Get(ctx context.Context, ownerID string, provider entities.EventSource) (*entities.ProviderCredential, error) {
	return nil, apperrors.NewNotFoundError("credential not found")
}

func (stubCredRepo) ListConnected(ctx context.Context, ownerID string) ([]*entities.ProviderCredential, error) {
	return nil, nil
}

func (stubCredRepo) Save(ctx context.Context, credential *entities.ProviderCredential) error {
	return nil
}

func (stubCredRepo) Delete(ctx context.Context, ownerID string, provider entities.EventSource) error {
	return nil
}

type gestureFixture struct {
	repo     *stubEventRepo
	handler  *handlers.GestureHandler
	sessions *services.SessionManager
	event    entities.CalendarEvent
}

func newGestureFixture(t *testing.T) *gestureFixture {
	t.Helper()
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	event := entities.CalendarEvent{
		ID: "ev-1", Title: "Consult", Source: entities.SourceLocal, Editable: true,
		Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour),
	}

	repo := newStubEventRepo()
	repo.byOwner["owner-1"] = []entities.CalendarEvent{event}

	registry := calendar.NewEmptyRegistry()
	creds := services.NewCredentialService(stubCredRepo{}, registry)
	scheduler := services.NewRescheduleService(repo, creds, registry, nil, nil, 15*time.Minute, 15*time.Minute)

	sessions := services.NewSessionManager()
	sessions.Get("owner-1").SetTimeline([]entities.CalendarEvent{event})

	return &gestureFixture{
		repo:     repo,
		handler:  handlers.NewGestureHandler(scheduler, sessions),
		sessions: sessions,
		event:    event,
	}
}

func (f *gestureFixture) do(t *testing.T, handle http.HandlerFunc, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.SetPathValue("ownerID", "owner-1")
	w := httptest.NewRecorder()
	handle(w, req)
	return w
}

func (f *gestureFixture) begin(t *testing.T, pointerY int) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, f.handler.BeginGesture, "POST", "/api/calendar/owner-1/gesture", map[string]interface{}{
		"source": "local", "event_id": "ev-1", "kind": "move", "pointer_y": pointerY,
	})
}

func TestGestureHandler_DragLifecycle(t *testing.T) {
	f := newGestureFixture(t)

	w := f.begin(t, 600)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, f.handler.MoveGesture, "PATCH", "/api/calendar/owner-1/gesture", map[string]int{"pointer_y": 645})
	require.Equal(t, http.StatusOK, w.Code)
	var view struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	assert.Equal(t, f.event.Start.Add(45*time.Minute), view.Start)

	w = f.do(t, f.handler.CommitGesture, "POST", "/api/calendar/owner-1/gesture/commit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.event.Start.Add(45*time.Minute), f.repo.byOwner["owner-1"][0].Start)

	// The gesture is gone after the commit.
	w = f.do(t, f.handler.MoveGesture, "PATCH", "/api/calendar/owner-1/gesture", map[string]int{"pointer_y": 700})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGestureHandler_BeginGesture(t *testing.T) {
	t.Run("rejects unknown gesture kinds", func(t *testing.T) {
		f := newGestureFixture(t)
		w := f.do(t, f.handler.BeginGesture, "POST", "/api/calendar/owner-1/gesture", map[string]interface{}{
			"source": "local", "event_id": "ev-1", "kind": "wiggle", "pointer_y": 600,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a second gesture while one is active", func(t *testing.T) {
		f := newGestureFixture(t)
		require.Equal(t, http.StatusCreated, f.begin(t, 600).Code)
		assert.Equal(t, http.StatusConflict, f.begin(t, 610).Code)
	})

	t.Run("returns not found for events missing from the timeline", func(t *testing.T) {
		f := newGestureFixture(t)
		w := f.do(t, f.handler.BeginGesture, "POST", "/api/calendar/owner-1/gesture", map[string]interface{}{
			"source": "local", "event_id": "missing", "kind": "move", "pointer_y": 600,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGestureHandler_CancelGesture(t *testing.T) {
	f := newGestureFixture(t)
	require.Equal(t, http.StatusCreated, f.begin(t, 600).Code)
	f.do(t, f.handler.MoveGesture, "PATCH", "/api/calendar/owner-1/gesture", map[string]int{"pointer_y": 700})

	w := f.do(t, f.handler.CancelGesture, "DELETE", "/api/calendar/owner-1/gesture", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	restored, ok := f.sessions.Get("owner-1").FindEvent(f.event.Key())
	require.True(t, ok)
	assert.Equal(t, f.event.Start, restored.Start)
}
