package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/proagenda/calendar-engine/internal/application/services"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// GestureHandler exposes the drag-to-move and drag-to-resize interaction
// over HTTP: one active gesture per owner, begun on pointer down, updated on
// every pointer move, and committed or cancelled on release.
type GestureHandler struct {
	scheduler *services.RescheduleService
	sessions  *services.SessionManager

	mu     sync.Mutex
	active map[string]*services.Gesture // owner id -> in-flight gesture
}

// NewGestureHandler creates a new gesture handler.
func NewGestureHandler(scheduler *services.RescheduleService, sessions *services.SessionManager) *GestureHandler {
	return &GestureHandler{
		scheduler: scheduler,
		sessions:  sessions,
		active:    make(map[string]*services.Gesture),
	}
}

type beginGestureRequest struct {
	Source   string `json:"source"`
	EventID  string `json:"event_id"`
	Kind     string `json:"kind"`
	PointerY int    `json:"pointer_y"`
}

type moveGestureRequest struct {
	PointerY int `json:"pointer_y"`
}

type gestureView struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

func gestureViewOf(event entities.CalendarEvent) gestureView {
	return gestureView{
		ID:     event.ID,
		Source: string(event.Source),
		Start:  event.Start,
		End:    event.End,
	}
}

// BeginGesture handles POST /api/calendar/{ownerID}/gesture
func (h *GestureHandler) BeginGesture(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	if ownerID == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID is required")
		return
	}

	var req beginGestureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	kind := services.GestureKind(req.Kind)
	if kind != services.GestureMove && kind != services.GestureResize {
		respondWithError(w, http.StatusBadRequest, "kind must be move or resize")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.active[ownerID]; busy {
		respondWithError(w, http.StatusConflict, "a gesture is already in progress")
		return
	}

	session := h.sessions.Get(ownerID)
	key := entities.EventKey{Source: entities.EventSource(req.Source), ID: req.EventID}
	gesture, err := h.scheduler.Begin(session, key, kind, req.PointerY)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	h.active[ownerID] = gesture

	respondWithJSON(w, http.StatusCreated, gestureViewOf(gesture.Event()))
}

// MoveGesture handles PATCH /api/calendar/{ownerID}/gesture
func (h *GestureHandler) MoveGesture(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")

	var req moveGestureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	gesture, ok := h.active[ownerID]
	if !ok {
		respondWithError(w, http.StatusNotFound, "no gesture in progress")
		return
	}

	candidate := h.scheduler.PointerMove(h.sessions.Get(ownerID), gesture, req.PointerY)
	respondWithJSON(w, http.StatusOK, gestureViewOf(candidate))
}

// CommitGesture handles POST /api/calendar/{ownerID}/gesture/commit
func (h *GestureHandler) CommitGesture(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")

	h.mu.Lock()
	defer h.mu.Unlock()
	gesture, ok := h.active[ownerID]
	if !ok {
		respondWithError(w, http.StatusNotFound, "no gesture in progress")
		return
	}
	delete(h.active, ownerID)

	committed, err := h.scheduler.PointerUp(r.Context(), h.sessions.Get(ownerID), gesture)
	if err != nil {
		// The provider mirror failing does not void the committed change.
		if apperrors.IsType(err, apperrors.ErrorTypeExternal) {
			respondWithJSON(w, http.StatusOK, map[string]interface{}{
				"event":   gestureViewOf(committed),
				"warning": err.Error(),
			})
			return
		}
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, gestureViewOf(committed))
}

// CancelGesture handles DELETE /api/calendar/{ownerID}/gesture
func (h *GestureHandler) CancelGesture(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")

	h.mu.Lock()
	defer h.mu.Unlock()
	gesture, ok := h.active[ownerID]
	if !ok {
		respondWithError(w, http.StatusNotFound, "no gesture in progress")
		return
	}
	delete(h.active, ownerID)

	h.scheduler.Cancel(h.sessions.Get(ownerID), gesture)
	w.WriteHeader(http.StatusNoContent)
}
