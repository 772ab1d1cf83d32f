package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/proagenda/calendar-engine/internal/application/services"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
)

// EventHandler exposes the local event store over HTTP.
type EventHandler struct {
	events *services.EventService
}

// NewEventHandler creates a new event handler.
func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// CreateEvent handles POST /api/calendar/{ownerID}/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	if ownerID == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID is required")
		return
	}

	var event entities.CalendarEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	stored, err := h.events.Create(r.Context(), ownerID, &event)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, stored)
}

// ListEvents handles GET /api/calendar/{ownerID}/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	if ownerID == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID is required")
		return
	}

	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr == "" || toStr == "" {
		respondWithError(w, http.StatusBadRequest, "from and to query parameters are required")
		return
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid from date format (use RFC3339)")
		return
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid to date format (use RFC3339)")
		return
	}

	events, err := h.events.List(r.Context(), ownerID, from, to)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// UpdateEvent handles PATCH /api/calendar/{ownerID}/events/{id}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	id := r.PathValue("id")
	if ownerID == "" || id == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID and event ID are required")
		return
	}

	var patch entities.EventPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	updated, err := h.events.Update(r.Context(), ownerID, id, patch)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

// DeleteEvent handles DELETE /api/calendar/{ownerID}/events/{id}
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	id := r.PathValue("id")
	if ownerID == "" || id == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID and event ID are required")
		return
	}

	if err := h.events.Delete(r.Context(), ownerID, id); err != nil {
		respondWithAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
