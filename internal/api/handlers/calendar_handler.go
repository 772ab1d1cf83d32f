package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/proagenda/calendar-engine/internal/application/services"
)

// CalendarHandler serves the merged timeline and the bookable-slot reads.
type CalendarHandler struct {
	merge        *services.MergeService
	availability *services.AvailabilityService
	bookings     *services.BookingService
	sessions     *services.SessionManager
	horizonDays  int
}

// NewCalendarHandler creates a new calendar handler.
func NewCalendarHandler(
	merge *services.MergeService,
	availability *services.AvailabilityService,
	bookings *services.BookingService,
	sessions *services.SessionManager,
	horizonDays int,
) *CalendarHandler {
	if horizonDays < 1 {
		horizonDays = 14
	}
	return &CalendarHandler{
		merge:        merge,
		availability: availability,
		bookings:     bookings,
		sessions:     sessions,
		horizonDays:  horizonDays,
	}
}

// GetTimeline handles GET /api/calendar/{ownerID}/timeline
func (h *CalendarHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	if ownerID == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID is required")
		return
	}

	from, to, err := h.parseRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := h.sessions.Get(ownerID)
	timeline, mergeErr := h.merge.Merge(r.Context(), session, from, to)
	if mergeErr != nil {
		respondWithAppError(w, mergeErr)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"timeline": timeline,
		"count":    len(timeline),
	})
}

// GetSlots handles GET /api/calendar/{ownerID}/slots. With a client query
// parameter the slots are additionally intersected against that subject's
// commitments.
func (h *CalendarHandler) GetSlots(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("ownerID")
	if ownerID == "" {
		respondWithError(w, http.StatusBadRequest, "owner ID is required")
		return
	}

	durationStr := r.URL.Query().Get("duration")
	if durationStr == "" {
		respondWithError(w, http.StatusBadRequest, "duration query parameter is required (minutes)")
		return
	}
	minutes, err := strconv.Atoi(durationStr)
	if err != nil || minutes <= 0 {
		respondWithError(w, http.StatusBadRequest, "duration must be a positive number of minutes")
		return
	}
	duration := time.Duration(minutes) * time.Minute

	// Slot generation consumes the merged timeline, so merge first.
	session := h.sessions.Get(ownerID)
	from := time.Now().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, h.horizonDays)
	if _, err := h.merge.Merge(r.Context(), session, from, to); err != nil {
		respondWithAppError(w, err)
		return
	}

	clientID := r.URL.Query().Get("client")
	var slots interface{}
	if clientID != "" {
		slots, err = h.bookings.MutualSlots(r.Context(), session, clientID, duration)
	} else {
		slots, err = h.availability.Slots(r.Context(), session, duration)
	}
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"slots": slots,
	})
}

func (h *CalendarHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr == "" || toStr == "" {
		now := time.Now()
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return from, from.AddDate(0, 0, h.horizonDays), nil
	}

	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date format (use RFC3339)")
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date format (use RFC3339)")
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be after from")
	}
	return from, to, nil
}
