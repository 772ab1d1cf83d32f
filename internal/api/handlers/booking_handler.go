package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/proagenda/calendar-engine/internal/application/services"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// BookingHandler commits bookings between a professional and a client.
type BookingHandler struct {
	bookings    *services.BookingService
	merge       *services.MergeService
	sessions    *services.SessionManager
	horizonDays int
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(bookings *services.BookingService, merge *services.MergeService, sessions *services.SessionManager, horizonDays int) *BookingHandler {
	if horizonDays < 1 {
		horizonDays = 14
	}
	return &BookingHandler{
		bookings:    bookings,
		merge:       merge,
		sessions:    sessions,
		horizonDays: horizonDays,
	}
}

type bookingRequest struct {
	ProfessionalID  string                       `json:"professional_id"`
	ClientID        string                       `json:"client_id"`
	Start           time.Time                    `json:"start"`
	DurationMinutes int                          `json:"duration_minutes"`
	Modality        entities.AppointmentModality `json:"modality"`
}

// CreateBooking handles POST /api/bookings. A booking whose provider mirror
// failed is still created; the response then carries a warning instead of an
// error status.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.ProfessionalID == "" || req.ClientID == "" {
		respondWithError(w, http.StatusBadRequest, "professional_id and client_id are required")
		return
	}
	if req.DurationMinutes <= 0 {
		respondWithError(w, http.StatusBadRequest, "duration_minutes must be positive")
		return
	}

	// Re-derive the professional's view before the conflict check.
	session := h.sessions.Get(req.ProfessionalID)
	from := req.Start.Add(-24 * time.Hour)
	to := req.Start.AddDate(0, 0, 1)
	if _, err := h.merge.Merge(r.Context(), session, from, to); err != nil {
		respondWithAppError(w, err)
		return
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	appointment, err := h.bookings.Confirm(r.Context(), session, req.ClientID, req.Start, duration, req.Modality)
	if err != nil {
		if appointment != nil && apperrors.IsType(err, apperrors.ErrorTypeExternal) {
			respondWithJSON(w, http.StatusCreated, map[string]interface{}{
				"appointment": appointment,
				"warning":     err.(*apperrors.AppError).Message,
			})
			return
		}
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"appointment": appointment,
	})
}
