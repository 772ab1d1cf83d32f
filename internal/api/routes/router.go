package routes

import (
	"net/http"

	"github.com/proagenda/calendar-engine/internal/api/handlers"
	"github.com/proagenda/calendar-engine/internal/api/middleware"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	calendarHandler   *handlers.CalendarHandler
	eventHandler      *handlers.EventHandler
	bookingHandler    *handlers.BookingHandler
	credentialHandler *handlers.CredentialHandler
	gestureHandler    *handlers.GestureHandler
}

// NewRouter creates a new router
func NewRouter(
	calendarHandler *handlers.CalendarHandler,
	eventHandler *handlers.EventHandler,
	bookingHandler *handlers.BookingHandler,
	credentialHandler *handlers.CredentialHandler,
	gestureHandler *handlers.GestureHandler,
) *Router {
	return &Router{
		mux: http.NewServeMux(),

		calendarHandler:   calendarHandler,
		eventHandler:      eventHandler,
		bookingHandler:    bookingHandler,
		credentialHandler: credentialHandler,
		gestureHandler:    gestureHandler,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Merged timeline and slot reads
	r.mux.HandleFunc("GET /api/calendar/{ownerID}/timeline", r.calendarHandler.GetTimeline)
	r.mux.HandleFunc("GET /api/calendar/{ownerID}/slots", r.calendarHandler.GetSlots)

	// Local event store
	r.mux.HandleFunc("POST /api/calendar/{ownerID}/events", r.eventHandler.CreateEvent)
	r.mux.HandleFunc("GET /api/calendar/{ownerID}/events", r.eventHandler.ListEvents)
	r.mux.HandleFunc("PATCH /api/calendar/{ownerID}/events/{id}", r.eventHandler.UpdateEvent)
	r.mux.HandleFunc("DELETE /api/calendar/{ownerID}/events/{id}", r.eventHandler.DeleteEvent)

	// Bookings
	r.mux.HandleFunc("POST /api/bookings", r.bookingHandler.CreateBooking)

	// Interactive drag gestures
	r.mux.HandleFunc("POST /api/calendar/{ownerID}/gesture", r.gestureHandler.BeginGesture)
	r.mux.HandleFunc("PATCH /api/calendar/{ownerID}/gesture", r.gestureHandler.MoveGesture)
	r.mux.HandleFunc("POST /api/calendar/{ownerID}/gesture/commit", r.gestureHandler.CommitGesture)
	r.mux.HandleFunc("DELETE /api/calendar/{ownerID}/gesture", r.gestureHandler.CancelGesture)

	// Provider credentials
	r.mux.HandleFunc("GET /api/calendar/{ownerID}/credentials", r.credentialHandler.ListCredentials)
	r.mux.HandleFunc("POST /api/calendar/{ownerID}/credentials", r.credentialHandler.Connect)
	r.mux.HandleFunc("DELETE /api/calendar/{ownerID}/credentials/{provider}", r.credentialHandler.Disconnect)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	handler = middleware.CORSMiddleware(handler)

	return handler
}
