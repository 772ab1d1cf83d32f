package repositories

import (
	"context"
	"time"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
)

// EventRepository persists events owned by a single subject, scoped by owner
// id. It is the authoritative source for the merged timeline; its failures
// are Storage errors and abort the operation that hit them.
type EventRepository interface {
	// Create persists a new event. Validation (end after start) is rejected
	// before any I/O.
	Create(ctx context.Context, ownerID string, event *entities.CalendarEvent) (*entities.CalendarEvent, error)

	// List returns events overlapping the half-open range [from, to),
	// ordered by start ascending.
	List(ctx context.Context, ownerID string, from, to time.Time) ([]entities.CalendarEvent, error)

	// Update applies a partial patch. A patch whose resulting end would not
	// exceed the resulting start fails with a Validation error and performs
	// no mutation.
	Update(ctx context.Context, ownerID, id string, patch entities.EventPatch) (*entities.CalendarEvent, error)

	// Delete removes an event.
	Delete(ctx context.Context, ownerID, id string) error
}
