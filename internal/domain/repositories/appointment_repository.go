package repositories

import (
	"context"
	"time"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
)

// AppointmentRepository is the appointment lifecycle collaborator boundary.
// The engine creates appointments and reads them back as busy intervals;
// status transitions beyond creation belong to the lifecycle service.
type AppointmentRepository interface {
	Create(ctx context.Context, appointment *entities.Appointment) error

	GetByID(ctx context.Context, id string) (*entities.Appointment, error)

	// ListBySubject returns appointments where the subject participates on
	// either side, overlapping the half-open range [from, to).
	ListBySubject(ctx context.Context, subjectID string, from, to time.Time) ([]*entities.Appointment, error)

	// SetRemoteEvent records the provider event id a booking was mirrored to.
	SetRemoteEvent(ctx context.Context, id, remoteEventID string) error

	Cancel(ctx context.Context, id string) error
}
