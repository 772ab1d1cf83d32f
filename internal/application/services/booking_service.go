package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/proagenda/calendar-engine/internal/adapters/providers/calendar"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/observability"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// BookingService intersects the professional's bookable slots with the
// client's existing commitments and commits confirmed bookings. The
// appointment record is authoritative; mirroring the booking to the
// professional's external calendar is best effort.
type BookingService struct {
	appointments repositories.AppointmentRepository
	availability *AvailabilityService
	credentials  *CredentialService
	registry     *calendar.Registry
	bus          providers.EventBus
	metrics      *observability.Metrics

	now func() time.Time
}

// NewBookingService creates a new booking engine. bus and metrics are
// optional.
func NewBookingService(
	appointments repositories.AppointmentRepository,
	availability *AvailabilityService,
	credentials *CredentialService,
	registry *calendar.Registry,
	bus providers.EventBus,
	metrics *observability.Metrics,
) *BookingService {
	return &BookingService{
		appointments: appointments,
		availability: availability,
		credentials:  credentials,
		registry:     registry,
		bus:          bus,
		metrics:      metrics,
		now:          time.Now,
	}
}

// MutualSlots returns the professional's bookable slots that also miss every
// busy interval on the client's side.
func (s *BookingService) MutualSlots(ctx context.Context, session *CalendarSession, clientID string, duration time.Duration) ([]entities.Slot, error) {
	ctx, span := observability.StartSpan(ctx, "BookingService.MutualSlots")
	defer span.End()

	slots, err := s.availability.Slots(ctx, session, duration)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}

	clientBusy, err := s.clientBusy(ctx, clientID, slots[0].Start, slots[len(slots)-1].End)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	mutual := make([]entities.Slot, 0, len(slots))
	for _, slot := range slots {
		if overlapsAny(clientBusy, slot.Start, slot.End) {
			continue
		}
		mutual = append(mutual, slot)
	}
	return mutual, nil
}

// Confirm books the slot. Both parties are re-checked against their busy
// intervals at commit time; an overlap fails with a Conflict error carrying
// the colliding interval. On success the appointment is stored and, when the
// professional has a connected provider credential, the booking is mirrored
// to the external calendar. The provider write is not atomic with the
// appointment insert: a mirror failure is returned alongside the persisted
// appointment so the caller can retry or warn, but the booking stands.
func (s *BookingService) Confirm(ctx context.Context, session *CalendarSession, clientID string, start time.Time, duration time.Duration, modality entities.AppointmentModality) (*entities.Appointment, error) {
	ctx, span := observability.StartSpan(ctx, "BookingService.Confirm")
	defer span.End()

	if duration <= 0 {
		return nil, apperrors.NewValidationError("booking duration must be positive")
	}
	if modality != entities.ModalityVideo && modality != entities.ModalityInPerson {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown modality %q", modality))
	}
	end := start.Add(duration)

	if conflict, ok := firstOverlap(BusyProjection(session.Timeline()), start, end); ok {
		return nil, apperrors.NewConflictError("professional is busy in the requested slot", conflict.Start, conflict.End)
	}
	clientBusy, err := s.clientBusy(ctx, clientID, start.Add(-24*time.Hour), end)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if conflict, ok := firstOverlap(clientBusy, start, end); ok {
		return nil, apperrors.NewConflictError("client is busy in the requested slot", conflict.Start, conflict.End)
	}

	now := s.now()
	appointment := &entities.Appointment{
		ID:              uuid.New().String(),
		ProfessionalID:  session.OwnerID,
		ClientID:        clientID,
		Start:           start,
		DurationMinutes: int(duration / time.Minute),
		Status:          entities.AppointmentStatusConfirmed,
		Modality:        modality,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.appointments.Create(ctx, appointment); err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewStorageError("failed to create appointment", err)
	}

	if s.metrics != nil {
		s.metrics.BookingCount.Add(ctx, 1)
	}
	s.publishNotice(ctx, session.OwnerID, entities.NoticeBookingConfirmed, appointment.ID)

	if mirrorErr := s.mirrorToProvider(ctx, session, appointment); mirrorErr != nil {
		return appointment, apperrors.NewExternalError("booking confirmed but provider sync failed", mirrorErr)
	}
	return appointment, nil
}

// clientBusy derives the client's busy intervals from their existing
// appointments.
func (s *BookingService) clientBusy(ctx context.Context, clientID string, from, to time.Time) ([]entities.BusyInterval, error) {
	appointments, err := s.appointments.ListBySubject(ctx, clientID, from, to)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list client appointments", err)
	}
	var busy []entities.BusyInterval
	for _, appointment := range appointments {
		if !appointment.Blocks() {
			continue
		}
		busy = append(busy, appointment.BusyInterval())
	}
	return busy, nil
}

// mirrorToProvider writes the booking to one of the professional's
// connected external calendars and records the remote event id. When
// several providers are connected the target is the first by provider name
// with a registered adapter, so repeated bookings always land on the same
// calendar regardless of repository ordering.
func (s *BookingService) mirrorToProvider(ctx context.Context, session *CalendarSession, appointment *entities.Appointment) error {
	creds, err := s.credentials.ListConnected(ctx, session.OwnerID)
	if err != nil || len(creds) == 0 {
		return err
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Provider < creds[j].Provider })

	var cred *entities.ProviderCredential
	var adapter providers.CalendarProvider
	for _, candidate := range creds {
		if a, ok := s.registry.Get(candidate.Provider); ok {
			cred, adapter = candidate, a
			break
		}
	}
	if cred == nil {
		return nil
	}

	fields := entities.EventFields{
		Title: fmt.Sprintf("Appointment (%s)", appointment.Modality),
		Start: appointment.Start,
		End:   appointment.End(),
	}
	var remote *entities.CalendarEvent
	err = s.credentials.CallWithRefresh(ctx, cred, func() error {
		var callErr error
		remote, callErr = adapter.CreateEvent(ctx, cred, fields)
		return callErr
	})
	if err != nil {
		return err
	}
	if err := s.appointments.SetRemoteEvent(ctx, appointment.ID, remote.RemoteID); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).
			Str("appointment_id", appointment.ID).
			Msg("failed to record remote event id")
		return nil
	}
	appointment.RemoteEventID = &remote.RemoteID
	return nil
}

func (s *BookingService) publishNotice(ctx context.Context, ownerID string, noticeType entities.NoticeType, refID string) {
	if s.bus == nil {
		return
	}
	notice := &entities.CalendarNotice{
		ID:      uuid.New().String(),
		Type:    noticeType,
		OwnerID: ownerID,
		EventID: refID,
		At:      time.Now(),
	}
	if err := s.bus.Publish(ctx, providers.OwnerChannel(ownerID), notice); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to publish booking notice")
	}
}

// firstOverlap returns the first busy interval colliding with [start, end).
func firstOverlap(busy []entities.BusyInterval, start, end time.Time) (entities.BusyInterval, bool) {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return b, true
		}
	}
	return entities.BusyInterval{}, false
}
