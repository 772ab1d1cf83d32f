package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/observability"
)

// EventService exposes the local event store's lifecycle over the API. It
// never talks to providers; the merge engine folds provider events in one
// layer up.
type EventService struct {
	events repositories.EventRepository
	bus    providers.EventBus
}

// NewEventService creates a new event service. bus is optional.
func NewEventService(events repositories.EventRepository, bus providers.EventBus) *EventService {
	return &EventService{events: events, bus: bus}
}

// Create stores a new local event.
func (s *EventService) Create(ctx context.Context, ownerID string, event *entities.CalendarEvent) (*entities.CalendarEvent, error) {
	ctx, span := observability.StartSpan(ctx, "EventService.Create")
	defer span.End()

	stored, err := s.events.Create(ctx, ownerID, event)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	s.notify(ctx, ownerID, entities.NoticeEventCreated, stored.ID)
	return stored, nil
}

// List returns the owner's stored events overlapping [from, to).
func (s *EventService) List(ctx context.Context, ownerID string, from, to time.Time) ([]entities.CalendarEvent, error) {
	return s.events.List(ctx, ownerID, from, to)
}

// Update patches a stored event.
func (s *EventService) Update(ctx context.Context, ownerID, id string, patch entities.EventPatch) (*entities.CalendarEvent, error) {
	ctx, span := observability.StartSpan(ctx, "EventService.Update")
	defer span.End()

	updated, err := s.events.Update(ctx, ownerID, id, patch)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	s.notify(ctx, ownerID, entities.NoticeEventUpdated, updated.ID)
	return updated, nil
}

// Delete removes a stored event.
func (s *EventService) Delete(ctx context.Context, ownerID, id string) error {
	ctx, span := observability.StartSpan(ctx, "EventService.Delete")
	defer span.End()

	if err := s.events.Delete(ctx, ownerID, id); err != nil {
		observability.RecordError(span, err)
		return err
	}
	s.notify(ctx, ownerID, entities.NoticeEventDeleted, id)
	return nil
}

func (s *EventService) notify(ctx context.Context, ownerID string, noticeType entities.NoticeType, eventID string) {
	if s.bus == nil {
		return
	}
	notice := &entities.CalendarNotice{
		ID:      uuid.New().String(),
		Type:    noticeType,
		OwnerID: ownerID,
		EventID: eventID,
		At:      time.Now(),
	}
	if err := s.bus.Publish(ctx, providers.OwnerChannel(ownerID), notice); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to publish event notice")
	}
}
