package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/proagenda/calendar-engine/internal/adapters/providers/calendar"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/observability"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// The day column renders 24 hours over 1440 vertical pixels, so one pixel of
// pointer travel is one minute of calendar time.
const minutesPerPixel = 1

// GestureKind discriminates the two drag interactions.
type GestureKind string

const (
	GestureMove   GestureKind = "move"
	GestureResize GestureKind = "resize"
)

// Gesture is one in-flight drag. It holds the pre-gesture snapshot used for
// rollback and the last optimistically applied candidate.
type Gesture struct {
	Kind     GestureKind
	OriginY  int
	original entities.CalendarEvent
	current  entities.CalendarEvent
}

// Event returns the last applied candidate state of the dragged event.
func (g *Gesture) Event() entities.CalendarEvent {
	return g.current
}

// RescheduleService drives the drag-to-move and drag-to-resize interactions:
// optimistic in-memory mutation on every pointer move, a store commit on
// pointer up, and a snapshot rollback when the commit fails.
type RescheduleService struct {
	events      repositories.EventRepository
	credentials *CredentialService
	registry    *calendar.Registry
	bus         providers.EventBus
	metrics     *observability.Metrics

	snap        time.Duration
	minDuration time.Duration
}

// NewRescheduleService creates a new interactive scheduler.
func NewRescheduleService(
	events repositories.EventRepository,
	credentials *CredentialService,
	registry *calendar.Registry,
	bus providers.EventBus,
	metrics *observability.Metrics,
	snap, minDuration time.Duration,
) *RescheduleService {
	if snap <= 0 {
		snap = 15 * time.Minute
	}
	if minDuration <= 0 {
		minDuration = 15 * time.Minute
	}
	return &RescheduleService{
		events:      events,
		credentials: credentials,
		registry:    registry,
		bus:         bus,
		metrics:     metrics,
		snap:        snap,
		minDuration: minDuration,
	}
}

// Begin starts a gesture on pointer down. Only editable events can be
// dragged.
func (s *RescheduleService) Begin(session *CalendarSession, key entities.EventKey, kind GestureKind, pointerY int) (*Gesture, error) {
	event, ok := session.FindEvent(key)
	if !ok {
		return nil, apperrors.NewNotFoundError("event not found in the current timeline")
	}
	if !event.Editable {
		return nil, apperrors.NewValidationError("event is not editable")
	}
	return &Gesture{
		Kind:     kind,
		OriginY:  pointerY,
		original: event,
		current:  event,
	}, nil
}

// PointerMove recomputes the candidate start/end from the pointer position,
// snapped to the snap interval, and applies it optimistically to the
// session's timeline. A resize that would shrink the event below the minimum
// duration is rejected and the previous end retained.
func (s *RescheduleService) PointerMove(session *CalendarSession, gesture *Gesture, pointerY int) entities.CalendarEvent {
	rawDelta := time.Duration(pointerY-gesture.OriginY) * minutesPerPixel * time.Minute
	delta := snapDelta(rawDelta, s.snap)

	candidate := gesture.original
	switch gesture.Kind {
	case GestureResize:
		end := gesture.original.End.Add(delta)
		if end.Sub(candidate.Start) < s.minDuration {
			return gesture.current
		}
		candidate.End = end
	default:
		candidate.Start = gesture.original.Start.Add(delta)
		candidate.End = gesture.original.End.Add(delta)
	}

	if candidate.Start.Equal(gesture.current.Start) && candidate.End.Equal(gesture.current.End) {
		return gesture.current
	}
	gesture.current = candidate
	session.ReplaceEvent(candidate)
	return candidate
}

// PointerUp ends the gesture and commits the final start/end. Local events
// commit through the event store; provider-sourced events commit through
// the provider's UpdateEvent, since the provider copy is the authoritative
// one for them. On a commit failure the in-memory timeline is rolled back
// to the pre-gesture snapshot and the error surfaced. A committed local
// event that was previously pushed to a provider (remote id set) is also
// mirrored there; a mirror failure does not undo the local commit but is
// returned so the caller can warn or retry.
func (s *RescheduleService) PointerUp(ctx context.Context, session *CalendarSession, gesture *Gesture) (entities.CalendarEvent, error) {
	ctx, span := observability.StartSpan(ctx, "RescheduleService.PointerUp")
	defer span.End()

	final := gesture.current
	if final.Start.Equal(gesture.original.Start) && final.End.Equal(gesture.original.End) {
		return final, nil
	}

	patch := entities.EventPatch{Start: &final.Start, End: &final.End}
	committed := final
	if final.Source == entities.SourceLocal {
		updated, err := s.events.Update(ctx, session.OwnerID, final.ID, patch)
		if err != nil {
			observability.RecordError(span, err)
			session.ReplaceEvent(gesture.original)
			gesture.current = gesture.original
			return gesture.original, err
		}
		committed = *updated
	} else {
		if err := s.commitRemote(ctx, session, final, patch); err != nil {
			observability.RecordError(span, err)
			session.ReplaceEvent(gesture.original)
			gesture.current = gesture.original
			return gesture.original, err
		}
	}

	if s.metrics != nil {
		s.metrics.GestureCommitCount.Add(ctx, 1)
	}
	s.publishNotice(ctx, session.OwnerID, committed.ID)

	if final.Source == entities.SourceLocal && final.RemoteID != "" {
		if mirrorErr := s.mirrorUpdate(ctx, session, final, patch); mirrorErr != nil {
			return committed, apperrors.NewExternalError("reschedule committed but provider sync failed", mirrorErr)
		}
	}
	return committed, nil
}

// Cancel abandons the gesture and restores the pre-gesture event state.
func (s *RescheduleService) Cancel(session *CalendarSession, gesture *Gesture) {
	session.ReplaceEvent(gesture.original)
	gesture.current = gesture.original
}

// commitRemote persists the new bounds of a provider-sourced event on its
// provider. Without a connected credential there is nowhere to commit to,
// so the gesture fails rather than pretending to have saved.
func (s *RescheduleService) commitRemote(ctx context.Context, session *CalendarSession, event entities.CalendarEvent, patch entities.EventPatch) error {
	cred, ok := session.Credential(event.Source)
	if !ok || !cred.Connected() {
		return apperrors.NewAuthError("provider credential is not connected", nil)
	}
	adapter, ok := s.registry.Get(event.Source)
	if !ok {
		return apperrors.NewExternalError("no adapter registered for "+string(event.Source), nil)
	}
	return s.credentials.CallWithRefresh(ctx, cred, func() error {
		_, callErr := adapter.UpdateEvent(ctx, cred, event.RemoteID, patch)
		return callErr
	})
}

// mirrorUpdate propagates a committed local change to the provider holding
// the event's remote copy, picking the first connected session credential
// by provider order.
func (s *RescheduleService) mirrorUpdate(ctx context.Context, session *CalendarSession, event entities.CalendarEvent, patch entities.EventPatch) error {
	for _, cred := range session.ConnectedCredentials() {
		adapter, ok := s.registry.Get(cred.Provider)
		if !ok {
			continue
		}
		target := cred
		return s.credentials.CallWithRefresh(ctx, target, func() error {
			_, callErr := adapter.UpdateEvent(ctx, target, event.RemoteID, patch)
			return callErr
		})
	}
	return nil
}

func (s *RescheduleService) publishNotice(ctx context.Context, ownerID, eventID string) {
	if s.bus == nil {
		return
	}
	notice := &entities.CalendarNotice{
		ID:      uuid.New().String(),
		Type:    entities.NoticeEventRescheduled,
		OwnerID: ownerID,
		EventID: eventID,
		At:      time.Now(),
	}
	if err := s.bus.Publish(ctx, providers.OwnerChannel(ownerID), notice); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to publish reschedule notice")
	}
}

// snapDelta rounds a raw time delta to the nearest multiple of the snap
// interval, toward either direction.
func snapDelta(delta, interval time.Duration) time.Duration {
	if interval <= 0 {
		return delta
	}
	steps := math.Round(float64(delta) / float64(interval))
	return time.Duration(steps) * interval
}
