package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/proagenda/calendar-engine/internal/adapters/providers/calendar"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/observability"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

const timelineCacheTTL = 2 * time.Minute

// MergeService reconciles the local event store and every connected
// provider into one sorted, deduplicated timeline. The store is
// authoritative: its failure aborts the merge. Provider and per-calendar
// failures degrade that source to empty and the merge continues.
type MergeService struct {
	events      repositories.EventRepository
	credentials *CredentialService
	registry    *calendar.Registry
	cache       providers.CacheProvider
	bus         providers.EventBus
	metrics     *observability.Metrics

	batchSize int
	pause     time.Duration
}

// NewMergeService creates a new merge service. cache, bus and metrics are
// optional.
func NewMergeService(
	events repositories.EventRepository,
	credentials *CredentialService,
	registry *calendar.Registry,
	cache providers.CacheProvider,
	bus providers.EventBus,
	metrics *observability.Metrics,
	batchSize int,
	pause time.Duration,
) *MergeService {
	if batchSize < 1 {
		batchSize = 1
	}
	return &MergeService{
		events:      events,
		credentials: credentials,
		registry:    registry,
		cache:       cache,
		bus:         bus,
		metrics:     metrics,
		batchSize:   batchSize,
		pause:       pause,
	}
}

// Merge produces the canonical merged timeline for [from, to) and replaces
// the session's view with it.
func (s *MergeService) Merge(ctx context.Context, session *CalendarSession, from, to time.Time) ([]entities.CalendarEvent, error) {
	ctx, span := observability.StartSpan(ctx, "MergeService.Merge")
	defer span.End()
	started := time.Now()

	local, err := s.events.List(ctx, session.OwnerID, from, to)
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewStorageError("event store list failed", err)
	}

	merged := append([]entities.CalendarEvent(nil), local...)

	creds, err := s.credentials.ListConnected(ctx, session.OwnerID)
	if err != nil {
		// Credentials live in the same store as events; treat like storage.
		observability.RecordError(span, err)
		return nil, apperrors.NewStorageError("failed to list connected credentials", err)
	}

	for _, cred := range creds {
		session.SetCredential(cred)
		merged = append(merged, s.fetchSource(ctx, cred, from, to)...)
	}

	timeline := dedupeAndSort(merged)
	session.SetTimeline(timeline)
	s.cacheTimeline(ctx, session.OwnerID, timeline)
	s.publish(ctx, session.OwnerID, entities.NoticeTimelineMerged, "")

	if s.metrics != nil {
		s.metrics.MergeDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	}
	return timeline, nil
}

// fetchSource fans out over one provider's calendars. Every failure inside
// is a partial-source failure: logged, degraded to zero events, never
// propagated.
func (s *MergeService) fetchSource(ctx context.Context, cred *entities.ProviderCredential, from, to time.Time) []entities.CalendarEvent {
	logger := observability.LoggerFromContext(ctx)

	adapter, ok := s.registry.Get(cred.Provider)
	if !ok {
		logger.Warn().Str("provider", string(cred.Provider)).Msg("no adapter registered, skipping source")
		return nil
	}

	var calendars []entities.CalendarRef
	err := s.credentials.CallWithRefresh(ctx, cred, func() error {
		var callErr error
		calendars, callErr = adapter.ListCalendars(ctx, cred)
		return callErr
	})
	if err != nil {
		partial := apperrors.NewPartialSourceError("calendar listing failed", err)
		logger.Warn().Err(partial).Str("provider", string(cred.Provider)).Msg("source degraded to empty")
		return nil
	}

	events := s.fetchCalendars(ctx, adapter, cred, calendars, from, to)
	if err := s.credentials.MarkSynced(ctx, cred); err != nil {
		logger.Warn().Err(err).Str("provider", string(cred.Provider)).Msg("failed to record sync time")
	}
	return events
}

// fetchCalendars walks the calendar list in bounded concurrent batches with
// a pause between batches, so a subject with many calendars cannot exhaust
// local connection limits. The pause grows while the provider throttles.
func (s *MergeService) fetchCalendars(
	ctx context.Context,
	adapter providers.CalendarProvider,
	cred *entities.ProviderCredential,
	calendars []entities.CalendarRef,
	from, to time.Time,
) []entities.CalendarEvent {
	logger := observability.LoggerFromContext(ctx)

	pause := backoff.NewExponentialBackOff()
	pause.InitialInterval = s.pause
	pause.MaxInterval = 10 * s.pause
	pause.Reset()

	results := make([][]entities.CalendarEvent, len(calendars))

	for start := 0; start < len(calendars); start += s.batchSize {
		end := start + s.batchSize
		if end > len(calendars) {
			end = len(calendars)
		}

		var (
			wg          sync.WaitGroup
			rateLimited bool
			mu          sync.Mutex
		)
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ref := calendars[i]
				var fetched []entities.CalendarEvent
				err := s.credentials.CallWithRefresh(ctx, cred, func() error {
					var callErr error
					fetched, callErr = adapter.FetchEvents(ctx, cred, ref, from, to)
					return callErr
				})
				observability.RecordFetch(ctx, s.metrics, string(cred.Provider), err != nil)
				if err != nil {
					// One misbehaving calendar must not blank out the view.
					logger.Warn().Err(apperrors.NewPartialSourceError("calendar fetch failed", err)).
						Str("provider", string(cred.Provider)).
						Str("calendar", ref.ID).
						Msg("calendar fetch failed, treated as empty")
					if providers.IsRateLimited(err) {
						mu.Lock()
						rateLimited = true
						mu.Unlock()
					}
					return
				}
				results[i] = fetched
			}(i)
		}
		wg.Wait()

		if end < len(calendars) {
			delay := s.pause
			if rateLimited {
				delay = pause.NextBackOff()
			} else {
				pause.Reset()
			}
			select {
			case <-ctx.Done():
				return flatten(results)
			case <-time.After(delay):
			}
		}
	}

	return flatten(results)
}

func flatten(batches [][]entities.CalendarEvent) []entities.CalendarEvent {
	var out []entities.CalendarEvent
	for _, batch := range batches {
		out = append(out, batch...)
	}
	return out
}

// dedupeAndSort removes duplicate (source, id) entries, last seen winning,
// and orders the timeline by start ascending.
func dedupeAndSort(events []entities.CalendarEvent) []entities.CalendarEvent {
	index := make(map[entities.EventKey]int, len(events))
	deduped := make([]entities.CalendarEvent, 0, len(events))
	for _, event := range events {
		if at, seen := index[event.Key()]; seen {
			deduped[at] = event
			continue
		}
		index[event.Key()] = len(deduped)
		deduped = append(deduped, event)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Start.Before(deduped[j].Start)
	})
	return deduped
}

func (s *MergeService) cacheTimeline(ctx context.Context, ownerID string, timeline []entities.CalendarEvent) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(timeline)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, timelineCacheKey(ownerID), data, timelineCacheTTL); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to cache timeline")
	}
}

// CachedTimeline returns the last cached merged timeline, if any.
func (s *MergeService) CachedTimeline(ctx context.Context, ownerID string) ([]entities.CalendarEvent, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, timelineCacheKey(ownerID))
	if err != nil {
		return nil, false
	}
	var timeline []entities.CalendarEvent
	if err := json.Unmarshal(data, &timeline); err != nil {
		return nil, false
	}
	return timeline, true
}

func timelineCacheKey(ownerID string) string {
	return "calendar:timeline:" + ownerID
}

func (s *MergeService) publish(ctx context.Context, ownerID string, noticeType entities.NoticeType, eventID string) {
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
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to publish calendar notice")
	}
}
