package services

import (
	"context"
	"testing"
	"time"

	"github.com/proagenda/calendar-engine/internal/adapters/providers/calendar"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMergeFixture(t *testing.T) (*memEventRepo, *memCredRepo, *calendar.MockAdapter, *MergeService, *CalendarSession) {
	t.Helper()
	eventRepo := newMemEventRepo()
	credRepo := newMemCredRepo()
	adapter := calendar.NewMockAdapter(entities.SourceGoogle)

	registry := calendar.NewEmptyRegistry()
	registry.Register(adapter, adapter)

	creds := NewCredentialService(credRepo, registry)
	merge := NewMergeService(eventRepo, creds, registry, nil, nil, nil, 2, time.Millisecond)
	session := NewCalendarSession("owner-1")
	return eventRepo, credRepo, adapter, merge, session
}

func connectCred(t *testing.T, repo *memCredRepo, ownerID string, provider entities.EventSource) {
	t.Helper()
	err := repo.Save(context.Background(), &entities.ProviderCredential{
		OwnerID:      ownerID,
		Provider:     provider,
		AccessToken:  "token",
		RefreshToken: "refresh",
		State:        entities.CredentialConnected,
	})
	require.NoError(t, err)
}

func TestMergeService_Merge(t *testing.T) {
	base := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	from, to := base, base.AddDate(0, 0, 7)

	t.Run("combines local and provider events sorted by start", func(t *testing.T) {
		eventRepo, credRepo, adapter, merge, session := newMergeFixture(t)
		connectCred(t, credRepo, "owner-1", entities.SourceGoogle)

		_, err := eventRepo.Create(context.Background(), "owner-1", &entities.CalendarEvent{
			ID: "local-1", Title: "Local", Start: base.Add(10 * time.Hour), End: base.Add(11 * time.Hour),
		})
		require.NoError(t, err)

		adapter.SeedEvents("mock-primary", []entities.CalendarEvent{
			{ID: "g-1", RemoteID: "g-1", Title: "Earlier", Source: entities.SourceGoogle,
				Start: base.Add(8 * time.Hour), End: base.Add(9 * time.Hour), Kind: entities.KindEvent},
		})

		timeline, err := merge.Merge(context.Background(), session, from, to)
		require.NoError(t, err)
		require.Len(t, timeline, 2)
		assert.Equal(t, "Earlier", timeline[0].Title)
		assert.Equal(t, "Local", timeline[1].Title)
		assert.Equal(t, timeline, session.Timeline())
	})

	t.Run("deduplicates by source and id, last seen wins", func(t *testing.T) {
		_, credRepo, adapter, merge, session := newMergeFixture(t)
		connectCred(t, credRepo, "owner-1", entities.SourceGoogle)

		adapter.AddCalendar(entities.CalendarRef{ID: "second", Name: "Second"})
		duplicate := entities.CalendarEvent{
			ID: "dup-1", Source: entities.SourceGoogle, Kind: entities.KindEvent,
			Start: base.Add(9 * time.Hour), End: base.Add(10 * time.Hour),
		}
		first := duplicate
		first.Title = "from primary"
		second := duplicate
		second.Title = "from second"
		adapter.SeedEvents("mock-primary", []entities.CalendarEvent{first})
		adapter.SeedEvents("second", []entities.CalendarEvent{second})

		timeline, err := merge.Merge(context.Background(), session, from, to)
		require.NoError(t, err)
		require.Len(t, timeline, 1)
		assert.Equal(t, "from second", timeline[0].Title)
	})

	t.Run("merging twice with no writes is idempotent", func(t *testing.T) {
		eventRepo, credRepo, adapter, merge, session := newMergeFixture(t)
		connectCred(t, credRepo, "owner-1", entities.SourceGoogle)

		_, err := eventRepo.Create(context.Background(), "owner-1", &entities.CalendarEvent{
			ID: "local-1", Start: base.Add(10 * time.Hour), End: base.Add(11 * time.Hour),
		})
		require.NoError(t, err)
		adapter.SeedEvents("mock-primary", []entities.CalendarEvent{
			{ID: "g-1", Source: entities.SourceGoogle, Kind: entities.KindEvent,
				Start: base.Add(8 * time.Hour), End: base.Add(9 * time.Hour)},
		})

		firstPass, err := merge.Merge(context.Background(), session, from, to)
		require.NoError(t, err)
		secondPass, err := merge.Merge(context.Background(), session, from, to)
		require.NoError(t, err)
		assert.Equal(t, firstPass, secondPass)
	})

	t.Run("one failing calendar degrades to empty and merge continues", func(t *testing.T) {
		eventRepo, credRepo, adapter, merge, session := newMergeFixture(t)
		connectCred(t, credRepo, "owner-1", entities.SourceGoogle)

		_, err := eventRepo.Create(context.Background(), "owner-1", &entities.CalendarEvent{
			ID: "local-1", Start: base.Add(14 * time.Hour), End: base.Add(15 * time.Hour),
		})
		require.NoError(t, err)

		adapter.AddCalendar(entities.CalendarRef{ID: "flaky"})
		adapter.SeedEvents("mock-primary", []entities.CalendarEvent{
			{ID: "ok-1", Source: entities.SourceGoogle, Kind: entities.KindEvent,
				Start: base.Add(9 * time.Hour), End: base.Add(10 * time.Hour)},
		})
		adapter.FailFetch("flaky", &providers.ProviderError{
			Source: entities.SourceGoogle, Code: providers.ProviderErrUnknown, StatusCode: 504,
		})

		timeline, err := merge.Merge(context.Background(), session, from, to)
		require.NoError(t, err)
		assert.Len(t, timeline, 2)
	})

	t.Run("event store failure aborts with a storage error", func(t *testing.T) {
		eventRepo, _, _, merge, session := newMergeFixture(t)
		eventRepo.failList = assert.AnError

		_, err := merge.Merge(context.Background(), session, from, to)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeStorage))
	})

	t.Run("no two timeline entries share source and id", func(t *testing.T) {
		_, credRepo, adapter, merge, session := newMergeFixture(t)
		connectCred(t, credRepo, "owner-1", entities.SourceGoogle)

		adapter.AddCalendar(entities.CalendarRef{ID: "second"})
		shared := entities.CalendarEvent{
			ID: "x", Source: entities.SourceGoogle, Kind: entities.KindEvent,
			Start: base.Add(9 * time.Hour), End: base.Add(10 * time.Hour),
		}
		adapter.SeedEvents("mock-primary", []entities.CalendarEvent{shared})
		adapter.SeedEvents("second", []entities.CalendarEvent{shared})

		timeline, err := merge.Merge(context.Background(), session, from, to)
		require.NoError(t, err)

		seen := make(map[entities.EventKey]bool)
		for _, event := range timeline {
			assert.False(t, seen[event.Key()], "duplicate key %v", event.Key())
			seen[event.Key()] = true
		}
		for i := 1; i < len(timeline); i++ {
			assert.False(t, timeline[i].Start.Before(timeline[i-1].Start))
		}
	})
}
