package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/providers"
)

// MockAdapter provides deterministic calendars for local development and
// tests. Failures can be injected per calendar to exercise partial-failure
// handling.
type MockAdapter struct {
	source    entities.EventSource
	mu        sync.Mutex
	calendars []entities.CalendarRef
	events    map[string][]entities.CalendarEvent // calendar id -> events
	failFetch map[string]error                    // calendar id -> injected error
	failAuth  bool
}

// NewMockAdapter creates a mock calendar provider for the given source tag.
func NewMockAdapter(source entities.EventSource) *MockAdapter {
	return &MockAdapter{
		source:    source,
		calendars: []entities.CalendarRef{{ID: "mock-primary", Name: "Primary", Primary: true}},
		events:    make(map[string][]entities.CalendarEvent),
		failFetch: make(map[string]error),
	}
}

// Source returns the tag fetched events carry.
func (m *MockAdapter) Source() entities.EventSource {
	return m.source
}

// AddCalendar registers an extra calendar.
func (m *MockAdapter) AddCalendar(ref entities.CalendarRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendars = append(m.calendars, ref)
}

// SeedEvents sets the events returned for a calendar.
func (m *MockAdapter) SeedEvents(calendarID string, events []entities.CalendarEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[calendarID] = events
}

// FailFetch injects an error for one calendar's fetches.
func (m *MockAdapter) FailFetch(calendarID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFetch[calendarID] = err
}

// FailAuth makes every call fail with an AuthExpired error until cleared.
func (m *MockAdapter) FailAuth(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAuth = fail
}

func (m *MockAdapter) authErr() error {
	return &providers.ProviderError{
		Source:     m.source,
		Code:       providers.ProviderErrAuthExpired,
		StatusCode: 401,
	}
}

// ListCalendars returns the registered calendars.
func (m *MockAdapter) ListCalendars(ctx context.Context, cred *entities.ProviderCredential) ([]entities.CalendarRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAuth {
		return nil, m.authErr()
	}
	refs := make([]entities.CalendarRef, len(m.calendars))
	copy(refs, m.calendars)
	return refs, nil
}

// FetchEvents returns seeded events overlapping [from, to).
func (m *MockAdapter) FetchEvents(ctx context.Context, cred *entities.ProviderCredential, calendar entities.CalendarRef, from, to time.Time) ([]entities.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAuth {
		return nil, m.authErr()
	}
	if err := m.failFetch[calendar.ID]; err != nil {
		return nil, err
	}

	var out []entities.CalendarEvent
	for _, event := range m.events[calendar.ID] {
		if event.Overlaps(from, to) {
			out = append(out, event)
		}
	}
	return out, nil
}

// CreateEvent stores an event on the primary calendar.
func (m *MockAdapter) CreateEvent(ctx context.Context, cred *entities.ProviderCredential, fields entities.EventFields) (*entities.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAuth {
		return nil, m.authErr()
	}

	event := entities.CalendarEvent{
		ID:       uuid.New().String(),
		Title:    fields.Title,
		Start:    fields.Start,
		End:      fields.End,
		Source:   m.source,
		Editable: true,
		Kind:     entities.KindEvent,
	}
	event.RemoteID = event.ID
	m.events["mock-primary"] = append(m.events["mock-primary"], event)
	return &event, nil
}

// UpdateEvent patches a stored event.
func (m *MockAdapter) UpdateEvent(ctx context.Context, cred *entities.ProviderCredential, remoteID string, patch entities.EventPatch) (*entities.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAuth {
		return nil, m.authErr()
	}

	for calendarID, events := range m.events {
		for i, event := range events {
			if event.RemoteID == remoteID {
				updated := patch.Apply(event)
				m.events[calendarID][i] = updated
				return &updated, nil
			}
		}
	}
	return nil, &providers.ProviderError{
		Source:     m.source,
		Code:       providers.ProviderErrNotFound,
		StatusCode: 404,
		Err:        fmt.Errorf("event %s not found", remoteID),
	}
}

// DeleteEvent removes a stored event.
func (m *MockAdapter) DeleteEvent(ctx context.Context, cred *entities.ProviderCredential, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAuth {
		return m.authErr()
	}

	for calendarID, events := range m.events {
		for i, event := range events {
			if event.RemoteID == remoteID {
				m.events[calendarID] = append(events[:i:i], events[i+1:]...)
				return nil
			}
		}
	}
	return &providers.ProviderError{
		Source:     m.source,
		Code:       providers.ProviderErrNotFound,
		StatusCode: 404,
		Err:        fmt.Errorf("event %s not found", remoteID),
	}
}

// RefreshToken issues a fresh fake token and clears injected auth failures.
func (m *MockAdapter) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if refreshToken == "" {
		return "", m.authErr()
	}
	m.failAuth = false
	return "mock-access-" + uuid.New().String(), nil
}

var _ providers.CalendarProvider = (*MockAdapter)(nil)
var _ providers.TokenRefresher = (*MockAdapter)(nil)
