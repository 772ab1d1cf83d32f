package services

import (
	"sort"
	"sync"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
)

// CalendarSession owns the in-memory view state of one active subject: the
// merged timeline, the resolved availability template, and the connected
// credentials. It is constructed per subject and passed explicitly; nothing
// reads calendar state from ambient scope.
//
// Exactly two writers touch the timeline: the merge engine replacing it
// wholesale, and the interactive scheduler applying one optimistic patch
// during an active gesture. The surrounding UI blocks a new merge until
// pointer-up, so these never interleave; the mutex guards the Go-level
// memory accesses, not a wider protocol.
type CalendarSession struct {
	OwnerID string

	mu          sync.RWMutex
	timeline    []entities.CalendarEvent
	template    *entities.AvailabilityTemplate
	credentials map[entities.EventSource]*entities.ProviderCredential
}

// NewCalendarSession creates a session for the given subject.
func NewCalendarSession(ownerID string) *CalendarSession {
	return &CalendarSession{
		OwnerID:     ownerID,
		credentials: make(map[entities.EventSource]*entities.ProviderCredential),
	}
}

// Timeline returns a copy of the merged timeline.
func (s *CalendarSession) Timeline() []entities.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	timeline := make([]entities.CalendarEvent, len(s.timeline))
	copy(timeline, s.timeline)
	return timeline
}

// SetTimeline replaces the merged timeline wholesale.
func (s *CalendarSession) SetTimeline(timeline []entities.CalendarEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline = timeline
}

// FindEvent returns the timeline entry with the given identity.
func (s *CalendarSession) FindEvent(key entities.EventKey) (entities.CalendarEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, event := range s.timeline {
		if event.Key() == key {
			return event, true
		}
	}
	return entities.CalendarEvent{}, false
}

// ReplaceEvent swaps the timeline entry with the same identity for the given
// event. Missing entries are ignored.
func (s *CalendarSession) ReplaceEvent(event entities.CalendarEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.timeline {
		if s.timeline[i].Key() == event.Key() {
			s.timeline[i] = event
			return
		}
	}
}

// Template returns the resolved availability template, which may be nil
// before the first load.
func (s *CalendarSession) Template() *entities.AvailabilityTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

// SetTemplate stores the resolved availability template.
func (s *CalendarSession) SetTemplate(template *entities.AvailabilityTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.template = template
}

// Credential returns the session's credential for a provider.
func (s *CalendarSession) Credential(source entities.EventSource) (*entities.ProviderCredential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[source]
	return cred, ok
}

// ConnectedCredentials returns the session's Connected credentials ordered
// by provider name, so callers that need "the" provider pick the same one
// every time.
func (s *CalendarSession) ConnectedCredentials() []*entities.ProviderCredential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var creds []*entities.ProviderCredential
	for _, cred := range s.credentials {
		if cred.Connected() {
			creds = append(creds, cred)
		}
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Provider < creds[j].Provider })
	return creds
}

// SetCredential stores a credential on the session.
func (s *CalendarSession) SetCredential(cred *entities.ProviderCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.Provider] = cred
}
