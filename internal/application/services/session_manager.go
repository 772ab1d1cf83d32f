package services

import (
	"sync"
)

// SessionManager hands out one CalendarSession per active subject so every
// request for the same owner sees the same in-memory timeline.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*CalendarSession
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*CalendarSession)}
}

// Get returns the owner's session, creating it on first use.
func (m *SessionManager) Get(ownerID string) *CalendarSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[ownerID]
	if !ok {
		session = NewCalendarSession(ownerID)
		m.sessions[ownerID] = session
	}
	return session
}

// Drop discards the owner's session; the next Get starts fresh.
func (m *SessionManager) Drop(ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, ownerID)
}
