package entities

import (
	"time"
)

// EventSource identifies which calendar an event came from
type EventSource string

const (
	SourceLocal     EventSource = "local"
	SourceGoogle    EventSource = "google"
	SourceMicrosoft EventSource = "microsoft"
)

// EventKind discriminates ordinary busy events from availability blocks
type EventKind string

const (
	// KindEvent is an ordinary event; it narrows availability.
	KindEvent EventKind = "event"

	// KindAvailabilityBlock marks explicit open time; it widens availability
	// and is excluded from the busy projection.
	KindAvailabilityBlock EventKind = "availability_block"
)

// CalendarEvent is the single shared shape every source is normalized into.
// Adapter-specific fields never leak past the adapter boundary.
type CalendarEvent struct {
	ID     string      `json:"id" db:"id"`
	Title  string      `json:"title" db:"title"`
	Start  time.Time   `json:"start" db:"start_at"`
	End    time.Time   `json:"end" db:"end_at"`
	AllDay bool        `json:"all_day" db:"all_day"`
	Source EventSource `json:"source" db:"source"`

	// RemoteID is the id this event has at its provider, used for idempotent
	// upsert and for correlating a local event that was also pushed remotely.
	RemoteID string `json:"remote_id,omitempty" db:"remote_id"`

	Color string `json:"color,omitempty" db:"color"`

	// Editable is false for events owned by another subsystem,
	// e.g. confirmed appointments.
	Editable bool `json:"editable" db:"editable"`

	Kind EventKind `json:"kind" db:"kind"`
}

// EventKey uniquely identifies an event within a merged timeline.
type EventKey struct {
	Source EventSource
	ID     string
}

// Key returns the (source, id) identity of the event.
func (e CalendarEvent) Key() EventKey {
	return EventKey{Source: e.Source, ID: e.ID}
}

// Duration returns the event length.
func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps reports whether the event intersects the half-open
// interval [start, end).
func (e CalendarEvent) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// IsBusy reports whether the event contributes to the busy projection.
func (e CalendarEvent) IsBusy() bool {
	return e.Kind != KindAvailabilityBlock
}

// EventPatch is a partial update to an event. Nil fields are left unchanged.
type EventPatch struct {
	Title  *string    `json:"title,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	AllDay *bool      `json:"all_day,omitempty"`
	Color  *string    `json:"color,omitempty"`
}

// Apply returns a copy of ev with the patch applied.
func (p EventPatch) Apply(ev CalendarEvent) CalendarEvent {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	if p.AllDay != nil {
		ev.AllDay = *p.AllDay
	}
	if p.Color != nil {
		ev.Color = *p.Color
	}
	return ev
}

// CalendarRef identifies one remote calendar under a provider credential.
type CalendarRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Primary bool   `json:"primary"`
}

// EventFields is the creation payload accepted by provider adapters.
type EventFields struct {
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
}
