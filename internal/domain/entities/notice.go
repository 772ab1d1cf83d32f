package entities

import (
	"time"
)

// NoticeType classifies calendar change notifications.
type NoticeType string

const (
	NoticeTimelineMerged   NoticeType = "timeline.merged"
	NoticeEventCreated     NoticeType = "event.created"
	NoticeEventUpdated     NoticeType = "event.updated"
	NoticeEventDeleted     NoticeType = "event.deleted"
	NoticeBookingConfirmed NoticeType = "booking.confirmed"
	NoticeEventRescheduled NoticeType = "event.rescheduled"
)

// CalendarNotice is published on the event bus after a write or a completed
// merge so other sessions can refresh their view.
type CalendarNotice struct {
	ID      string     `json:"id"`
	Type    NoticeType `json:"type"`
	OwnerID string     `json:"owner_id"`
	EventID string     `json:"event_id,omitempty"`
	At      time.Time  `json:"at"`
}
