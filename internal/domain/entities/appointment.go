package entities

import (
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// AppointmentModality represents how the appointment takes place
type AppointmentModality string

const (
	ModalityVideo    AppointmentModality = "video"
	ModalityInPerson AppointmentModality = "in_person"
)

// Appointment is a confirmed booking between a professional and a client.
// Status transitions are owned by the appointment lifecycle service; this
// engine creates appointments and reads them as busy intervals.
type Appointment struct {
	ID              string              `json:"id" db:"id"`
	ProfessionalID  string              `json:"professional_id" db:"professional_id"`
	ClientID        string              `json:"client_id" db:"client_id"`
	Start           time.Time           `json:"start" db:"start_at"`
	DurationMinutes int                 `json:"duration_minutes" db:"duration_minutes"`
	Status          AppointmentStatus   `json:"status" db:"status"`
	Modality        AppointmentModality `json:"modality" db:"modality"`

	// RemoteEventID is set when the booking was mirrored to the
	// professional's external calendar.
	RemoteEventID *string `json:"remote_event_id,omitempty" db:"remote_event_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// End returns the appointment end instant.
func (a Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Blocks reports whether the appointment occupies calendar time.
func (a Appointment) Blocks() bool {
	return a.Status == AppointmentStatusPending || a.Status == AppointmentStatusConfirmed
}

// BusyInterval projects the appointment onto the time axis.
func (a Appointment) BusyInterval() BusyInterval {
	return BusyInterval{Start: a.Start, End: a.End()}
}
