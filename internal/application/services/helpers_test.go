package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// In-memory fakes shared by the service tests.

type memEventRepo struct {
	mu     sync.Mutex
	events map[string][]entities.CalendarEvent // owner id -> events

	failList   error
	failUpdate error
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: make(map[string][]entities.CalendarEvent)}
}

func (r *memEventRepo) Create(ctx context.Context, ownerID string, event *entities.CalendarEvent) (*entities.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Source == "" {
		stored.Source = entities.SourceLocal
	}
	if stored.Kind == "" {
		stored.Kind = entities.KindEvent
	}
	if !stored.End.After(stored.Start) {
		return nil, apperrors.NewValidationError("event end must be after start")
	}
	r.events[ownerID] = append(r.events[ownerID], stored)
	return &stored, nil
}

func (r *memEventRepo) List(ctx context.Context, ownerID string, from, to time.Time) ([]entities.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	var out []entities.CalendarEvent
	for _, event := range r.events[ownerID] {
		if event.Overlaps(from, to) {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *memEventRepo) Update(ctx context.Context, ownerID, id string, patch entities.EventPatch) (*entities.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return nil, r.failUpdate
	}
	for i, event := range r.events[ownerID] {
		if event.ID != id {
			continue
		}
		updated := patch.Apply(event)
		if !updated.End.After(updated.Start) {
			return nil, apperrors.NewValidationError("event end must be after start")
		}
		r.events[ownerID][i] = updated
		return &updated, nil
	}
	return nil, apperrors.NewNotFoundError("event not found")
}

func (r *memEventRepo) Delete(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.events[ownerID]
	for i, event := range events {
		if event.ID == id {
			r.events[ownerID] = append(events[:i:i], events[i+1:]...)
			return nil
		}
	}
	return apperrors.NewNotFoundError("event not found")
}

type memCredRepo struct {
	mu    sync.Mutex
	creds map[string]*entities.ProviderCredential // owner|provider
	saves int
}

func newMemCredRepo() *memCredRepo {
	return &memCredRepo{creds: make(map[string]*entities.ProviderCredential)}
}

func credKey(ownerID string, provider entities.EventSource) string {
	return ownerID + "|" + string(provider)
}

func (r *memCredRepo) Get(ctx context.Context, ownerID string, provider entities.EventSource) (*entities.ProviderCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[credKey(ownerID, provider)]
	if !ok {
		return nil, apperrors.NewNotFoundError("credential not found")
	}
	clone := *cred
	return &clone, nil
}

func (r *memCredRepo) ListConnected(ctx context.Context, ownerID string) ([]*entities.ProviderCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.ProviderCredential
	for _, cred := range r.creds {
		if cred.OwnerID == ownerID && cred.State == entities.CredentialConnected {
			clone := *cred
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r *memCredRepo) Save(ctx context.Context, credential *entities.ProviderCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *credential
	r.creds[credKey(credential.OwnerID, credential.Provider)] = &clone
	r.saves++
	return nil
}

func (r *memCredRepo) Delete(ctx context.Context, ownerID string, provider entities.EventSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, credKey(ownerID, provider))
	return nil
}

func (r *memCredRepo) state(ownerID string, provider entities.EventSource) entities.CredentialState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[credKey(ownerID, provider)]
	if !ok {
		return ""
	}
	return cred.State
}

type memAppointmentRepo struct {
	mu           sync.Mutex
	appointments []*entities.Appointment
	failCreate   error
}

func newMemAppointmentRepo() *memAppointmentRepo {
	return &memAppointmentRepo{}
}

func (r *memAppointmentRepo) Create(ctx context.Context, appointment *entities.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate != nil {
		return r.failCreate
	}
	clone := *appointment
	r.appointments = append(r.appointments, &clone)
	return nil
}

func (r *memAppointmentRepo) GetByID(ctx context.Context, id string) (*entities.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, appointment := range r.appointments {
		if appointment.ID == id {
			clone := *appointment
			return &clone, nil
		}
	}
	return nil, apperrors.NewNotFoundError("appointment not found")
}

func (r *memAppointmentRepo) ListBySubject(ctx context.Context, subjectID string, from, to time.Time) ([]*entities.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Appointment
	for _, appointment := range r.appointments {
		if appointment.ProfessionalID != subjectID && appointment.ClientID != subjectID {
			continue
		}
		if appointment.Start.Before(to) && appointment.End().After(from) {
			clone := *appointment
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memAppointmentRepo) SetRemoteEvent(ctx context.Context, id, remoteEventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, appointment := range r.appointments {
		if appointment.ID == id {
			appointment.RemoteEventID = &remoteEventID
			return nil
		}
	}
	return apperrors.NewNotFoundError("appointment not found")
}

func (r *memAppointmentRepo) Cancel(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, appointment := range r.appointments {
		if appointment.ID == id {
			appointment.Status = entities.AppointmentStatusCancelled
			return nil
		}
	}
	return apperrors.NewNotFoundError("appointment not found")
}

type memTemplateRepo struct {
	template *entities.AvailabilityTemplate
	err      error
}

func (r *memTemplateRepo) GetTemplate(ctx context.Context, ownerID string) (*entities.AvailabilityTemplate, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.template, nil
}

// nextWeekday returns the next day at 00:00 local that falls on wd, at least
// one day ahead of t.
func nextWeekday(t time.Time, wd time.Weekday) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
	for day.Weekday() != wd {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// singleDayTemplate builds a template with one enabled weekday.
func singleDayTemplate(wd time.Weekday, ranges ...entities.TimeRange) *entities.AvailabilityTemplate {
	template := &entities.AvailabilityTemplate{}
	template.Days[int(wd)] = entities.DayTemplate{Enabled: true, Ranges: ranges}
	return template
}
