package services

import (
	"context"
	"testing"
	"time"

	"github.com/proagenda/calendar-engine/internal/adapters/providers/calendar"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/pkg/config"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	appointments *memAppointmentRepo
	credRepo     *memCredRepo
	adapter      *calendar.MockAdapter
	service      *BookingService
	session      *CalendarSession
	now          time.Time
	monday       time.Time
}

func newBookingFixture(t *testing.T, template *entities.AvailabilityTemplate) *bookingFixture {
	t.Helper()
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	appointments := newMemAppointmentRepo()
	credRepo := newMemCredRepo()
	adapter := calendar.NewMockAdapter(entities.SourceGoogle)
	registry := calendar.NewEmptyRegistry()
	registry.Register(adapter, adapter)

	cfg := config.AvailabilityConfig{SlotStep: 15 * time.Minute, HorizonDays: 8, BlockPolicy: BlockPolicyOverrideDisabled}
	availability := NewAvailabilityService(&memTemplateRepo{template: template}, nil, cfg)
	availability.now = func() time.Time { return now }

	creds := NewCredentialService(credRepo, registry)
	service := NewBookingService(appointments, availability, creds, registry, nil, nil)
	service.now = func() time.Time { return now }

	return &bookingFixture{
		appointments: appointments,
		credRepo:     credRepo,
		adapter:      adapter,
		service:      service,
		session:      NewCalendarSession("pro-1"),
		now:          now,
		monday:       nextWeekday(now, time.Monday),
	}
}

func TestBookingService_MutualSlots(t *testing.T) {
	t.Run("excludes slots overlapping the client's commitments", func(t *testing.T) {
		template := singleDayTemplate(time.Monday, entities.TimeRange{Start: "09:00", End: "10:00"})
		f := newBookingFixture(t, template)

		// Client is busy 09:00-09:20 on the professional's open Monday.
		require.NoError(t, f.appointments.Create(context.Background(), &entities.Appointment{
			ID: "appt-1", ProfessionalID: "someone-else", ClientID: "client-1",
			Start: f.monday.Add(9 * time.Hour), DurationMinutes: 20,
			Status: entities.AppointmentStatusConfirmed, Modality: entities.ModalityVideo,
		}))

		mutual, err := f.service.MutualSlots(context.Background(), f.session, "client-1", 30*time.Minute)
		require.NoError(t, err)

		starts := slotStarts(mutual)
		assert.NotContains(t, starts, f.monday.Add(9*time.Hour), "overlaps client busy interval")
		assert.NotContains(t, starts, f.monday.Add(9*time.Hour+15*time.Minute), "overlaps client busy interval")
		assert.Contains(t, starts, f.monday.Add(9*time.Hour+30*time.Minute))
	})

	t.Run("cancelled client appointments do not block", func(t *testing.T) {
		template := singleDayTemplate(time.Monday, entities.TimeRange{Start: "09:00", End: "10:00"})
		f := newBookingFixture(t, template)

		require.NoError(t, f.appointments.Create(context.Background(), &entities.Appointment{
			ID: "appt-1", ProfessionalID: "someone-else", ClientID: "client-1",
			Start: f.monday.Add(9 * time.Hour), DurationMinutes: 20,
			Status: entities.AppointmentStatusCancelled, Modality: entities.ModalityVideo,
		}))

		mutual, err := f.service.MutualSlots(context.Background(), f.session, "client-1", 30*time.Minute)
		require.NoError(t, err)
		assert.Contains(t, slotStarts(mutual), f.monday.Add(9*time.Hour))
	})
}

func TestBookingService_Confirm(t *testing.T) {
	template := singleDayTemplate(time.Monday, entities.TimeRange{Start: "09:00", End: "17:00"})

	t.Run("persists a confirmed appointment", func(t *testing.T) {
		f := newBookingFixture(t, template)

		start := f.monday.Add(9 * time.Hour)
		appointment, err := f.service.Confirm(context.Background(), f.session, "client-1", start, 30*time.Minute, entities.ModalityVideo)
		require.NoError(t, err)
		require.NotNil(t, appointment)
		assert.Equal(t, entities.AppointmentStatusConfirmed, appointment.Status)
		assert.Equal(t, "pro-1", appointment.ProfessionalID)
		assert.Equal(t, 30, appointment.DurationMinutes)

		stored, err := f.appointments.GetByID(context.Background(), appointment.ID)
		require.NoError(t, err)
		assert.Equal(t, start, stored.Start)
	})

	t.Run("conflict carries the overlapping busy interval", func(t *testing.T) {
		f := newBookingFixture(t, template)

		busyStart := f.monday.Add(10 * time.Hour)
		busyEnd := busyStart.Add(time.Hour)
		f.session.SetTimeline([]entities.CalendarEvent{{
			ID: "busy", Source: entities.SourceLocal, Kind: entities.KindEvent,
			Start: busyStart, End: busyEnd,
		}})

		_, err := f.service.Confirm(context.Background(), f.session, "client-1", busyStart.Add(30*time.Minute), 30*time.Minute, entities.ModalityVideo)
		require.Error(t, err)
		appErr, ok := err.(*apperrors.AppError)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrorTypeConflict, appErr.Type)
		assert.Equal(t, busyStart, appErr.ConflictStart)
		assert.Equal(t, busyEnd, appErr.ConflictEnd)
		assert.Empty(t, f.appointments.appointments, "no appointment may be written on conflict")
	})

	t.Run("client side conflicts are rejected too", func(t *testing.T) {
		f := newBookingFixture(t, template)

		start := f.monday.Add(11 * time.Hour)
		require.NoError(t, f.appointments.Create(context.Background(), &entities.Appointment{
			ID: "appt-1", ProfessionalID: "someone-else", ClientID: "client-1",
			Start: start, DurationMinutes: 60,
			Status: entities.AppointmentStatusConfirmed, Modality: entities.ModalityVideo,
		}))

		_, err := f.service.Confirm(context.Background(), f.session, "client-1", start.Add(15*time.Minute), 30*time.Minute, entities.ModalityVideo)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	})

	t.Run("mirrors the booking to a connected provider", func(t *testing.T) {
		f := newBookingFixture(t, template)
		connectCred(t, f.credRepo, "pro-1", entities.SourceGoogle)

		start := f.monday.Add(9 * time.Hour)
		appointment, err := f.service.Confirm(context.Background(), f.session, "client-1", start, 30*time.Minute, entities.ModalityInPerson)
		require.NoError(t, err)

		stored, err := f.appointments.GetByID(context.Background(), appointment.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.RemoteEventID)
		assert.NotEmpty(t, *stored.RemoteEventID)
	})

	t.Run("provider mirror failure surfaces but the booking stands", func(t *testing.T) {
		f := newBookingFixture(t, template)
		// Connected credential with no refresh token: the mirror's auth
		// failure cannot be recovered.
		require.NoError(t, f.credRepo.Save(context.Background(), &entities.ProviderCredential{
			OwnerID: "pro-1", Provider: entities.SourceGoogle,
			AccessToken: "stale", State: entities.CredentialConnected,
		}))
		f.adapter.FailAuth(true)

		start := f.monday.Add(9 * time.Hour)
		appointment, err := f.service.Confirm(context.Background(), f.session, "client-1", start, 30*time.Minute, entities.ModalityVideo)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
		require.NotNil(t, appointment, "the booking still stands")

		stored, getErr := f.appointments.GetByID(context.Background(), appointment.ID)
		require.NoError(t, getErr)
		assert.Nil(t, stored.RemoteEventID)
	})

	t.Run("rejects unknown modality", func(t *testing.T) {
		f := newBookingFixture(t, template)
		_, err := f.service.Confirm(context.Background(), f.session, "client-1", f.monday.Add(9*time.Hour), 30*time.Minute, "carrier-pigeon")
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestBookingService_Confirm_MirrorTargetIsDeterministic(t *testing.T) {
	template := singleDayTemplate(time.Monday, entities.TimeRange{Start: "09:00", End: "12:00"})
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	monday := nextWeekday(now, time.Monday)

	appointments := newMemAppointmentRepo()
	credRepo := newMemCredRepo()
	google := calendar.NewMockAdapter(entities.SourceGoogle)
	microsoft := calendar.NewMockAdapter(entities.SourceMicrosoft)
	registry := calendar.NewEmptyRegistry()
	registry.Register(google, google)
	registry.Register(microsoft, microsoft)

	cfg := config.AvailabilityConfig{SlotStep: 15 * time.Minute, HorizonDays: 8, BlockPolicy: BlockPolicyOverrideDisabled}
	availability := NewAvailabilityService(&memTemplateRepo{template: template}, nil, cfg)
	availability.now = func() time.Time { return now }

	creds := NewCredentialService(credRepo, registry)
	service := NewBookingService(appointments, availability, creds, registry, nil, nil)
	service.now = func() time.Time { return now }
	session := NewCalendarSession("pro-1")

	// Connection order must not matter; "google" sorts before "microsoft".
	connectCred(t, credRepo, "pro-1", entities.SourceMicrosoft)
	connectCred(t, credRepo, "pro-1", entities.SourceGoogle)

	_, err := service.Confirm(context.Background(), session, "client-1", monday.Add(9*time.Hour), 30*time.Minute, entities.ModalityVideo)
	require.NoError(t, err)

	cred := &entities.ProviderCredential{OwnerID: "pro-1", AccessToken: "token", State: entities.CredentialConnected}
	onGoogle, err := google.FetchEvents(context.Background(), cred, entities.CalendarRef{ID: "mock-primary"}, monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, onGoogle, 1, "the booking lands on the first provider by name")

	onMicrosoft, err := microsoft.FetchEvents(context.Background(), cred, entities.CalendarRef{ID: "mock-primary"}, monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, onMicrosoft)
}
