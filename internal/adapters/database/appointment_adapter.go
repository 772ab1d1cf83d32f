package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/clients/postgres"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// AppointmentAdapter implements the AppointmentRepository interface
type AppointmentAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewAppointmentAdapter creates a new appointment adapter
func NewAppointmentAdapter(client *postgres.Client) repositories.AppointmentRepository {
	return &AppointmentAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var appointmentColumns = []interface{}{
	"id", "professional_id", "client_id", "start_at", "duration_minutes",
	"status", "modality", "remote_event_id", "created_at", "updated_at",
}

// Create creates a new appointment
func (a *AppointmentAdapter) Create(ctx context.Context, appointment *entities.Appointment) error {
	record := goqu.Record{
		"id":               appointment.ID,
		"professional_id":  appointment.ProfessionalID,
		"client_id":        appointment.ClientID,
		"start_at":         appointment.Start,
		"duration_minutes": appointment.DurationMinutes,
		"status":           appointment.Status,
		"modality":         appointment.Modality,
		"remote_event_id":  appointment.RemoteEventID,
		"created_at":       appointment.CreatedAt,
		"updated_at":       appointment.UpdatedAt,
	}

	query, args, err := a.db.Insert("appointments").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewStorageError("failed to create appointment", err)
	}

	return nil
}

// GetByID retrieves an appointment by ID
func (a *AppointmentAdapter) GetByID(ctx context.Context, id string) (*entities.Appointment, error) {
	query, args, err := a.db.Select(appointmentColumns...).
		From("appointments").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	appointment, err := scanAppointment(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("appointment %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to get appointment", err)
	}

	return appointment, nil
}

// ListBySubject retrieves appointments where the subject participates on
// either side, overlapping [from, to), start ascending.
func (a *AppointmentAdapter) ListBySubject(ctx context.Context, subjectID string, from, to time.Time) ([]*entities.Appointment, error) {
	query, args, err := a.db.Select(appointmentColumns...).
		From("appointments").
		Where(
			goqu.Or(
				goqu.Ex{"professional_id": subjectID},
				goqu.Ex{"client_id": subjectID},
			),
			goqu.C("start_at").Lt(to),
			// start_at + duration > from, expressed on the indexed column with
			// a conservative bound on appointment length (one day).
			goqu.C("start_at").Gt(from.Add(-24*time.Hour)),
		).
		Order(goqu.I("start_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list appointments", err)
	}
	defer rows.Close()

	var appointments []*entities.Appointment
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to scan appointment", err)
		}
		if appointment.End().After(from) {
			appointments = append(appointments, appointment)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read appointments", err)
	}

	return appointments, nil
}

// SetRemoteEvent records the provider event id a booking was mirrored to.
func (a *AppointmentAdapter) SetRemoteEvent(ctx context.Context, id, remoteEventID string) error {
	query, args, err := a.db.Update("appointments").
		Set(goqu.Record{
			"remote_event_id": remoteEventID,
			"updated_at":      time.Now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewStorageError("failed to set remote event id", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("appointment %s not found", id))
	}

	return nil
}

// Cancel cancels an appointment
func (a *AppointmentAdapter) Cancel(ctx context.Context, id string) error {
	query, args, err := a.db.Update("appointments").
		Set(goqu.Record{
			"status":     entities.AppointmentStatusCancelled,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build cancel query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewStorageError("failed to cancel appointment", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("appointment %s not found", id))
	}

	return nil
}

func scanAppointment(row rowScanner) (*entities.Appointment, error) {
	appointment := &entities.Appointment{}
	var remoteEventID sql.NullString

	err := row.Scan(
		&appointment.ID,
		&appointment.ProfessionalID,
		&appointment.ClientID,
		&appointment.Start,
		&appointment.DurationMinutes,
		&appointment.Status,
		&appointment.Modality,
		&remoteEventID,
		&appointment.CreatedAt,
		&appointment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if remoteEventID.Valid {
		appointment.RemoteEventID = &remoteEventID.String
	}
	return appointment, nil
}
