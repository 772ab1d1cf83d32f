package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/clients/postgres"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// EventAdapter implements the EventRepository interface on Postgres.
type EventAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewEventAdapter creates a new event adapter
func NewEventAdapter(client *postgres.Client) repositories.EventRepository {
	return &EventAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var eventColumns = []interface{}{
	"id", "owner_id", "title", "start_at", "end_at", "all_day",
	"source", "remote_id", "color", "editable", "kind",
}

// Create persists a new locally owned event.
func (a *EventAdapter) Create(ctx context.Context, ownerID string, event *entities.CalendarEvent) (*entities.CalendarEvent, error) {
	if !event.End.After(event.Start) {
		return nil, apperrors.NewValidationError("event end must be after start")
	}

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

	record := goqu.Record{
		"id":        stored.ID,
		"owner_id":  ownerID,
		"title":     stored.Title,
		"start_at":  stored.Start,
		"end_at":    stored.End,
		"all_day":   stored.AllDay,
		"source":    stored.Source,
		"remote_id": stored.RemoteID,
		"color":     stored.Color,
		"editable":  stored.Editable,
		"kind":      stored.Kind,
	}

	query, args, err := a.db.Insert("calendar_events").Rows(record).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return nil, apperrors.NewStorageError("failed to create event", err)
	}

	return &stored, nil
}

// List returns the owner's events overlapping [from, to), start ascending.
func (a *EventAdapter) List(ctx context.Context, ownerID string, from, to time.Time) ([]entities.CalendarEvent, error) {
	query, args, err := a.db.Select(eventColumns...).
		From("calendar_events").
		Where(
			goqu.Ex{"owner_id": ownerID},
			goqu.C("start_at").Lt(to),
			goqu.C("end_at").Gt(from),
		).
		Order(goqu.I("start_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list events", err)
	}
	defer rows.Close()

	var events []entities.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to scan event", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read events", err)
	}

	return events, nil
}

// Update applies a partial patch; a patch that would leave end at or before
// start is rejected before any write.
func (a *EventAdapter) Update(ctx context.Context, ownerID, id string, patch entities.EventPatch) (*entities.CalendarEvent, error) {
	current, err := a.getByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	updated := patch.Apply(*current)
	if !updated.End.After(updated.Start) {
		return nil, apperrors.NewValidationError("event end must be after start")
	}

	record := goqu.Record{
		"title":    updated.Title,
		"start_at": updated.Start,
		"end_at":   updated.End,
		"all_day":  updated.AllDay,
		"color":    updated.Color,
	}

	query, args, err := a.db.Update("calendar_events").
		Set(record).
		Where(goqu.Ex{"owner_id": ownerID, "id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to update event", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("event %s not found", id))
	}

	return &updated, nil
}

// Delete removes an event.
func (a *EventAdapter) Delete(ctx context.Context, ownerID, id string) error {
	query, args, err := a.db.Delete("calendar_events").
		Where(goqu.Ex{"owner_id": ownerID, "id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewStorageError("failed to delete event", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("event %s not found", id))
	}

	return nil
}

func (a *EventAdapter) getByID(ctx context.Context, ownerID, id string) (*entities.CalendarEvent, error) {
	query, args, err := a.db.Select(eventColumns...).
		From("calendar_events").
		Where(goqu.Ex{"owner_id": ownerID, "id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	row := a.client.DB().QueryRowContext(ctx, query, args...)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("event %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to get event", err)
	}
	return &event, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (entities.CalendarEvent, error) {
	var (
		event    entities.CalendarEvent
		ownerID  string
		remoteID sql.NullString
		color    sql.NullString
	)
	err := row.Scan(
		&event.ID,
		&ownerID,
		&event.Title,
		&event.Start,
		&event.End,
		&event.AllDay,
		&event.Source,
		&remoteID,
		&color,
		&event.Editable,
		&event.Kind,
	)
	if err != nil {
		return entities.CalendarEvent{}, err
	}
	event.RemoteID = remoteID.String
	event.Color = color.String
	return event, nil
}
