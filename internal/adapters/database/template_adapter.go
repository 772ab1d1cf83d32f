package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/clients/postgres"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// TemplateAdapter implements the TemplateRepository interface. The weekly
// template is stored as one row per (weekday, range); days without rows are
// disabled.
type TemplateAdapter struct {
	db *sqlx.DB
}

// NewTemplateAdapter creates a new availability template adapter
func NewTemplateAdapter(client *postgres.Client) repositories.TemplateRepository {
	return &TemplateAdapter{
		db: sqlx.NewDb(client.DB(), "postgres"),
	}
}

type templateRow struct {
	Weekday    int    `db:"weekday"`
	Enabled    bool   `db:"enabled"`
	StartClock string `db:"start_clock"`
	EndClock   string `db:"end_clock"`
}

// GetTemplate returns the owner's weekly availability template.
func (a *TemplateAdapter) GetTemplate(ctx context.Context, ownerID string) (*entities.AvailabilityTemplate, error) {
	var rows []templateRow
	err := a.db.SelectContext(ctx, &rows,
		`SELECT weekday, enabled, start_clock, end_clock
		 FROM availability_template_ranges
		 WHERE owner_id = $1
		 ORDER BY weekday, start_clock`,
		ownerID,
	)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to load availability template", err)
	}

	template := &entities.AvailabilityTemplate{}
	for _, row := range rows {
		if row.Weekday < 0 || row.Weekday > 6 {
			continue
		}
		day := &template.Days[row.Weekday]
		day.Enabled = day.Enabled || row.Enabled
		day.Ranges = append(day.Ranges, entities.TimeRange{
			Start: row.StartClock,
			End:   row.EndClock,
		})
	}

	if err := template.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	return template, nil
}
