package repositories

import (
	"context"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
)

// TemplateRepository serves the professional's weekly availability template.
// The template is maintained by the profile builder and read-only here.
type TemplateRepository interface {
	GetTemplate(ctx context.Context, ownerID string) (*entities.AvailabilityTemplate, error)
}
