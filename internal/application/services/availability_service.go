package services

import (
	"context"
	"sort"
	"time"

	"github.com/proagenda/calendar-engine/internal/domain/entities"
	"github.com/proagenda/calendar-engine/internal/domain/repositories"
	"github.com/proagenda/calendar-engine/internal/infrastructure/observability"
	"github.com/proagenda/calendar-engine/pkg/config"
	apperrors "github.com/proagenda/calendar-engine/pkg/errors"
)

// BlockPolicyOverrideDisabled lets an availability-block event open a window
// even on a template-disabled day. BlockPolicyWidenEnabledOnly restricts
// blocks to adding windows within already-enabled days.
const (
	BlockPolicyOverrideDisabled = "override-disabled"
	BlockPolicyWidenEnabledOnly = "widen-enabled-only"
)

// AvailabilityService turns the merged timeline plus the subject's weekly
// template into a list of bookable slots. Ordinary events narrow
// availability; availability-block events widen it per the configured
// policy.
type AvailabilityService struct {
	templates repositories.TemplateRepository
	metrics   *observability.Metrics
	cfg       config.AvailabilityConfig

	now func() time.Time
}

// NewAvailabilityService creates a new availability calculator.
func NewAvailabilityService(templates repositories.TemplateRepository, metrics *observability.Metrics, cfg config.AvailabilityConfig) *AvailabilityService {
	if cfg.SlotStep <= 0 {
		cfg.SlotStep = 15 * time.Minute
	}
	if cfg.HorizonDays < 1 {
		cfg.HorizonDays = 14
	}
	return &AvailabilityService{
		templates: templates,
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Slots computes the free slots of the requested duration over the
// configured horizon, walking each allowed window at the slot step. A slot
// never overlaps a busy interval and never starts before now plus the lead
// time.
func (s *AvailabilityService) Slots(ctx context.Context, session *CalendarSession, duration time.Duration) ([]entities.Slot, error) {
	ctx, span := observability.StartSpan(ctx, "AvailabilityService.Slots")
	defer span.End()
	started := time.Now()

	if duration <= 0 {
		return nil, apperrors.NewValidationError("slot duration must be positive")
	}

	template, err := s.resolveTemplate(ctx, session)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	timeline := session.Timeline()
	busy := BusyProjection(timeline)
	blocks := blockWindows(timeline)

	now := s.now()
	earliest := now.Add(s.cfg.LeadTime)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var slots []entities.Slot
	for offset := 0; offset < s.cfg.HorizonDays; offset++ {
		day := dayStart.AddDate(0, 0, offset)
		for _, window := range s.dayWindows(template, blocks, day) {
			slots = append(slots, walkWindow(window, duration, s.cfg.SlotStep, earliest, busy)...)
		}
	}

	slots = sortAndDedupeSlots(slots)
	if s.metrics != nil {
		s.metrics.SlotComputeDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	}
	return slots, nil
}

func (s *AvailabilityService) resolveTemplate(ctx context.Context, session *CalendarSession) (*entities.AvailabilityTemplate, error) {
	if template := session.Template(); template != nil {
		return template, nil
	}
	template, err := s.templates.GetTemplate(ctx, session.OwnerID)
	if err != nil {
		return nil, err
	}
	session.SetTemplate(template)
	return template, nil
}

// dayWindows resolves the absolute allowed windows for one calendar day:
// the template's ranges when the weekday is enabled, plus any
// availability-block windows the policy admits.
func (s *AvailabilityService) dayWindows(template *entities.AvailabilityTemplate, blocks []entities.BusyInterval, day time.Time) []entities.BusyInterval {
	dayEnd := day.AddDate(0, 0, 1)
	dayTemplate := template.Day(day.Weekday())

	var windows []entities.BusyInterval
	if dayTemplate.Enabled {
		for _, r := range dayTemplate.Ranges {
			startMin, endMin, err := r.Minutes()
			if err != nil {
				continue
			}
			windows = append(windows, entities.BusyInterval{
				Start: day.Add(time.Duration(startMin) * time.Minute),
				End:   day.Add(time.Duration(endMin) * time.Minute),
			})
		}
	}

	if dayTemplate.Enabled || s.cfg.BlockPolicy == BlockPolicyOverrideDisabled {
		for _, block := range blocks {
			if block.Overlaps(day, dayEnd) {
				windows = append(windows, clampInterval(block, day, dayEnd))
			}
		}
	}
	return windows
}

// walkWindow emits candidate starts from the window start in slot-step
// increments, keeping those that clear the lead time, fit before the window
// end, and miss every busy interval.
func walkWindow(window entities.BusyInterval, duration, step time.Duration, earliest time.Time, busy []entities.BusyInterval) []entities.Slot {
	var slots []entities.Slot
	for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(step) {
		if start.Before(earliest) {
			continue
		}
		end := start.Add(duration)
		if overlapsAny(busy, start, end) {
			continue
		}
		slots = append(slots, entities.Slot{Start: start, End: end})
	}
	return slots
}

// BusyProjection extracts the busy intervals from a merged timeline.
// Availability blocks are not busy time.
func BusyProjection(timeline []entities.CalendarEvent) []entities.BusyInterval {
	var busy []entities.BusyInterval
	for _, event := range timeline {
		if !event.IsBusy() {
			continue
		}
		busy = append(busy, entities.BusyInterval{Start: event.Start, End: event.End})
	}
	return busy
}

func blockWindows(timeline []entities.CalendarEvent) []entities.BusyInterval {
	var blocks []entities.BusyInterval
	for _, event := range timeline {
		if event.Kind != entities.KindAvailabilityBlock {
			continue
		}
		blocks = append(blocks, entities.BusyInterval{Start: event.Start, End: event.End})
	}
	return blocks
}

func overlapsAny(busy []entities.BusyInterval, start, end time.Time) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func clampInterval(in entities.BusyInterval, lo, hi time.Time) entities.BusyInterval {
	if in.Start.Before(lo) {
		in.Start = lo
	}
	if in.End.After(hi) {
		in.End = hi
	}
	return in
}

func sortAndDedupeSlots(slots []entities.Slot) []entities.Slot {
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	deduped := make([]entities.Slot, 0, len(slots))
	for _, slot := range slots {
		if n := len(deduped); n > 0 && slot.Start.Equal(deduped[n-1].Start) && slot.End.Equal(deduped[n-1].End) {
			continue
		}
		deduped = append(deduped, slot)
	}
	return deduped
}
