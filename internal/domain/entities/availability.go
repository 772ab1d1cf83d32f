package entities

import (
	"fmt"
	"sort"
	"time"
)

// TimeRange is a clock-time window within a single day, "HH:MM" 24-hour.
type TimeRange struct {
	Start string `json:"start" db:"start_clock"`
	End   string `json:"end" db:"end_clock"`
}

// Minutes returns the range bounds as minutes from midnight.
func (r TimeRange) Minutes() (start, end int, err error) {
	start, err = parseClock(r.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err = parseClock(r.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Validate checks the range is well formed with start strictly before end.
func (r TimeRange) Validate() error {
	start, end, err := r.Minutes()
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("time range start %q must be before end %q", r.Start, r.End)
	}
	return nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return h*60 + m, nil
}

// DayTemplate is the availability setup for a single weekday.
type DayTemplate struct {
	Enabled bool        `json:"enabled"`
	Ranges  []TimeRange `json:"ranges"`
}

// AvailabilityTemplate is a recurring weekly schedule, one entry per weekday.
// It is set by the professional and read-only to this engine.
type AvailabilityTemplate struct {
	Days [7]DayTemplate `json:"days"` // indexed by time.Weekday (Sunday = 0)
}

// Day returns the template for the given weekday.
func (t *AvailabilityTemplate) Day(wd time.Weekday) DayTemplate {
	return t.Days[int(wd)]
}

// Validate checks every enabled day's ranges are well formed and
// non-overlapping.
func (t *AvailabilityTemplate) Validate() error {
	for wd, day := range t.Days {
		if !day.Enabled {
			continue
		}
		ranges := make([]TimeRange, len(day.Ranges))
		copy(ranges, day.Ranges)
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
		prevEnd := -1
		for _, r := range ranges {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("weekday %s: %w", time.Weekday(wd), err)
			}
			start, end, _ := r.Minutes()
			if start < prevEnd {
				return fmt.Errorf("weekday %s: ranges overlap at %s", time.Weekday(wd), r.Start)
			}
			prevEnd = end
		}
	}
	return nil
}

// BusyInterval is a half-open [Start, End) window during which a subject is
// unavailable. Derived, never stored.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the interval intersects [start, end).
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// Slot is a candidate bookable window of a fixed requested duration.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
