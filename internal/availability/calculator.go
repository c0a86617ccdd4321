// Package availability computes a specialist's bookable time slots by
// intersecting recurring working hours with the external calendar's busy
// periods for a target date.
package availability

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wayfarerhq/tripbook/internal/gcal"
	"github.com/wayfarerhq/tripbook/internal/specialists"
	"github.com/wayfarerhq/tripbook/pkg/logging"
)

var tracer = otel.Tracer("tripbook.internal.availability")

// Source records how a slot set was produced. Callers must not conflate a
// calendar-confirmed result with the hours-only fallback.
type Source string

const (
	// SourceCalendar means slots were filtered against calendar busy periods.
	SourceCalendar Source = "calendar"
	// SourceHoursOnly means the calendar was unreachable and slots reflect
	// working hours alone, with no conflict detection.
	SourceHoursOnly Source = "hours_only"
)

// Slot is a bookable [Start, End) interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ErrNoSchedule is returned when the specialist has no working hours at all.
var ErrNoSchedule = errors.New("availability: specialist has no working hours")

// BusyLister is the slice of the calendar gateway availability needs.
type BusyLister interface {
	ListBusy(ctx context.Context, account gcal.Account, from, to time.Time) ([]gcal.Interval, error)
}

// Calculator produces bookable slots for a specialist and date.
type Calculator struct {
	calendar    BusyLister
	cache       *BusyCache
	minLeadDays int
	now         func() time.Time
	logger      *logging.Logger
}

// NewCalculator creates a calculator. minLeadDays is the number of full days
// that must separate "now" from the target date (a product rule, not a
// technical limit).
func NewCalculator(calendar BusyLister, minLeadDays int, logger *logging.Logger) *Calculator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Calculator{
		calendar:    calendar,
		minLeadDays: minLeadDays,
		now:         time.Now,
		logger:      logger,
	}
}

// WithCache attaches a busy-interval cache.
func (c *Calculator) WithCache(cache *BusyCache) *Calculator {
	c.cache = cache
	return c
}

// WithNow overrides the clock (for testing).
func (c *Calculator) WithNow(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Slots returns hour-aligned bookable slots of the given duration on the
// target date, chronological and grouped by working-hours window. A target
// date inside the lead-time window yields an empty result, not an error.
func (c *Calculator) Slots(ctx context.Context, sp *specialists.Specialist, durationMinutes int, targetDate time.Time) ([]Slot, Source, error) {
	ctx, span := tracer.Start(ctx, "availability.slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("tripbook.specialist_id", sp.ID.String()),
		attribute.Int("tripbook.duration_minutes", durationMinutes),
	)

	loc, err := sp.Location()
	if err != nil {
		return nil, SourceCalendar, err
	}
	if len(sp.Schedule) == 0 {
		return nil, SourceCalendar, ErrNoSchedule
	}

	today := startOfDay(c.now().In(loc))
	target := startOfDay(targetDate.In(loc))
	earliest := today.AddDate(0, 0, c.minLeadDays+1)
	if target.Before(earliest) {
		return []Slot{}, SourceCalendar, nil
	}

	windows := sp.WindowsOn(target, loc)
	if len(windows) == 0 {
		return []Slot{}, SourceCalendar, nil
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })

	busy, source := c.busyIntervals(ctx, sp, target)
	span.SetAttributes(attribute.String("tripbook.availability_source", string(source)))

	duration := time.Duration(durationMinutes) * time.Minute
	var slots []Slot
	for _, window := range windows {
		for start := alignToHour(window.Start); !start.Add(duration).After(window.End); start = start.Add(time.Hour) {
			slot := Slot{Start: start, End: start.Add(duration)}
			if source == SourceCalendar && overlapsAny(slot, busy) {
				continue
			}
			slots = append(slots, slot)
		}
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, source, nil
}

// busyIntervals fetches the specialist's busy periods for the target date,
// consulting the cache first. Any gateway failure degrades to the explicit
// hours-only fallback.
func (c *Calculator) busyIntervals(ctx context.Context, sp *specialists.Specialist, dayStart time.Time) ([]gcal.Interval, Source) {
	if c.calendar == nil || !sp.CalendarConnected() {
		return nil, SourceHoursOnly
	}

	dayEnd := dayStart.AddDate(0, 0, 1)
	if c.cache != nil {
		if intervals, ok := c.cache.Get(ctx, sp.ID.String(), dayStart); ok {
			return intervals, SourceCalendar
		}
	}

	account := gcal.Account{CalendarID: sp.CalendarID, RefreshToken: sp.CalendarRefreshToken}
	intervals, err := c.calendar.ListBusy(ctx, account, dayStart, dayEnd)
	if err != nil {
		c.logger.Warn("availability: calendar unreachable, falling back to working hours only",
			"error", err, "specialist_id", sp.ID.String())
		return nil, SourceHoursOnly
	}
	if c.cache != nil {
		c.cache.Set(ctx, sp.ID.String(), dayStart, intervals)
	}
	return intervals, SourceCalendar
}

// overlapsAny reports a half-open overlap: touching at a boundary is not an
// overlap, so a slot ending exactly when a busy period starts is valid.
func overlapsAny(slot Slot, busy []gcal.Interval) bool {
	for _, b := range busy {
		if slot.Start.Before(b.End) && slot.End.After(b.Start) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// alignToHour rounds up to the next local hour boundary; an exact hour stays
// put. Local construction keeps alignment correct in zones with fractional
// UTC offsets.
func alignToHour(t time.Time) time.Time {
	year, month, day := t.Date()
	aligned := time.Date(year, month, day, t.Hour(), 0, 0, 0, t.Location())
	if aligned.Before(t) {
		aligned = aligned.Add(time.Hour)
	}
	return aligned
}
