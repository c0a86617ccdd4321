// Package specialists holds the travel-specialist aggregate: profile,
// timezone, recurring working hours, and the connected Google Calendar
// account used for availability and event creation.
package specialists

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Window is a single working-hours window in the specialist's local time,
// expressed as "HH:MM" 24-hour clock values.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeekSchedule maps lowercase weekday names ("monday".."sunday") to the
// working-hours windows for that day. Days without entries are off days.
type WeekSchedule map[string][]Window

// TimeRange is a concrete [Start, End) interval on a specific date.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Specialist is a bookable travel specialist.
type Specialist struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Timezone  string
	Schedule  WeekSchedule
	Active    bool
	CreatedAt time.Time

	// Google Calendar account, set once the specialist connects their calendar.
	CalendarID           string
	CalendarRefreshToken string
}

// CalendarConnected reports whether the specialist has linked a calendar
// account. Appointment confirmation requires a connected calendar.
func (s *Specialist) CalendarConnected() bool {
	return s.CalendarID != "" && s.CalendarRefreshToken != ""
}

// Location resolves the specialist's IANA timezone.
func (s *Specialist) Location() (*time.Location, error) {
	if strings.TrimSpace(s.Timezone) == "" {
		return nil, fmt.Errorf("specialists: %s has no timezone", s.ID)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("specialists: load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// WindowsOn resolves the schedule's windows for the given date into concrete
// time ranges in the supplied location. Malformed windows are skipped.
func (s *Specialist) WindowsOn(date time.Time, loc *time.Location) []TimeRange {
	day := strings.ToLower(date.In(loc).Weekday().String())
	windows := s.Schedule[day]
	if len(windows) == 0 {
		return nil
	}

	year, month, dayOfMonth := date.In(loc).Date()
	ranges := make([]TimeRange, 0, len(windows))
	for _, w := range windows {
		startH, startM, err := parseClock(w.Start)
		if err != nil {
			continue
		}
		endH, endM, err := parseClock(w.End)
		if err != nil {
			continue
		}
		start := time.Date(year, month, dayOfMonth, startH, startM, 0, 0, loc)
		end := time.Date(year, month, dayOfMonth, endH, endM, 0, 0, loc)
		if !start.Before(end) {
			continue
		}
		ranges = append(ranges, TimeRange{Start: start, End: end})
	}
	return ranges
}

// parseClock parses an "HH:MM" 24-hour clock value.
func parseClock(v string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("specialists: malformed clock value %q", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("specialists: malformed hour in %q", v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("specialists: malformed minute in %q", v)
	}
	return hour, minute, nil
}
