// Package gcal is the narrow contract to the specialist's external calendar:
// list busy intervals, create an event, delete an event. The rest of the
// system never talks to Google directly.
package gcal

import (
	"context"
	"time"
)

// Account identifies a specialist's connected calendar.
type Account struct {
	CalendarID   string
	RefreshToken string
}

// Interval is a busy [Start, End) period on the external calendar.
type Interval struct {
	Start time.Time
	End   time.Time
}

// EventRequest describes the appointment event to create.
type EventRequest struct {
	Start           time.Time
	DurationMinutes int
	AttendeeName    string
	AttendeeEmail   string
	AttendeePhone   string
	Notes           string
	OrganizerName   string
	OrganizerEmail  string
	OrganizerPhone  string
}

// CreatedEvent is the outcome of a successful event creation.
type CreatedEvent struct {
	ID          string
	MeetingLink string
}

// Gateway is the external calendar contract consumed by availability and
// booking. Implementations must be safe for concurrent use.
type Gateway interface {
	ListBusy(ctx context.Context, account Account, from, to time.Time) ([]Interval, error)
	CreateEvent(ctx context.Context, account Account, req EventRequest) (*CreatedEvent, error)
	DeleteEvent(ctx context.Context, account Account, eventID string) error
}
