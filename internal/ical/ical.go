// Package ical renders confirmed appointments as iCalendar attachments so
// clients can add them to any calendar app.
package ical

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/internal/specialists"
)

// ErrNoAppointment means the plan has no confirmed appointment window to
// render.
var ErrNoAppointment = errors.New("ical: plan has no appointment times")

const dateTimeLayout = "20060102T150405Z"

// Render produces an RFC 5545 VCALENDAR with a single VEVENT for the plan's
// appointment, including a 24-hour reminder alarm. Times are emitted in UTC.
func Render(plan *plans.Plan, sp *specialists.Specialist) (string, error) {
	if plan == nil || !plan.HasAppointment() {
		return "", ErrNoAppointment
	}

	summary := "Trip planning session"
	if sp != nil && sp.Name != "" {
		summary = "Trip planning session with " + sp.Name
	}

	var description strings.Builder
	description.WriteString("Wayfarer trip planning appointment.")
	if plan.TravelNotes != "" {
		description.WriteString("\nNotes: " + plan.TravelNotes)
	}
	if plan.MeetingLink != "" {
		description.WriteString("\nJoin: " + plan.MeetingLink)
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Wayfarer//Tripbook//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:plan-" + plan.ID.String() + "@wayfarerhq.com",
		"DTSTAMP:" + time.Now().UTC().Format(dateTimeLayout),
		"DTSTART:" + plan.AppointmentStart.UTC().Format(dateTimeLayout),
		"DTEND:" + plan.AppointmentEnd.UTC().Format(dateTimeLayout),
		"SUMMARY:" + escapeText(summary),
		"DESCRIPTION:" + escapeText(description.String()),
	}
	if plan.MeetingLink != "" {
		lines = append(lines, "LOCATION:"+escapeText(plan.MeetingLink))
	}
	lines = append(lines,
		"STATUS:CONFIRMED",
		"BEGIN:VALARM",
		"TRIGGER:-P1D",
		"ACTION:DISPLAY",
		"DESCRIPTION:"+escapeText(summary),
		"END:VALARM",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	var out strings.Builder
	for _, line := range lines {
		out.WriteString(foldLine(line))
		out.WriteString("\r\n")
	}
	return out.String(), nil
}

// Filename returns a stable attachment name for the plan's calendar file.
func Filename(plan *plans.Plan) string {
	return fmt.Sprintf("wayfarer-appointment-%s.ics", plan.ID.String())
}

// escapeText applies RFC 5545 TEXT escaping: backslash, semicolon, comma,
// and newline.
func escapeText(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
	)
	return r.Replace(s)
}

// foldLine wraps content lines longer than 75 octets with a CRLF plus space
// continuation, per RFC 5545 section 3.1. The split point backs off to the
// previous rune boundary so a multi-octet UTF-8 character is never cut.
func foldLine(line string) string {
	const limit = 75
	if len(line) <= limit {
		return line
	}
	var out strings.Builder
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		out.WriteString(line[:cut])
		out.WriteString("\r\n ")
		line = line[cut:]
	}
	out.WriteString(line)
	return out.String()
}
