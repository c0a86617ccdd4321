package ical

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wayfarerhq/tripbook/internal/plans"
	"github.com/wayfarerhq/tripbook/internal/specialists"
)

func renderedPlan() *plans.Plan {
	start := time.Date(2026, 3, 9, 19, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	return &plans.Plan{
		ID:               uuid.MustParse("5f1c3e5a-8f9f-4a6e-9a43-9a1c2b3d4e5f"),
		AppointmentStart: &start,
		AppointmentEnd:   &end,
		MeetingLink:      "https://meet.example/abc",
		TravelNotes:      "Wants beaches; kids, 2 adults",
	}
}

func TestRenderStructure(t *testing.T) {
	sp := &specialists.Specialist{Name: "Dana Reyes"}
	out, err := Render(renderedPlan(), sp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"UID:plan-5f1c3e5a-8f9f-4a6e-9a43-9a1c2b3d4e5f@wayfarerhq.com",
		"DTSTART:20260309T190000Z",
		"DTEND:20260309T200000Z",
		"SUMMARY:Trip planning session with Dana Reyes",
		"TRIGGER:-P1D",
		"END:VEVENT",
		"END:VCALENDAR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	if !strings.HasSuffix(out, "\r\n") {
		t.Error("output must end with CRLF")
	}
	if strings.Contains(strings.ReplaceAll(out, "\r\n", ""), "\n") {
		t.Error("all line endings must be CRLF")
	}
}

func TestRenderEscapesText(t *testing.T) {
	plan := renderedPlan()
	out, err := Render(plan, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Semicolons and commas in the notes must be escaped in DESCRIPTION.
	if !strings.Contains(out, `beaches\;`) {
		t.Error("semicolon not escaped")
	}
	if !strings.Contains(out, `kids\,`) {
		t.Error("comma not escaped")
	}
}

func TestRenderWithoutSpecialist(t *testing.T) {
	out, err := Render(renderedPlan(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "SUMMARY:Trip planning session") {
		t.Error("generic summary expected without a specialist")
	}
}

func TestRenderNoAppointment(t *testing.T) {
	plan := renderedPlan()
	plan.AppointmentEnd = nil
	if _, err := Render(plan, nil); !errors.Is(err, ErrNoAppointment) {
		t.Fatalf("expected ErrNoAppointment, got %v", err)
	}
	if _, err := Render(nil, nil); !errors.Is(err, ErrNoAppointment) {
		t.Fatalf("expected ErrNoAppointment for nil plan, got %v", err)
	}
}

func TestLongLinesFolded(t *testing.T) {
	plan := renderedPlan()
	plan.TravelNotes = strings.Repeat("a very long itinerary note ", 10)
	out, err := Render(plan, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, line := range strings.Split(out, "\r\n") {
		if len(line) > 76 {
			t.Fatalf("unfolded line of %d octets: %q", len(line), line[:40])
		}
	}
}

func TestFoldNeverSplitsMultiByteRunes(t *testing.T) {
	plan := renderedPlan()
	plan.TravelNotes = strings.Repeat("Águas de São Pedro é ótima ", 10)
	out, err := Render(plan, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, line := range strings.Split(out, "\r\n") {
		if len(line) > 76 {
			t.Fatalf("unfolded line of %d octets", len(line))
		}
		if !utf8.ValidString(line) {
			t.Fatalf("fold split a rune: %q", line)
		}
	}
	// Unfolding must reconstruct the original octets.
	unfolded := strings.ReplaceAll(out, "\r\n ", "")
	if !utf8.ValidString(unfolded) {
		t.Fatal("unfolded output is not valid UTF-8")
	}
	if !strings.Contains(unfolded, "São Pedro") {
		t.Fatal("unfolded output lost note content")
	}
}
