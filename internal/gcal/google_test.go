package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testAccount() Account {
	return Account{CalendarID: "dana@example.com", RefreshToken: "refresh"}
}

func TestListBusyParsesPeriods(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "freeBusy") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"calendars": map[string]any{
				"dana@example.com": map[string]any{
					"busy": []map[string]string{
						{"start": "2026-03-09T15:00:00Z", "end": "2026-03-09T16:00:00Z"},
						{"start": "bad", "end": "2026-03-09T18:00:00Z"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewGoogleClient("id", "secret", nil).WithEndpoint(srv.URL)
	from := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	intervals, err := client.ListBusy(context.Background(), testAccount(), from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The malformed period is skipped, not fatal.
	if len(intervals) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(intervals))
	}
	want := time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)
	if !intervals[0].Start.Equal(want) {
		t.Errorf("interval start %v", intervals[0].Start)
	}
}

func TestListBusyMissingCalendarIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"calendars": map[string]any{}})
	}))
	defer srv.Close()

	client := NewGoogleClient("id", "secret", nil).WithEndpoint(srv.URL)
	from := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	intervals, err := client.ListBusy(context.Background(), testAccount(), from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(intervals) != 0 {
		t.Fatalf("expected no intervals, got %d", len(intervals))
	}
}

func TestCreateEventReturnsMeetLink(t *testing.T) {
	var requested map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("conferenceDataVersion") != "1" {
			t.Errorf("conferenceDataVersion missing, query %v", r.URL.Query())
		}
		_ = json.NewDecoder(r.Body).Decode(&requested)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "evt_1",
			"hangoutLink": "https://meet.google.com/abc",
		})
	}))
	defer srv.Close()

	client := NewGoogleClient("id", "secret", nil).WithEndpoint(srv.URL)
	created, err := client.CreateEvent(context.Background(), testAccount(), EventRequest{
		Start:           time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		AttendeeName:    "Ada Okafor",
		AttendeeEmail:   "ada@example.com",
		Notes:           "2 travelers",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "evt_1" || created.MeetingLink != "https://meet.google.com/abc" {
		t.Fatalf("unexpected event: %+v", created)
	}
	if summary, _ := requested["summary"].(string); !strings.Contains(summary, "Ada Okafor") {
		t.Errorf("summary %q", summary)
	}
}

func TestDeleteEventGoneIsSuccess(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(fmt.Sprintf(`{"error": {"code": %d}}`, code)))
		}))

		client := NewGoogleClient("id", "secret", nil).WithEndpoint(srv.URL)
		if err := client.DeleteEvent(context.Background(), testAccount(), "evt_1"); err != nil {
			t.Errorf("status %d must count as success, got %v", code, err)
		}
		srv.Close()
	}
}

func TestDeleteEventOtherErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403}}`))
	}))
	defer srv.Close()

	client := NewGoogleClient("id", "secret", nil).WithEndpoint(srv.URL)
	if err := client.DeleteEvent(context.Background(), testAccount(), "evt_1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestAccountValidation(t *testing.T) {
	client := NewGoogleClient("id", "secret", nil)
	if _, err := client.ListBusy(context.Background(), Account{}, time.Now(), time.Now()); err == nil {
		t.Error("missing calendar id must error")
	}
	if _, err := client.ListBusy(context.Background(), Account{CalendarID: "x"}, time.Now(), time.Now()); err == nil {
		t.Error("missing refresh token must error")
	}
}
