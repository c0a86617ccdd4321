package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wayfarerhq/tripbook/pkg/logging"
)

var tracer = otel.Tracer("tripbook.internal.gcal")

// GoogleClient implements Gateway against the Google Calendar API, minting a
// per-specialist token source from the stored OAuth refresh token.
type GoogleClient struct {
	oauthCfg   *oauth2.Config
	logger     *logging.Logger
	extraOpts  []option.ClientOption
	httpClient *http.Client
}

// NewGoogleClient creates a calendar client from application OAuth credentials.
func NewGoogleClient(clientID, clientSecret string, logger *logging.Logger) *GoogleClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleClient{
		oauthCfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarScope},
		},
		logger: logger,
	}
}

// WithEndpoint overrides the Calendar API endpoint and disables
// authentication (for testing against a local fake).
func (c *GoogleClient) WithEndpoint(baseURL string) *GoogleClient {
	if baseURL != "" {
		c.extraOpts = []option.ClientOption{
			option.WithEndpoint(strings.TrimRight(baseURL, "/") + "/"),
			option.WithoutAuthentication(),
		}
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

func (c *GoogleClient) serviceFor(ctx context.Context, account Account) (*calendar.Service, error) {
	if account.CalendarID == "" {
		return nil, errors.New("gcal: account has no calendar id")
	}
	opts := make([]option.ClientOption, 0, len(c.extraOpts)+1)
	if len(c.extraOpts) > 0 {
		opts = append(opts, c.extraOpts...)
		if c.httpClient != nil {
			opts = append(opts, option.WithHTTPClient(c.httpClient))
		}
	} else {
		if account.RefreshToken == "" {
			return nil, errors.New("gcal: account has no refresh token")
		}
		ts := c.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: account.RefreshToken})
		opts = append(opts, option.WithTokenSource(ts))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: build service: %w", err)
	}
	return svc, nil
}

// ListBusy queries freebusy for the account's calendar over [from, to).
func (c *GoogleClient) ListBusy(ctx context.Context, account Account, from, to time.Time) ([]Interval, error) {
	ctx, span := tracer.Start(ctx, "gcal.list_busy")
	defer span.End()
	span.SetAttributes(attribute.String("tripbook.calendar_id", account.CalendarID))

	svc, err := c.serviceFor(ctx, account)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: account.CalendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gcal: freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[account.CalendarID]
	if !ok {
		return nil, nil
	}
	intervals := make([]Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			c.logger.Warn("gcal: skipping busy period with bad start", "value", period.Start)
			continue
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			c.logger.Warn("gcal: skipping busy period with bad end", "value", period.End)
			continue
		}
		intervals = append(intervals, Interval{Start: start, End: end})
	}
	return intervals, nil
}

// CreateEvent inserts the appointment event with a Meet conference attached.
func (c *GoogleClient) CreateEvent(ctx context.Context, account Account, req EventRequest) (*CreatedEvent, error) {
	ctx, span := tracer.Start(ctx, "gcal.create_event")
	defer span.End()
	span.SetAttributes(attribute.String("tripbook.calendar_id", account.CalendarID))

	svc, err := c.serviceFor(ctx, account)
	if err != nil {
		return nil, err
	}

	end := req.Start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	event := &calendar.Event{
		Summary:     fmt.Sprintf("Trip consultation with %s", req.AttendeeName),
		Description: req.Notes,
		Start:       &calendar.EventDateTime{DateTime: req.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
		Attendees: []*calendar.EventAttendee{
			{DisplayName: req.AttendeeName, Email: req.AttendeeEmail},
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		},
	}

	created, err := svc.Events.Insert(account.CalendarID, event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gcal: insert event: %w", err)
	}

	return &CreatedEvent{
		ID:          created.Id,
		MeetingLink: created.HangoutLink,
	}, nil
}

// DeleteEvent removes an event. A calendar that no longer has the event
// (404/410) counts as success; the calendar is not the source of truth.
func (c *GoogleClient) DeleteEvent(ctx context.Context, account Account, eventID string) error {
	ctx, span := tracer.Start(ctx, "gcal.delete_event")
	defer span.End()

	svc, err := c.serviceFor(ctx, account)
	if err != nil {
		return err
	}

	err = svc.Events.Delete(account.CalendarID, eventID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
			c.logger.Info("gcal: event already gone", "event_id", eventID)
			return nil
		}
		return fmt.Errorf("gcal: delete event: %w", err)
	}
	return nil
}

var _ Gateway = (*GoogleClient)(nil)
