package invite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// CalendarScopes are the OAuth scopes requested for the calendar identity.
var CalendarScopes = []string{
	calendar.CalendarScope,
	calendar.CalendarEventsScope,
}

type (
	// CalendarCredentials owns the OAuth client and token for the single calendar identity
	// that hosts every demo. Tokens are refreshed transparently; a new refresh token is only
	// obtained out-of-band with `invitectl authorize`.
	CalendarCredentials struct {
		source oauth2.TokenSource
	}

	CalendarCredentialsOptions struct {
		ClientID     string
		ClientSecret string
		RedirectURL  string
		AccessToken  string
		RefreshToken string
		// Path to a token written by `invitectl authorize`. Takes precedence over AccessToken/RefreshToken.
		TokenFile string
		// Overrides the OAuth token endpoint for testing.
		tokenURLOverride string
	}

	// CalendarEvent is the part of a created provider event this service keeps.
	CalendarEvent struct {
		ID       string
		JoinLink string
		HTMLLink string
	}

	calendarService struct {
		// Calendar the events are inserted into. Default: "primary"
		calendarID string
		// Overrides the Calendar API base URL for testing. Default: "https://www.googleapis.com/calendar/v3/"
		baseAPIOverride string
		// Product name used in the event title and description.
		productName string
		// Generates the conference create-request idempotency token.
		newRequestID func() string
	}

	calendarServiceOptions struct {
		calendarID      string
		baseAPIOverride string
		productName     string
	}
)

// OAuthConfig builds the Google OAuth2 config for the calendar identity.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       CalendarScopes,
		Endpoint:     google.Endpoint,
	}
}

func NewCalendarCredentials(o CalendarCredentialsOptions) (*CalendarCredentials, error) {
	cfg := OAuthConfig(o.ClientID, o.ClientSecret, o.RedirectURL)
	if len(o.tokenURLOverride) > 0 {
		cfg.Endpoint.TokenURL = o.tokenURLOverride
	}

	tok := &oauth2.Token{
		AccessToken:  o.AccessToken,
		RefreshToken: o.RefreshToken,
		TokenType:    "Bearer",
	}
	// A token from the environment has no known expiry. Refresh it on first use
	// rather than trusting a stale access token forever.
	if tok.RefreshToken != "" {
		tok.Expiry = time.Unix(0, 0)
	}

	if len(o.TokenFile) > 0 {
		fileTok, err := ReadTokenFile(o.TokenFile)
		switch {
		case err == nil:
			tok = fileTok
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("readTokenFile: %w", err)
		}
	}

	creds := &CalendarCredentials{}
	if tok.AccessToken != "" || tok.RefreshToken != "" {
		creds.source = cfg.TokenSource(context.Background(), tok)
	}
	return creds, nil
}

// Client returns an HTTP client authorized for the calendar identity. It fails with
// *CalendarAuthError when no token is configured or the token cannot be refreshed.
func (c *CalendarCredentials) Client(ctx context.Context) (*http.Client, error) {
	if c == nil || c.source == nil {
		return nil, &CalendarAuthError{Err: errors.New("no calendar token configured, run `invitectl authorize`")}
	}
	if _, err := c.source.Token(); err != nil {
		return nil, &CalendarAuthError{Err: err}
	}
	return oauth2.NewClient(ctx, c.source), nil
}

// Token returns the current (possibly refreshed) token.
func (c *CalendarCredentials) Token() (*oauth2.Token, error) {
	if c == nil || c.source == nil {
		return nil, &CalendarAuthError{Err: errors.New("no calendar token configured")}
	}
	tok, err := c.source.Token()
	if err != nil {
		return nil, &CalendarAuthError{Err: err}
	}
	return tok, nil
}

// ReadTokenFile loads an OAuth token saved by WriteTokenFile.
func ReadTokenFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &tok, nil
}

// WriteTokenFile saves an OAuth token as JSON, readable only by the owner.
func WriteTokenFile(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("encode: %w", err)
	}
	return f.Close()
}

func newCalendarService(o calendarServiceOptions) *calendarService {
	calendarID := "primary"
	if len(o.calendarID) > 0 {
		calendarID = o.calendarID
	}
	return &calendarService{
		calendarID:      calendarID,
		baseAPIOverride: o.baseAPIOverride,
		productName:     o.productName,
		newRequestID: func() string {
			return "meet-" + uuid.NewString()
		},
	}
}

func (c *calendarService) api(ctx context.Context, client *http.Client) (*calendar.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if len(c.baseAPIOverride) > 0 {
		opts = append(opts, option.WithEndpoint(c.baseAPIOverride))
	}
	return calendar.NewService(ctx, opts...)
}

// CreateEvent inserts the demo event with a Google Meet conference and asks the
// provider to notify the attendee itself.
func (c *calendarService) createEvent(ctx context.Context, client *http.Client, req MeetingRequest, slot Slot) (CalendarEvent, error) {
	svc, err := c.api(ctx, client)
	if err != nil {
		return CalendarEvent{}, &CalendarAPIError{Detail: err.Error(), Err: err}
	}

	created, err := svc.Events.Insert(c.calendarID, c.buildEvent(req, slot)).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return CalendarEvent{}, classifyCalendarError(err)
	}

	ev := CalendarEvent{
		ID:       created.Id,
		JoinLink: joinLink(created),
		HTMLLink: created.HtmlLink,
	}
	if ev.JoinLink == "" {
		return ev, &CalendarAPIError{Detail: fmt.Sprintf("event %s was created without a conference link", created.Id)}
	}
	return ev, nil
}

// CancelEvent deletes an event this service created and notifies its attendees.
func (c *calendarService) cancelEvent(ctx context.Context, client *http.Client, eventID string) error {
	svc, err := c.api(ctx, client)
	if err != nil {
		return &CalendarAPIError{Detail: err.Error(), Err: err}
	}
	err = svc.Events.Delete(c.calendarID, eventID).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return classifyCalendarError(err)
	}
	return nil
}

func (c *calendarService) buildEvent(req MeetingRequest, slot Slot) *calendar.Event {
	tz := slot.Location.String()
	return &calendar.Event{
		Summary: fmt.Sprintf("%s Demo - %s", c.productName, req.Company),
		Description: fmt.Sprintf(
			"Meeting with %s from %s to discuss %s's AI-powered employee scheduling platform.",
			req.FullName(),
			req.Company,
			c.productName,
		),
		Start: &calendar.EventDateTime{
			DateTime: slot.Start.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: slot.End.Format(time.RFC3339),
			TimeZone: tz,
		},
		Attendees: []*calendar.EventAttendee{
			{Email: req.RecipientEmail},
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: c.newRequestID(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			// UseDefault is omitted from the request body when false unless forced.
			ForceSendFields: []string{"UseDefault"},
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
		},
	}
}

// joinLink picks the Meet link, falling back to the first video entry point.
func joinLink(ev *calendar.Event) string {
	if len(ev.HangoutLink) > 0 {
		return ev.HangoutLink
	}
	if ev.ConferenceData == nil {
		return ""
	}
	for _, ep := range ev.ConferenceData.EntryPoints {
		if ep.EntryPointType == "video" {
			return ep.Uri
		}
	}
	return ""
}

func classifyCalendarError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized {
			return &CalendarAuthError{Err: err}
		}
		return &CalendarAPIError{Detail: apiErr.Error(), Err: err}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &CalendarAuthError{Err: err}
	}
	return &CalendarAPIError{Detail: err.Error(), Err: err}
}
