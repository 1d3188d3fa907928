package invite

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type (
	// Authorizer hands out an HTTP client authorized against the calendar provider.
	authorizer interface {
		Client(ctx context.Context) (*http.Client, error)
	}

	eventScheduler interface {
		createEvent(ctx context.Context, client *http.Client, req MeetingRequest, slot Slot) (CalendarEvent, error)
		cancelEvent(ctx context.Context, client *http.Client, eventID string) error
	}

	mailer interface {
		Send(ctx context.Context, to, subject, html string) error
		name() string
	}

	// BookingNotifier is told about every successfully scheduled demo. Failures are logged, never returned.
	bookingNotifier interface {
		notify(ctx context.Context, req MeetingRequest, summary Summary) error
		name() string
	}

	scheduler interface {
		schedule(ctx context.Context, req MeetingRequest) (Summary, error)
	}

	// Summary is the result of one successful scheduling run.
	Summary struct {
		JoinLink      string    `json:"meetLink"`
		EventID       string    `json:"eventId"`
		EmailBody     string    `json:"emailPreview"`
		FormattedTime string    `json:"meetingTime"`
		Start         time.Time `json:"startDateTime"`
	}

	inviteService struct {
		credentials authorizer
		calendar    eventScheduler
		composer    *emailComposer
		mailer      mailer
		notifiers   []bookingNotifier
		product     string
		// Delete the calendar event when the confirmation email cannot be sent.
		cancelOnDispatchFailure bool
		// Upper bound on each booking notice.
		notifyTimeout time.Duration
		logger        *slog.Logger
	}

	inviteServiceOptions struct {
		credentials             authorizer
		calendar                eventScheduler
		mailer                  mailer
		notifiers               []bookingNotifier
		product                 string
		cancelOnDispatchFailure bool
		notifyTimeout           time.Duration
		logger                  *slog.Logger
	}

	InviteServiceOptions struct {
		Credentials *CalendarCredentials
		// Calendar the demo events are created on. Default: "primary"
		CalendarID string
		Mailer     *MailgunService
		// Optional. Posts a notice for every booked demo.
		SlackWebhookURL string
		// Optional. Forwards every booked demo to a downstream service.
		BookingWebhook *BookingWebhook
		// Product name used in event titles, subjects and the email body.
		Product string
		// When true, a failed confirmation email cancels the already-created event.
		CancelOnDispatchFailure bool
		Logger                  *slog.Logger
	}
)

const (
	defaultProduct = "XShift"
	// Booking notices run after the email is sent, so a slow receiver must not hold the request.
	defaultNotifyTimeout = 5 * time.Second
)

func NewInviteService(o InviteServiceOptions) *inviteService {
	product := o.Product
	if len(product) == 0 {
		product = defaultProduct
	}

	var notifiers []bookingNotifier
	if len(o.SlackWebhookURL) > 0 {
		notifiers = append(notifiers, NewSlackService(o.SlackWebhookURL))
	}
	if o.BookingWebhook != nil {
		notifiers = append(notifiers, o.BookingWebhook)
	}

	return newInviteService(inviteServiceOptions{
		credentials: o.Credentials,
		calendar: newCalendarService(calendarServiceOptions{
			calendarID:  o.CalendarID,
			productName: product,
		}),
		mailer:                  o.Mailer,
		notifiers:               notifiers,
		product:                 product,
		cancelOnDispatchFailure: o.CancelOnDispatchFailure,
		logger:                  o.Logger,
	})
}

func newInviteService(o inviteServiceOptions) *inviteService {
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	product := o.product
	if len(product) == 0 {
		product = defaultProduct
	}
	notifyTimeout := o.notifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	return &inviteService{
		credentials:             o.credentials,
		calendar:                o.calendar,
		composer:                newEmailComposer(product),
		mailer:                  o.mailer,
		notifiers:               o.notifiers,
		product:                 product,
		cancelOnDispatchFailure: o.cancelOnDispatchFailure,
		notifyTimeout:           notifyTimeout,
		logger:                  logger,
	}
}

// Schedule creates the calendar event, composes the confirmation and emails it to the lead.
// The steps run in order and stop at the first failure. Nothing is rolled back by default:
// a failure after the event exists is returned as a *PartialFailureError so callers know the
// lead may already have the provider's calendar invite.
func (s *inviteService) schedule(ctx context.Context, req MeetingRequest) (Summary, error) {
	if err := req.Validate(); err != nil {
		return Summary{}, err
	}

	slot, err := ResolveSlot(req.MeetingDate, req.MeetingTime, req.Meridiem, req.Timezone)
	if err != nil {
		return Summary{}, err
	}
	formattedTime := slot.Display()

	client, err := s.credentials.Client(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("calendar client: %w", err)
	}

	ev, err := s.calendar.createEvent(ctx, client, req, slot)
	if err != nil {
		if len(ev.ID) > 0 {
			return Summary{}, s.partialFailure(ctx, client, ev.ID, err)
		}
		return Summary{}, fmt.Errorf("createEvent: %w", err)
	}
	s.logger.InfoContext(ctx, "calendar event created",
		slog.String("eventId", ev.ID),
		slog.String("company", req.Company),
		slog.String("meetingTime", formattedTime),
	)

	body, err := s.composer.compose(req, ev.JoinLink, formattedTime)
	if err != nil {
		return Summary{}, s.partialFailure(ctx, client, ev.ID, fmt.Errorf("compose: %w", err))
	}

	subject := subjectLine(req.Company, s.product, formattedTime)
	if err := s.mailer.Send(ctx, req.RecipientEmail, subject, body); err != nil {
		return Summary{}, s.partialFailure(ctx, client, ev.ID, fmt.Errorf("%s: %w", s.mailer.name(), err))
	}
	s.logger.InfoContext(ctx, "confirmation email sent",
		slog.String("eventId", ev.ID),
		slog.String("to", req.RecipientEmail),
	)

	summary := Summary{
		JoinLink:      ev.JoinLink,
		EventID:       ev.ID,
		EmailBody:     body,
		FormattedTime: formattedTime,
		Start:         slot.Start,
	}
	s.notifyBooking(ctx, req, summary)
	return summary, nil
}

// PartialFailure wraps a failure that happened after the event was created. When configured,
// it first tries to cancel the event so the lead is not left with an invite but no confirmation.
func (s *inviteService) partialFailure(ctx context.Context, client *http.Client, eventID string, cause error) error {
	pErr := &PartialFailureError{EventID: eventID, Err: cause}
	if !s.cancelOnDispatchFailure {
		s.logger.WarnContext(ctx, "calendar event left in place after failure",
			slog.String("eventId", eventID),
			slog.String("error", cause.Error()),
		)
		return pErr
	}

	// The caller's context may already be done; cancellation still gets its own deadline.
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.calendar.cancelEvent(cancelCtx, client, eventID); err != nil {
		s.logger.ErrorContext(ctx, "could not cancel calendar event",
			slog.String("eventId", eventID),
			slog.String("error", err.Error()),
		)
		return pErr
	}
	pErr.Cancelled = true
	s.logger.InfoContext(ctx, "calendar event cancelled", slog.String("eventId", eventID))
	return pErr
}

// NotifyBooking gives each notifier its own deadline, detached from the request so a
// client disconnect after the email went out does not drop the notices.
func (s *inviteService) notifyBooking(ctx context.Context, req MeetingRequest, summary Summary) {
	for _, n := range s.notifiers {
		nCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		err := n.notify(nCtx, req, summary)
		cancel()
		if err != nil {
			s.logger.WarnContext(ctx, "booking notification failed",
				slog.String("service", n.name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
