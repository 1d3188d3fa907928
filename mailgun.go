package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

type MailgunService struct {
	domain        string               // Mail domain name.
	defaultSender string               // Sender identity for every confirmation.
	mgClient      *mailgun.MailgunImpl // Mailgun API Client
}

type MailgunOptions struct {
	Domain string
	APIKey string
	// Overrides the default sender, "<product> <meetings@domain>".
	Sender  string
	Product string
	// Overrides the Mailgun API base URL for testing.
	baseAPIOverride string
}

func NewMailgunService(o MailgunOptions) *MailgunService {
	mgClient := mailgun.NewMailgun(o.Domain, o.APIKey)
	if len(o.baseAPIOverride) > 0 {
		mgClient.SetAPIBase(o.baseAPIOverride)
	}

	sender := fmt.Sprintf("%s <meetings@%s>", o.Product, o.Domain)
	if len(o.Sender) > 0 {
		sender = o.Sender
	}

	return &MailgunService{
		domain:        o.Domain,
		defaultSender: sender,
		mgClient:      mgClient,
	}
}

func (m *MailgunService) name() string {
	return "mailgun service"
}

// Send makes a single attempt to deliver an HTML email. It does not retry.
func (m *MailgunService) Send(ctx context.Context, to, subject, html string) error {
	if m == nil {
		return &DispatchError{Recipient: to, Err: errors.New("mail is not configured, set MAIL_DOMAIN and MAIL_GUN_PRIVATE_API_KEY")}
	}
	// Empty text body; the HTML part carries the content.
	message := m.mgClient.NewMessage(m.defaultSender, subject, "", to)
	message.SetHtml(html)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// Send the message with a 10 second timeout
	_, _, err := m.mgClient.Send(ctxWithTimeout, message)
	if err != nil {
		return &DispatchError{Recipient: to, Err: fmt.Errorf("send: %w", err)}
	}
	return nil
}
