package invite

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xshift/service-meeting-invite/signing"
	"google.golang.org/api/idtoken"
)

// BookingWebhook forwards every booked demo to a downstream service, ex: the CRM sync.
type BookingWebhook struct {
	url    string // Service HTTP endpoint
	secret []byte // HMAC key for the X-Signature-256 header. Unsigned when empty.
	client *http.Client
}

type BookingWebhookOptions struct {
	URL string
	// Attach a Google ID token with URL as the audience, for receivers that only allow authenticated invokers.
	UseIDToken bool
	Secret     string
}

type (
	BookingPayload struct {
		Email         string    `json:"email"`
		FirstName     string    `json:"firstName"`
		LastName      string    `json:"lastName"`
		Company       string    `json:"company"`
		Industry      string    `json:"industry"`
		EmployeeCount string    `json:"employeeCount"`
		EventID       string    `json:"eventId"`
		MeetLink      string    `json:"meetLink"`
		StartDateTime time.Time `json:"startDateTime"`
		Timezone      string    `json:"timezone"`
	}

	bookingEvent struct {
		Type    string         `json:"eventType"`
		Payload BookingPayload `json:"payload"`
	}
)

func NewBookingWebhook(ctx context.Context, o BookingWebhookOptions) (*BookingWebhook, error) {
	client := &http.Client{}
	if o.UseIDToken {
		var err error
		client, err = idtoken.NewClient(ctx, o.URL)
		if err != nil {
			return nil, fmt.Errorf("idtoken.NewClient: %w", err)
		}
	}
	client.Timeout = webhookClientTimeout
	return &BookingWebhook{url: o.URL, secret: []byte(o.Secret), client: client}, nil
}

func (bw *BookingWebhook) name() string {
	return "booking webhook"
}

func (bw *BookingWebhook) notify(ctx context.Context, req MeetingRequest, summary Summary) error {
	event := bookingEvent{
		Type: "DEMO_BOOKED",
		Payload: BookingPayload{
			Email:         req.RecipientEmail,
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			Company:       req.Company,
			Industry:      req.Industry,
			EmployeeCount: string(req.EmployeeCount),
			EventID:       summary.EventID,
			MeetLink:      summary.JoinLink,
			StartDateTime: summary.Start,
			Timezone:      req.Timezone,
		},
	}

	payload, err := json.Marshal(&event)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, bw.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Add("Content-Type", "application/json")
	if len(bw.secret) > 0 {
		sig, err := signing.Sign(payload, bw.secret, crypto.SHA256, signing.EncodingHex)
		if err != nil {
			return fmt.Errorf("signing.Sign: %w", err)
		}
		httpReq.Header.Set(signing.Header, string(sig))
	}
	resp, err := bw.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return handleHTTPError(resp)
	}
	return nil
}
