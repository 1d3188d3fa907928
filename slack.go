package invite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client-side cap for webhook posts that are not already bounded by their context.
const webhookClientTimeout = 10 * time.Second

type slackService struct {
	// Slack Incoming Webhook URL.
	// https://hooks.slack.com/services/:workspaceID/:botID/:webhookID
	// Posts to the sales team's bookings channel.
	webhookURL string
	client     *http.Client
}

func NewSlackService(webhookURL string) *slackService {
	return &slackService{webhookURL: webhookURL, client: &http.Client{Timeout: webhookClientTimeout}}
}

func (sl *slackService) name() string {
	return "slack service"
}

// Notify posts a one-line summary of a booked demo.
func (sl *slackService) notify(ctx context.Context, req MeetingRequest, summary Summary) error {
	text := fmt.Sprintf(
		"%s from %s (%s, %s employees) booked a demo for %s\n%s",
		req.FullName(),
		req.Company,
		req.Industry,
		req.EmployeeCount,
		summary.FormattedTime,
		summary.JoinLink,
	)
	return sl.sendWebhook(ctx, message{Text: text})
}

type message struct {
	Text string `json:"text"`
}

// SendWebhook POSTs a message to the Slack incoming webhook.
func (sl *slackService) sendWebhook(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshall: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sl.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := sl.client.Do(req)
	if err != nil {
		return fmt.Errorf("post request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return handleHTTPError(resp)
	}

	return nil
}
