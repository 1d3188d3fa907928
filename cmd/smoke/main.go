package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
	invite "github.com/xshift/service-meeting-invite"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

type (
	smoke struct {
		// Deployed service base URL, ex: "https://meeting-invite-abc123-uc.a.run.app".
		baseURL string
		// Admin password and enrolled MFA secret of the deployment under test.
		password  string
		mfaSecret string
		// Inbox that receives the test confirmation.
		toEmail string
		// Timezone the test meeting is booked in.
		timezone string
		// Optional service account JSON for deployments that require an ID token.
		saCredsJSON string

		client *http.Client
		idTok  oauth2.TokenSource
	}

	sendInviteResponse struct {
		Success     bool   `json:"success"`
		MeetLink    string `json:"meetLink"`
		MeetingTime string `json:"meetingTime"`
	}
)

func main() {}

func newSmokeTest() *smoke {
	jar, _ := cookiejar.New(nil)
	tz := os.Getenv("TEST_TIMEZONE")
	if len(tz) == 0 {
		tz = "America/New_York"
	}
	return &smoke{
		baseURL:     os.Getenv("SMOKE_BASE_URL"),
		password:    os.Getenv("SMOKE_ADMIN_PASSWORD"),
		mfaSecret:   os.Getenv("SMOKE_MFA_SECRET"),
		toEmail:     os.Getenv("TEST_TO_EMAIL"),
		timezone:    tz,
		saCredsJSON: os.Getenv("GCP_SA_CREDS_JSON"),
		client:      &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}
}

func (s *smoke) checkHealth() error {
	resp, err := s.do(http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("GET /healthz: %w", err)
	}
	defer resp.Body.Close()
	return invite.HandleHTTPError(resp)
}

// Login signs in with the password and a fresh one-time code. The session cookie stays in the jar.
func (s *smoke) login() error {
	code, err := totp.GenerateCode(s.mfaSecret, time.Now())
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	resp, err := s.do(http.MethodPost, "/login", map[string]string{
		"password": s.password,
		"mfaCode":  code,
	})
	if err != nil {
		return fmt.Errorf("POST /login: %w", err)
	}
	defer resp.Body.Close()
	return invite.HandleHTTPError(resp)
}

// SendInvite books a test demo two days out and returns the service's summary.
func (s *smoke) sendInvite() (sendInviteResponse, error) {
	loc, err := time.LoadLocation(s.timezone)
	if err != nil {
		return sendInviteResponse{}, err
	}
	day := time.Now().In(loc).AddDate(0, 0, 2)

	req := invite.MeetingRequest{
		RecipientEmail: s.toEmail,
		FirstName:      "Halle",
		LastName:       "Bot",
		Company:        "Smoke Test Co",
		Industry:       "Automated testing",
		EmployeeCount:  "1",
		PainPoints:     "Making sure the meeting invite service still books demos end to end",
		MeetingDate:    day.Format("2006-01-02"),
		MeetingTime:    "10:00",
		Meridiem:       "AM",
		Timezone:       s.timezone,
	}
	resp, err := s.do(http.MethodPost, "/send-invite", req)
	if err != nil {
		return sendInviteResponse{}, fmt.Errorf("POST /send-invite: %w", err)
	}
	defer resp.Body.Close()
	if err := invite.HandleHTTPError(resp); err != nil {
		return sendInviteResponse{}, err
	}

	var out sendInviteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return sendInviteResponse{}, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

func (s *smoke) do(method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, s.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := s.authorize(req); err != nil {
		return nil, fmt.Errorf("auth'd req: %w", err)
	}
	return s.client.Do(req)
}

// Authorize adds a Google ID token for deployments that only allow authenticated invokers.
func (s *smoke) authorize(req *http.Request) error {
	if len(s.saCredsJSON) == 0 {
		return nil
	}
	if s.idTok == nil {
		ts, err := idtoken.NewTokenSource(context.Background(), s.baseURL, idtoken.WithCredentialsJSON([]byte(s.saCredsJSON)))
		if err != nil {
			return fmt.Errorf("newTokenSource: %w", err)
		}
		s.idTok = ts
	}
	token, err := s.idTok.Token()
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}
