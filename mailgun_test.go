package invite

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

func TestMailgunSend(t *testing.T) {
	t.Run("sends the HTML confirmation with the default sender", func(t *testing.T) {
		to := gofakeit.Email()
		subject := "Meeting Confirmed: Acme + XShift - Monday, March 10, 2025 at 2:30 PM EDT"
		html := `<p>Hi Jane,</p><a href="https://meet.google.com/abc-defg-hij">Join</a>`

		expectedFormFields := map[string]string{
			"to":      to,
			"from":    "XShift <meetings@test.notarealdomain.org>",
			"subject": subject,
			"html":    html,
		}

		var called bool
		mockMailgunAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			assertEqual(t, r.URL.Path, "/v4/test.notarealdomain.org/messages")

			// Check request has the correct fields
			for key, want := range expectedFormFields {
				got := r.FormValue(key)
				if got != want {
					w.WriteHeader(http.StatusExpectationFailed)
					t.Fatalf("expected Mailgun POST /messages form field %q:%q\nGot value: %q\n", key, want, got)
				}
			}

			_, err := w.Write([]byte(`{"id":"<1@test.notarealdomain.org>","message":"Queued. Thank you."}`))
			assertNilError(t, err)
		}))
		defer mockMailgunAPI.Close()

		mgSvc := NewMailgunService(MailgunOptions{
			Domain:          "test.notarealdomain.org",
			APIKey:          "test-key",
			Product:         "XShift",
			baseAPIOverride: mockMailgunAPI.URL + "/v4",
		})

		err := mgSvc.Send(context.Background(), to, subject, html)
		require.NoError(t, err)
		require.True(t, called)
	})

	t.Run("uses the configured sender", func(t *testing.T) {
		mockMailgunAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assertEqual(t, r.FormValue("from"), "Sales <sales@mail.example.com>")
			_, err := w.Write([]byte("{}"))
			assertNilError(t, err)
		}))
		defer mockMailgunAPI.Close()

		mgSvc := NewMailgunService(MailgunOptions{
			Domain:          "mail.example.com",
			APIKey:          "api-key",
			Sender:          "Sales <sales@mail.example.com>",
			baseAPIOverride: mockMailgunAPI.URL + "/v4",
		})

		require.NoError(t, mgSvc.Send(context.Background(), gofakeit.Email(), "subject", "<p>hi</p>"))
	})

	t.Run("a rejected send is a dispatch error", func(t *testing.T) {
		mockMailgunAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			JSONError(w, map[string]string{"message": "Domain not found"}, http.StatusNotFound)
		}))
		defer mockMailgunAPI.Close()

		mgSvc := NewMailgunService(MailgunOptions{
			Domain:          "mail.example.com",
			APIKey:          "api-key",
			baseAPIOverride: mockMailgunAPI.URL + "/v4",
		})

		to := gofakeit.Email()
		err := mgSvc.Send(context.Background(), to, "subject", "<p>hi</p>")
		var dErr *DispatchError
		require.ErrorAs(t, err, &dErr)
		require.Equal(t, to, dErr.Recipient)
	})

	t.Run("an unconfigured mailer is a dispatch error", func(t *testing.T) {
		var mgSvc *MailgunService
		err := mgSvc.Send(context.Background(), "jane@acme.example", "subject", "<p>hi</p>")
		require.True(t, errors.As(err, new(*DispatchError)))
	})
}
