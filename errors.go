package invite

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type (
	// ValidationError reports MeetingRequest fields that are missing or blank.
	ValidationError struct {
		Fields []string
	}

	// InvalidTimeInputError reports a meeting date, time, meridiem or timezone that cannot be resolved.
	InvalidTimeInputError struct {
		Field  string
		Value  string
		Reason string
	}

	// CalendarAuthError means the calendar credentials are missing, expired or rejected.
	// The operator must re-run `invitectl authorize`; it is never recovered automatically.
	CalendarAuthError struct {
		Err error
	}

	// CalendarAPIError is any other rejection from the calendar provider.
	CalendarAPIError struct {
		Detail string
		Err    error
	}

	// DispatchError is a failed confirmation email send.
	DispatchError struct {
		Recipient string
		Err       error
	}

	// PartialFailureError is returned when a step fails after the calendar event
	// (and the provider's own attendee notification) already exists.
	PartialFailureError struct {
		EventID string
		// Cancelled is true when the event was deleted as compensation.
		Cancelled bool
		Err       error
	}
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("all required fields must be filled, missing: %s", strings.Join(e.Fields, ", "))
}

func (e *InvalidTimeInputError) Error() string {
	return fmt.Sprintf("invalid value for field %q (%q): %s", e.Field, e.Value, e.Reason)
}

func (e *CalendarAuthError) Error() string {
	return fmt.Sprintf("calendar authorization: %v", e.Err)
}

func (e *CalendarAuthError) Unwrap() error { return e.Err }

func (e *CalendarAPIError) Error() string {
	return fmt.Sprintf("calendar api: %s", e.Detail)
}

func (e *CalendarAPIError) Unwrap() error { return e.Err }

func (e *DispatchError) Error() string {
	return fmt.Sprintf("send email to %s: %v", e.Recipient, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func (e *PartialFailureError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("event %s was created then cancelled: %v", e.EventID, e.Err)
	}
	return fmt.Sprintf("event %s was created but the request did not complete: %v", e.EventID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// HandleHTTPError formats an HTTP error response with the originating request line and the response body.
// It returns nil for non-error status codes.
func HandleHTTPError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	return handleHTTPError(resp)
}

func handleHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading error response body: %w", err)
	}

	reqURL := ""
	method := ""
	host := ""
	if resp.Request != nil {
		method = resp.Request.Method
		reqURL = resp.Request.URL.RequestURI()
		host = resp.Request.URL.Scheme + "://" + resp.Request.URL.Host
	}

	return fmt.Errorf("HTTP Error:\n%s: %s\n%s\n\nResponse:\n%s\n%s\n",
		method,
		host,
		reqURL,
		resp.Status,
		string(bytes.TrimSpace(body)),
	)
}
