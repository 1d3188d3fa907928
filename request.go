// Package invite schedules sales-demo meetings: it turns a lead's details and a
// requested slot into a calendar event with a video-conference link, and emails
// the lead a personalized confirmation.
package invite

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MeetingRequest is the scheduling form submitted by a sales rep for one lead.
type MeetingRequest struct {
	RecipientEmail string        `json:"recipientEmail" schema:"recipientEmail"`
	FirstName      string        `json:"firstName" schema:"firstName"`
	LastName       string        `json:"lastName" schema:"lastName"`
	Company        string        `json:"company" schema:"company"`
	Industry       string        `json:"industry" schema:"industry"`
	EmployeeCount  EmployeeCount `json:"employeeCount" schema:"employeeCount"`
	PainPoints     string        `json:"painPoints" schema:"painPoints"`
	// Calendar date, YYYY-MM-DD.
	MeetingDate string `json:"meetingDate" schema:"meetingDate"`
	// 12-hour clock time, "H:MM".
	MeetingTime string `json:"meetingTime" schema:"meetingTime"`
	// "AM" or "PM".
	Meridiem string `json:"ampm" schema:"ampm"`
	// IANA timezone name, ex: "America/New_York".
	Timezone string `json:"timezone" schema:"timezone"`
}

// EmployeeCount accepts either a JSON string ("50-100") or a JSON number (75).
type EmployeeCount string

func (e *EmployeeCount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = EmployeeCount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("employeeCount must be a string or number: %w", err)
	}
	*e = EmployeeCount(n.String())
	return nil
}

// Validate checks that every field is present. Whitespace-only values count as missing.
func (m MeetingRequest) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"firstName", m.FirstName},
		{"lastName", m.LastName},
		{"recipientEmail", m.RecipientEmail},
		{"company", m.Company},
		{"industry", m.Industry},
		{"employeeCount", string(m.EmployeeCount)},
		{"painPoints", m.PainPoints},
		{"meetingDate", m.MeetingDate},
		{"meetingTime", m.MeetingTime},
		{"ampm", m.Meridiem},
		{"timezone", m.Timezone},
	}

	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// FullName joins the recipient's first and last name.
func (m MeetingRequest) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// String is a log-safe summary. It leaves out the free-text pain points.
func (m MeetingRequest) String() string {
	return strings.Join([]string{
		fmt.Sprintf("%s <%s> from %s", m.FullName(), m.RecipientEmail, m.Company),
		fmt.Sprintf("industry: %s, employees: %s", m.Industry, strconv.Quote(string(m.EmployeeCount))),
		fmt.Sprintf("slot: %s %s %s (%s)", m.MeetingDate, m.MeetingTime, m.Meridiem, m.Timezone),
	}, "\n")
}
