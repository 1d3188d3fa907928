package invite

import (
	"html"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	req := MeetingRequest{
		FirstName:  "Jane",
		LastName:   "Doe",
		Company:    "Acme",
		PainPoints: "Shift swaps happen over text messages and nobody knows who is working",
	}
	joinLink := "https://meet.google.com/abc-defg-hij"
	when := "Monday, March 10, 2025 at 2:30 PM EDT"

	t.Run("renders the join link, time and greeting", func(t *testing.T) {
		body, err := newEmailComposer("XShift").compose(req, joinLink, when)
		require.NoError(t, err)

		require.Contains(t, body, `href="https://meet.google.com/abc-defg-hij"`)
		require.Contains(t, body, "Hi Jane,")
		require.Contains(t, body, when)
		require.Contains(t, body, "Acme is currently dealing with")
		require.Contains(t, body, `"Shift swaps happen over text messages and nobody knows who is working..."`)
		require.Contains(t, body, "The XShift Team")
	})

	t.Run("is deterministic", func(t *testing.T) {
		c := newEmailComposer("XShift")
		a, err := c.compose(req, joinLink, when)
		require.NoError(t, err)
		b, err := c.compose(req, joinLink, when)
		require.NoError(t, err)
		require.Equal(t, a, b)
	})

	t.Run("escapes lead supplied text", func(t *testing.T) {
		r := req
		r.Company = `<script>alert("x")</script>`
		body, err := newEmailComposer("XShift").compose(r, joinLink, when)
		require.NoError(t, err)
		require.NotContains(t, body, "<script>")
	})

	t.Run("keeps apostrophes in names and pain points as rendered text", func(t *testing.T) {
		r := req
		r.FirstName = "D'Angelo"
		r.PainPoints = "We can't see who's on shift"
		body, err := newEmailComposer("XShift").compose(r, joinLink, when)
		require.NoError(t, err)

		// Markup escapes the apostrophe; a mail client renders it back to the original text.
		require.Contains(t, body, "Hi D&#39;Angelo,")
		require.Contains(t, html.UnescapeString(body), "Hi D'Angelo,")
		require.Contains(t, html.UnescapeString(body), `"We can't see who's on shift..."`)
	})

	t.Run("uses the configured product name", func(t *testing.T) {
		body, err := newEmailComposer("ShiftPilot").compose(req, joinLink, when)
		require.NoError(t, err)
		require.Contains(t, body, "The ShiftPilot Team")
		require.NotContains(t, body, "XShift")
	})
}

func TestTruncatePainPoint(t *testing.T) {
	t.Run("keeps short pain points whole", func(t *testing.T) {
		s := strings.Repeat("a", painPointLimit)
		require.Equal(t, s, truncatePainPoint(s))
	})

	t.Run("cuts long pain points to 100 characters", func(t *testing.T) {
		s := gofakeit.Paragraph(3, 5, 20, " ")
		require.Greater(t, utf8.RuneCountInString(s), painPointLimit)

		got := truncatePainPoint(s)
		require.LessOrEqual(t, utf8.RuneCountInString(got), painPointLimit)
		require.True(t, strings.HasPrefix(s, got))
	})

	t.Run("counts characters, not bytes", func(t *testing.T) {
		s := strings.Repeat("é", 150)
		got := truncatePainPoint(s)
		require.Equal(t, painPointLimit, utf8.RuneCountInString(got))
		require.True(t, utf8.ValidString(got))
	})

	t.Run("trims whitespace left at the cut", func(t *testing.T) {
		s := strings.Repeat("a", 99) + " " + strings.Repeat("b", 50)
		require.Equal(t, strings.Repeat("a", 99), truncatePainPoint(s))
	})
}

func TestSubjectLine(t *testing.T) {
	got := subjectLine("Acme", "XShift", "Monday, March 10, 2025 at 2:30 PM EDT")
	require.Equal(t, "Meeting Confirmed: Acme + XShift - Monday, March 10, 2025 at 2:30 PM EDT", got)
}
