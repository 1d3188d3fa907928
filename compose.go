package invite

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/confirmation.html
var templateFS embed.FS

var confirmationTmpl = template.Must(template.ParseFS(templateFS, "templates/confirmation.html"))

// Pain points longer than this are cut off in the confirmation email.
const painPointLimit = 100

type (
	emailComposer struct {
		// Product name used in the prose and signature.
		product string
	}

	confirmationVariables struct {
		FirstName   string
		Company     string
		PainPoint   string
		MeetingTime string
		JoinLink    string
		Product     string
	}
)

func newEmailComposer(product string) *emailComposer {
	return &emailComposer{product: product}
}

// Compose renders the HTML confirmation body. It does no I/O and is deterministic for the same inputs.
func (c *emailComposer) compose(req MeetingRequest, joinLink, formattedTime string) (string, error) {
	vars := confirmationVariables{
		FirstName:   req.FirstName,
		Company:     req.Company,
		PainPoint:   truncatePainPoint(req.PainPoints),
		MeetingTime: formattedTime,
		JoinLink:    joinLink,
		Product:     c.product,
	}

	var b bytes.Buffer
	if err := confirmationTmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// SubjectLine builds the confirmation email subject.
func subjectLine(company, product, formattedTime string) string {
	return fmt.Sprintf("Meeting Confirmed: %s + %s - %s", company, product, formattedTime)
}

// TruncatePainPoint keeps the first 100 characters, then trims surrounding whitespace.
// It may split a word.
func truncatePainPoint(s string) string {
	r := []rune(s)
	if len(r) > painPointLimit {
		r = r[:painPointLimit]
	}
	return strings.TrimSpace(string(r))
}
