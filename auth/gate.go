// Package auth gates the scheduling pipeline behind an admin password and a
// time-based one-time code, including first-run enrollment of the code's secret.
package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// State is where a browser session is in the login flow.
// PasswordChecked and the MFA challenge are transient: both happen inside a single transition.
type State int

const (
	StateLoggedOut State = iota
	StateEnrollmentRequired
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateEnrollmentRequired:
		return "enrollment_required"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Action int

const (
	ActionLogin Action = iota
	ActionEnroll
	ActionConfirmEnrollment
	ActionLogout
)

type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeAuthenticated
	// Password accepted but no MFA credential exists yet.
	OutcomeSetupRequired
	OutcomeEnrollmentStarted
	OutcomeLoggedOut
)

type (
	// Session is the per-browser auth state.
	Session struct {
		ID    string
		State State
		// Base32 secret awaiting its first valid code. Only set in StateEnrollmentRequired.
		PendingSecret string
	}

	// Attempt is one request against the gate.
	Attempt struct {
		Action   Action
		Password string
		Code     string
	}

	Outcome struct {
		Kind OutcomeKind
		// Set when Kind is OutcomeEnrollmentStarted.
		Enrollment *Enrollment
	}

	Gate struct {
		passwordHash []byte
		credentials  *CredentialStore
		issuer       string
		account      string
		now          func() time.Time
	}

	GateOptions struct {
		// Bcrypt hash of the admin password. Empty rejects every login.
		PasswordHash []byte
		Credentials  *CredentialStore
		// Shown in authenticator apps. Default: "XShift Meeting Agent"
		Issuer string
		// Default: "admin"
		Account string
		Now     func() time.Time
	}
)

// Authenticated reports whether the session may reach the scheduling pipeline.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

func NewGate(o GateOptions) *Gate {
	issuer := "XShift Meeting Agent"
	if len(o.Issuer) > 0 {
		issuer = o.Issuer
	}
	account := "admin"
	if len(o.Account) > 0 {
		account = o.Account
	}
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	return &Gate{
		passwordHash: o.PasswordHash,
		credentials:  o.Credentials,
		issuer:       issuer,
		account:      account,
		now:          now,
	}
}

// HashPassword bcrypt-hashes an admin password.
func HashPassword(password string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(password), cost)
}

// Transition applies one attempt to the current session and returns the next session.
// On error the returned session is always the current one, unchanged.
func (g *Gate) Transition(current Session, a Attempt) (Session, Outcome, error) {
	switch a.Action {
	case ActionLogout:
		return Session{ID: current.ID, State: StateLoggedOut}, Outcome{Kind: OutcomeLoggedOut}, nil
	case ActionLogin:
		return g.login(current, a)
	case ActionEnroll:
		return g.enroll(current, a)
	case ActionConfirmEnrollment:
		return g.confirmEnrollment(current, a)
	}
	return current, Outcome{}, fmt.Errorf("unknown action: %d", a.Action)
}

// Login checks the password and, when a credential exists, the one-time code in the same request.
func (g *Gate) login(current Session, a Attempt) (Session, Outcome, error) {
	if !g.checkPassword(a.Password) {
		return current, Outcome{}, errInvalidPassword
	}

	secret, ok := g.credentials.Secret()
	if !ok {
		return current, Outcome{Kind: OutcomeSetupRequired}, nil
	}

	if !validCode(a.Code, secret, g.now()) {
		return current, Outcome{}, errInvalidCode
	}
	return authenticated(), Outcome{Kind: OutcomeAuthenticated}, nil
}

// Enroll generates a fresh secret and parks it in the session until a code proves the admin stored it.
func (g *Gate) enroll(current Session, a Attempt) (Session, Outcome, error) {
	if !g.checkPassword(a.Password) {
		return current, Outcome{}, errInvalidPassword
	}
	if _, ok := g.credentials.Secret(); ok {
		return current, Outcome{}, ErrAlreadyEnrolled
	}

	enrollment, err := newEnrollment(g.issuer, g.account)
	if err != nil {
		return current, Outcome{}, fmt.Errorf("newEnrollment: %w", err)
	}

	next := Session{
		ID:            current.ID,
		State:         StateEnrollmentRequired,
		PendingSecret: enrollment.Secret,
	}
	return next, Outcome{Kind: OutcomeEnrollmentStarted, Enrollment: &enrollment}, nil
}

// ConfirmEnrollment promotes the pending secret once a valid code for it is presented.
func (g *Gate) confirmEnrollment(current Session, a Attempt) (Session, Outcome, error) {
	if current.State != StateEnrollmentRequired || len(current.PendingSecret) == 0 {
		return current, Outcome{}, ErrEnrollmentNotStarted
	}
	if !validCode(a.Code, current.PendingSecret, g.now()) {
		return current, Outcome{}, errInvalidCode
	}
	if err := g.credentials.Promote(current.PendingSecret); err != nil {
		return current, Outcome{}, err
	}
	return authenticated(), Outcome{Kind: OutcomeAuthenticated}, nil
}

func (g *Gate) checkPassword(password string) bool {
	if len(g.passwordHash) == 0 || len(password) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password)) == nil
}

// Authenticated starts a new session id so a pre-login cookie cannot be replayed as a logged-in one.
func authenticated() Session {
	return Session{ID: uuid.NewString(), State: StateAuthenticated}
}
