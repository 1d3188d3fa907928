package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const password = "s3cret-admin-password"

func newTestGate(t *testing.T, secret string, now time.Time) (*Gate, *CredentialStore) {
	t.Helper()
	hash, err := HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	store, err := NewCredentialStore(secret, "")
	require.NoError(t, err)
	return NewGate(GateOptions{
		PasswordHash: hash,
		Credentials:  store,
		Now:          func() time.Time { return now },
	}), store
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, validateOpts)
	require.NoError(t, err)
	return code
}

func TestLogin(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	secret := testSecret(t)

	t.Run("password and code authenticate with a new session id", func(t *testing.T) {
		g, _ := newTestGate(t, secret, now)
		current := Session{ID: "pre-login", State: StateLoggedOut}

		next, out, err := g.Transition(current, Attempt{Action: ActionLogin, Password: password, Code: codeAt(t, secret, now)})
		require.NoError(t, err)
		require.Equal(t, OutcomeAuthenticated, out.Kind)
		require.Equal(t, StateAuthenticated, next.State)
		require.True(t, next.Authenticated())
		require.NotEqual(t, current.ID, next.ID)
	})

	t.Run("a wrong password is rejected before the code is checked", func(t *testing.T) {
		g, _ := newTestGate(t, secret, now)
		current := Session{ID: "pre-login"}

		next, _, err := g.Transition(current, Attempt{Action: ActionLogin, Password: "nope", Code: codeAt(t, secret, now)})
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, "Invalid password", authErr.Message)
		require.Equal(t, current, next)
	})

	t.Run("an empty password never matches", func(t *testing.T) {
		g, _ := newTestGate(t, secret, now)
		_, _, err := g.Transition(Session{}, Attempt{Action: ActionLogin})
		require.ErrorIs(t, err, errInvalidPassword)
	})

	t.Run("a wrong code is rejected", func(t *testing.T) {
		g, _ := newTestGate(t, secret, now)
		current := Session{ID: "pre-login"}

		next, _, err := g.Transition(current, Attempt{Action: ActionLogin, Password: password, Code: "not-a-code"})
		require.ErrorIs(t, err, errInvalidCode)
		require.Equal(t, current, next)
	})

	t.Run("codes within two periods are accepted", func(t *testing.T) {
		g, _ := newTestGate(t, secret, now)
		for _, offset := range []time.Duration{-60 * time.Second, -30 * time.Second, 30 * time.Second, 60 * time.Second} {
			_, _, err := g.Transition(Session{}, Attempt{Action: ActionLogin, Password: password, Code: codeAt(t, secret, now.Add(offset))})
			require.NoError(t, err, offset)
		}
	})

	t.Run("codes three periods away are rejected", func(t *testing.T) {
		g, _ := newTestGate(t, secret, now)
		for _, offset := range []time.Duration{-90 * time.Second, 90 * time.Second} {
			_, _, err := g.Transition(Session{}, Attempt{Action: ActionLogin, Password: password, Code: codeAt(t, secret, now.Add(offset))})
			require.ErrorIs(t, err, errInvalidCode, offset)
		}
	})

	t.Run("without a credential the password leads to setup", func(t *testing.T) {
		g, _ := newTestGate(t, "", now)
		current := Session{ID: "pre-login"}

		next, out, err := g.Transition(current, Attempt{Action: ActionLogin, Password: password})
		require.NoError(t, err)
		require.Equal(t, OutcomeSetupRequired, out.Kind)
		require.Equal(t, current, next)
	})
}

func TestEnrollment(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	t.Run("a pending secret becomes the credential after a valid code", func(t *testing.T) {
		g, store := newTestGate(t, "", now)

		pending, out, err := g.Transition(Session{ID: "s1"}, Attempt{Action: ActionEnroll, Password: password})
		require.NoError(t, err)
		require.Equal(t, OutcomeEnrollmentStarted, out.Kind)
		require.NotNil(t, out.Enrollment)
		require.Equal(t, StateEnrollmentRequired, pending.State)
		require.Equal(t, out.Enrollment.Secret, pending.PendingSecret)
		require.Contains(t, out.Enrollment.URL, "otpauth://totp/")

		_, ok := store.Secret()
		require.False(t, ok, "nothing is stored before the code is verified")

		next, out, err := g.Transition(pending, Attempt{Action: ActionConfirmEnrollment, Code: codeAt(t, pending.PendingSecret, now)})
		require.NoError(t, err)
		require.Equal(t, OutcomeAuthenticated, out.Kind)
		require.True(t, next.Authenticated())
		require.Empty(t, next.PendingSecret)

		stored, ok := store.Secret()
		require.True(t, ok)
		require.Equal(t, pending.PendingSecret, stored)
	})

	t.Run("a wrong code keeps the secret pending", func(t *testing.T) {
		g, store := newTestGate(t, "", now)
		pending, _, err := g.Transition(Session{ID: "s1"}, Attempt{Action: ActionEnroll, Password: password})
		require.NoError(t, err)

		next, _, err := g.Transition(pending, Attempt{Action: ActionConfirmEnrollment, Code: "123"})
		require.ErrorIs(t, err, errInvalidCode)
		require.Equal(t, pending, next)
		_, ok := store.Secret()
		require.False(t, ok)
	})

	t.Run("confirming without a pending secret fails", func(t *testing.T) {
		g, _ := newTestGate(t, "", now)
		_, _, err := g.Transition(Session{ID: "s1"}, Attempt{Action: ActionConfirmEnrollment, Code: "123456"})
		require.ErrorIs(t, err, ErrEnrollmentNotStarted)
	})

	t.Run("enrollment is refused once a credential exists", func(t *testing.T) {
		g, _ := newTestGate(t, testSecret(t), now)
		_, _, err := g.Transition(Session{ID: "s1"}, Attempt{Action: ActionEnroll, Password: password})
		require.ErrorIs(t, err, ErrAlreadyEnrolled)
	})

	t.Run("enrollment needs the password", func(t *testing.T) {
		g, _ := newTestGate(t, "", now)
		_, _, err := g.Transition(Session{ID: "s1"}, Attempt{Action: ActionEnroll, Password: "guess"})
		require.ErrorIs(t, err, errInvalidPassword)
	})

	t.Run("two concurrent enrollments promote only the first", func(t *testing.T) {
		g, store := newTestGate(t, "", now)
		a, _, err := g.Transition(Session{ID: "a"}, Attempt{Action: ActionEnroll, Password: password})
		require.NoError(t, err)
		b, _, err := g.Transition(Session{ID: "b"}, Attempt{Action: ActionEnroll, Password: password})
		require.NoError(t, err)

		_, _, err = g.Transition(a, Attempt{Action: ActionConfirmEnrollment, Code: codeAt(t, a.PendingSecret, now)})
		require.NoError(t, err)
		_, _, err = g.Transition(b, Attempt{Action: ActionConfirmEnrollment, Code: codeAt(t, b.PendingSecret, now)})
		require.True(t, errors.Is(err, ErrAlreadyEnrolled))

		stored, _ := store.Secret()
		require.Equal(t, a.PendingSecret, stored)
	})
}

func TestLogout(t *testing.T) {
	g, _ := newTestGate(t, "", time.Now())
	next, out, err := g.Transition(Session{ID: "s1", State: StateAuthenticated}, Attempt{Action: ActionLogout})
	require.NoError(t, err)
	require.Equal(t, OutcomeLoggedOut, out.Kind)
	require.Equal(t, Session{ID: "s1", State: StateLoggedOut}, next)
}

func TestUnknownAction(t *testing.T) {
	g, _ := newTestGate(t, "", time.Now())
	current := Session{ID: "s1"}
	next, _, err := g.Transition(current, Attempt{Action: Action(42)})
	require.Error(t, err)
	require.Equal(t, current, next)
}
