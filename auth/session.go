package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName = "meeting_agent_session"
	// SessionTTL is the sliding window; every authenticated request restarts it.
	SessionTTL = 24 * time.Hour
)

type (
	// SessionManager stores a Session in a signed, HTTP-only cookie and remembers
	// logged-out session ids until their cookies would have expired anyway.
	SessionManager struct {
		secret []byte
		ttl    time.Duration
		secure bool
		now    func() time.Time

		mu      sync.Mutex
		revoked map[string]time.Time
	}

	SessionOptions struct {
		// HMAC key for the cookie signature.
		Secret []byte
		// Send the cookie over HTTPS only.
		Secure bool
		// Default: SessionTTL
		TTL time.Duration
		Now func() time.Time
	}

	sessionClaims struct {
		jwt.RegisteredClaims
		State         State  `json:"st"`
		PendingSecret string `json:"pms,omitempty"`
	}
)

func NewSessionManager(o SessionOptions) (*SessionManager, error) {
	if len(o.Secret) == 0 {
		return nil, errors.New("session secret must not be empty")
	}
	ttl := SessionTTL
	if o.TTL > 0 {
		ttl = o.TTL
	}
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	return &SessionManager{
		secret:  o.Secret,
		ttl:     ttl,
		secure:  o.Secure,
		now:     now,
		revoked: make(map[string]time.Time),
	}, nil
}

// Load reads the session from the request cookie. A missing, invalid, expired or
// revoked cookie yields a new logged-out session.
func (m *SessionManager) Load(r *http.Request) Session {
	c, err := r.Cookie(CookieName)
	if err != nil || len(c.Value) == 0 {
		return newSession()
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(c.Value, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid || len(claims.ID) == 0 || m.isRevoked(claims.ID) {
		return newSession()
	}

	return Session{
		ID:            claims.ID,
		State:         claims.State,
		PendingSecret: claims.PendingSecret,
	}
}

// Save writes the session cookie with a fresh expiry.
func (m *SessionManager) Save(w http.ResponseWriter, s Session) error {
	if len(s.ID) == 0 {
		s.ID = uuid.NewString()
	}
	now := m.now()
	expires := now.Add(m.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		State:         s.State,
		PendingSecret: s.PendingSecret,
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear revokes the session id and deletes the cookie.
func (m *SessionManager) Clear(w http.ResponseWriter, s Session) {
	if len(s.ID) > 0 {
		m.revoke(s.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *SessionManager) revoke(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.revoked {
		if now.After(exp) {
			delete(m.revoked, k)
		}
	}
	// A cookie issued for this id can live at most one TTL from now.
	m.revoked[id] = now.Add(m.ttl)
}

func (m *SessionManager) isRevoked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[id]
	return ok
}

func newSession() Session {
	return Session{ID: uuid.NewString(), State: StateLoggedOut}
}
