package invite

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/xshift/service-meeting-invite/auth"
)

//go:embed public/login.html public/index.html
var publicFS embed.FS

// Upper bound on request bodies; the scheduling form is a few KB at most.
const maxBodyBytes = 1 << 20

type (
	Server struct {
		mux          *http.ServeMux
		invites      scheduler
		gate         *auth.Gate
		sessions     *auth.SessionManager
		throttle     *auth.Throttle
		authDisabled bool
		logger       *slog.Logger
	}

	ServerOptions struct {
		Invites  *inviteService
		Gate     *auth.Gate
		Sessions *auth.SessionManager
		// Optional. Limits login, setup and verify attempts per client.
		Throttle *auth.Throttle
		// Serve the scheduling pipeline without a login. Development only.
		AuthDisabled bool
		Logger       *slog.Logger
	}

	serverOptions struct {
		invites      scheduler
		gate         *auth.Gate
		sessions     *auth.SessionManager
		throttle     *auth.Throttle
		authDisabled bool
		logger       *slog.Logger
	}

	passwordRequest struct {
		Password string `json:"password" schema:"password"`
		MFACode  string `json:"mfaCode" schema:"mfaCode"`
	}

	verifyRequest struct {
		Token string `json:"token" schema:"token"`
	}

	statusResponse struct {
		Success       bool   `json:"success,omitempty"`
		SetupRequired bool   `json:"setupRequired,omitempty"`
		Message       string `json:"message,omitempty"`
	}

	inviteResponse struct {
		Success      bool   `json:"success"`
		Message      string `json:"message"`
		MeetLink     string `json:"meetLink"`
		MeetingTime  string `json:"meetingTime"`
		EmailPreview string `json:"emailPreview"`
	}

	inviteErrorResponse struct {
		Error   string `json:"error"`
		Details string `json:"details"`
		// Set when the calendar event was already created before the failure.
		EventID string `json:"eventId,omitempty"`
		// Set when that event was cancelled again.
		EventCancelled bool `json:"eventCancelled,omitempty"`
	}

	validationErrorResponse struct {
		Error  string   `json:"error"`
		Fields []string `json:"fields,omitempty"`
	}
)

func NewServer(o ServerOptions) *Server {
	return newServer(serverOptions{
		invites:      o.Invites,
		gate:         o.Gate,
		sessions:     o.Sessions,
		throttle:     o.Throttle,
		authDisabled: o.AuthDisabled,
		logger:       o.Logger,
	})
}

func newServer(o serverOptions) *Server {
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:          http.NewServeMux(),
		invites:      o.invites,
		gate:         o.gate,
		sessions:     o.sessions,
		throttle:     o.throttle,
		authDisabled: o.authDisabled,
		logger:       logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("POST /logout", s.handleLogout)
	if !s.authDisabled {
		s.mux.HandleFunc("POST /setup-mfa", s.throttled(s.handleSetupMFA))
		s.mux.HandleFunc("POST /verify-setup-mfa", s.throttled(s.handleVerifySetupMFA))
		s.mux.HandleFunc("POST /login", s.throttled(s.handleLogin))
	}

	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("POST /send-invite", s.requireAuth(s.handleSendInvite))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.authDisabled {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.ServeFileFS(w, r, publicFS, "public/login.html")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, publicFS, "public/index.html")
}

// HandleSetupMFA starts first-run enrollment: it checks the password and returns a new
// secret as a QR code. The secret stays pending in the session until verified.
func (s *Server) handleSetupMFA(w http.ResponseWriter, r *http.Request) {
	var body passwordRequest
	if err := decodeBody(&body, r); err != nil {
		s.badRequestResponse(w, r, err.Error())
		return
	}

	current := s.sessions.Load(r)
	next, out, err := s.gate.Transition(current, auth.Attempt{
		Action:   auth.ActionEnroll,
		Password: body.Password,
	})
	if err != nil {
		s.authErrorResponse(w, r, err)
		return
	}
	if err := s.sessions.Save(w, next); err != nil {
		s.serverErrorResponse(w, r, fmt.Errorf("sessions.Save: %w", err))
		return
	}

	s.logger.InfoContext(r.Context(), "MFA enrollment started", slog.String("client", s.throttle.Key(r)))
	if err := s.writeJSON(w, http.StatusOK, out.Enrollment); err != nil {
		s.logRequestError(r.Context(), r, err)
	}
}

// HandleVerifySetupMFA completes enrollment with the first code from the authenticator app.
func (s *Server) handleVerifySetupMFA(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if err := decodeBody(&body, r); err != nil {
		s.badRequestResponse(w, r, err.Error())
		return
	}

	current := s.sessions.Load(r)
	next, _, err := s.gate.Transition(current, auth.Attempt{
		Action: auth.ActionConfirmEnrollment,
		Code:   body.Token,
	})
	if err != nil {
		s.authErrorResponse(w, r, err)
		return
	}
	if err := s.sessions.Save(w, next); err != nil {
		s.serverErrorResponse(w, r, fmt.Errorf("sessions.Save: %w", err))
		return
	}

	s.logger.InfoContext(r.Context(), "MFA enrollment complete", slog.String("client", s.throttle.Key(r)))
	if err := s.writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: "MFA setup complete!"}); err != nil {
		s.logRequestError(r.Context(), r, err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body passwordRequest
	if err := decodeBody(&body, r); err != nil {
		s.badRequestResponse(w, r, err.Error())
		return
	}

	current := s.sessions.Load(r)
	next, out, err := s.gate.Transition(current, auth.Attempt{
		Action:   auth.ActionLogin,
		Password: body.Password,
		Code:     body.MFACode,
	})
	if err != nil {
		s.authErrorResponse(w, r, err)
		return
	}

	resp := statusResponse{Success: true}
	if out.Kind == auth.OutcomeSetupRequired {
		resp = statusResponse{SetupRequired: true, Message: "MFA setup required"}
	}
	if err := s.sessions.Save(w, next); err != nil {
		s.serverErrorResponse(w, r, fmt.Errorf("sessions.Save: %w", err))
		return
	}
	if err := s.writeJSON(w, http.StatusOK, resp); err != nil {
		s.logRequestError(r.Context(), r, err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !s.authDisabled {
		current := s.sessions.Load(r)
		next, _, _ := s.gate.Transition(current, auth.Attempt{Action: auth.ActionLogout})
		s.sessions.Clear(w, next)
	}
	if err := s.writeJSON(w, http.StatusOK, statusResponse{Success: true}); err != nil {
		s.logRequestError(r.Context(), r, err)
	}
}

// HandleSendInvite runs the scheduling pipeline for one lead.
func (s *Server) handleSendInvite(w http.ResponseWriter, r *http.Request) {
	var req MeetingRequest
	if err := decodeBody(&req, r); err != nil {
		s.badRequestResponse(w, r, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.scheduleErrorResponse(w, r, err)
		return
	}

	start := time.Now()
	summary, err := s.invites.schedule(r.Context(), req)
	if err != nil {
		s.scheduleErrorResponse(w, r, err)
		return
	}

	s.logger.InfoContext(r.Context(), "meeting scheduled",
		slog.String("eventId", summary.EventID),
		slog.String("company", req.Company),
		slog.Duration("elapsed", time.Since(start)),
	)
	err = s.writeJSON(w, http.StatusOK, inviteResponse{
		Success:      true,
		Message:      "Meeting confirmation sent successfully!",
		MeetLink:     summary.JoinLink,
		MeetingTime:  summary.FormattedTime,
		EmailPreview: summary.EmailBody,
	})
	if err != nil {
		s.logRequestError(r.Context(), r, err)
	}
}

// RequireAuth rejects requests without an authenticated session and slides the session
// expiry forward for those with one.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authDisabled {
			next(w, r)
			return
		}

		sess := s.sessions.Load(r)
		if !sess.Authenticated() {
			if r.Method == http.MethodGet {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			s.errorResponse(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		if err := s.sessions.Save(w, sess); err != nil {
			s.serverErrorResponse(w, r, fmt.Errorf("sessions.Save: %w", err))
			return
		}
		next(w, r)
	}
}

func (s *Server) throttled(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.throttle != nil && !s.throttle.Allow(s.throttle.Key(r)) {
			s.logger.WarnContext(r.Context(), "login attempts throttled",
				slog.String("client", s.throttle.Key(r)),
				slog.String("url", r.URL.Path),
			)
			s.errorResponse(w, r, http.StatusTooManyRequests, "too many attempts, try again later")
			return
		}
		next(w, r)
	}
}

// decodeBody unmarshalls a JSON or URL encoded form payload into dst.
func decodeBody(dst any, r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return errors.New("unacceptable Content-Type")
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)

	switch mediaType {
	case "application/json":
		return handleJSON(dst, r.Body)
	case "application/x-www-form-urlencoded":
		return handleForm(dst, r)
	}
	return errors.New("unacceptable Content-Type")
}

// handleJSON unmarshalls a JSON payload into dst.
func handleJSON(dst any, body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// handleForm unmarshalls a FormData payload into dst.
func handleForm(dst any, r *http.Request) error {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	if err := r.ParseForm(); err != nil {
		return err
	}
	if err := decoder.Decode(dst, r.PostForm); err != nil {
		return fmt.Errorf("invalid form body: %w", err)
	}
	return nil
}
