package invite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/xshift/service-meeting-invite/auth"
)

type errorBody struct {
	Error any `json:"error"`
}

// writeJSON encodes data as the JSON response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// logRequestError logs the error with the request line and reports it to Sentry if it's enabled.
func (s *Server) logRequestError(ctx context.Context, r *http.Request, err error) {
	s.logger.ErrorContext(
		ctx,
		err.Error(),
		slog.String("method", r.Method),
		slog.String("url", r.URL.String()))

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
	}
}

// errorResponse writes {"error": msg} with the given status.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, msg any) {
	if err := s.writeJSON(w, status, errorBody{Error: msg}); err != nil {
		s.logRequestError(r.Context(), r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// serverErrorResponse logs the error and sends a generic 500 response.
func (s *Server) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.logRequestError(r.Context(), r, err)
	s.errorResponse(w, r, http.StatusInternalServerError, "internal server error")
}

// badRequestResponse sends a 400 with msg as the error. The msg is shown to the client.
func (s *Server) badRequestResponse(w http.ResponseWriter, r *http.Request, msg string) {
	s.logger.WarnContext(r.Context(), "bad request",
		slog.String("reason", msg),
		slog.String("url", r.URL.Path))
	s.errorResponse(w, r, http.StatusBadRequest, msg)
}

// authErrorResponse maps gate errors to status codes. Failed credentials are
// warnings, not errors, and never reach Sentry.
func (s *Server) authErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *auth.AuthError
	switch {
	case errors.As(err, &authErr):
		s.logger.WarnContext(r.Context(), "authentication failed",
			slog.String("reason", authErr.Message),
			slog.String("client", s.throttle.Key(r)),
			slog.String("url", r.URL.Path))
		s.errorResponse(w, r, http.StatusUnauthorized, authErr.Message)
	case errors.Is(err, auth.ErrAlreadyEnrolled):
		s.errorResponse(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrEnrollmentNotStarted):
		s.badRequestResponse(w, r, err.Error())
	default:
		s.serverErrorResponse(w, r, fmt.Errorf("gate.Transition: %w", err))
	}
}

// scheduleErrorResponse maps scheduling pipeline errors to status codes.
func (s *Server) scheduleErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *ValidationError
		timeErr       *InvalidTimeInputError
		partialErr    *PartialFailureError
	)
	if errors.As(err, &validationErr) {
		s.logger.WarnContext(r.Context(), "invalid meeting request", slog.Any("fields", validationErr.Fields))
		if err := s.writeJSON(w, http.StatusBadRequest, validationErrorResponse{
			Error:  "All required fields must be filled",
			Fields: validationErr.Fields,
		}); err != nil {
			s.logRequestError(r.Context(), r, err)
		}
		return
	}
	if errors.As(err, &timeErr) {
		s.logger.WarnContext(r.Context(), "invalid meeting time", slog.String("error", timeErr.Error()))
		if err := s.writeJSON(w, http.StatusBadRequest, validationErrorResponse{
			Error:  timeErr.Error(),
			Fields: []string{timeErr.Field},
		}); err != nil {
			s.logRequestError(r.Context(), r, err)
		}
		return
	}

	s.logRequestError(r.Context(), r, err)
	resp := inviteErrorResponse{
		Error:   "Failed to send meeting confirmation",
		Details: err.Error(),
	}
	if errors.As(err, &partialErr) {
		resp.EventID = partialErr.EventID
		resp.EventCancelled = partialErr.Cancelled
	}
	if err := s.writeJSON(w, http.StatusInternalServerError, resp); err != nil {
		s.logRequestError(r.Context(), r, err)
	}
}
