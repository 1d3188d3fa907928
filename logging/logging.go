// Package logging builds the service's slog logger.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"

	sentryslog "github.com/getsentry/sentry-go/slog"
)

// New returns a JSON logger writing to w. With withSentry, records at Error level
// and above are also sent to Sentry.
func New(w io.Writer, level slog.Level, withSentry bool) *slog.Logger {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if withSentry {
		h = fanout{h, sentryslog.Option{Level: slog.LevelError}.NewSentryHandler()}
	}
	return slog.New(h)
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
