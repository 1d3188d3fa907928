package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("writes JSON at or above the level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelInfo, false)

		logger.Debug("hidden")
		logger.Info("calendar event created", slog.String("eventId", "evt-1"))

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		require.Equal(t, "calendar event created", got["msg"])
		require.Equal(t, "evt-1", got["eventId"])
		require.NotContains(t, buf.String(), "hidden")
	})

	t.Run("keeps writing locally with Sentry enabled", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelInfo, true).With(slog.String("service", "invite"))

		logger.Error("send failed")
		require.Contains(t, buf.String(), `"service":"invite"`)
		require.Contains(t, buf.String(), "send failed")
	})
}

type recorder struct {
	level   slog.Level
	records []slog.Record
}

func (r *recorder) Enabled(_ context.Context, l slog.Level) bool { return l >= r.level }
func (r *recorder) Handle(_ context.Context, rec slog.Record) error {
	r.records = append(r.records, rec)
	return nil
}
func (r *recorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *recorder) WithGroup(string) slog.Handler      { return r }

func TestFanout(t *testing.T) {
	info := &recorder{level: slog.LevelInfo}
	errs := &recorder{level: slog.LevelError}
	logger := slog.New(fanout{info, errs})

	logger.Debug("dropped")
	logger.Info("one")
	logger.Error("two")

	require.Len(t, info.records, 2)
	require.Len(t, errs.records, 1)
	require.Equal(t, "two", errs.records[0].Message)
}
