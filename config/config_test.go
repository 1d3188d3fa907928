package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// isolate clears the keys a test depends on so the host environment cannot leak in.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "APP_ENV", "LOG_LEVEL", "SESSION_SECRET", "AUTH_DISABLED",
		"MAIL_DOMAIN", "MAIL_GUN_PRIVATE_API_KEY", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"CALENDAR_ID", "PRODUCT_NAME", "CANCEL_EVENT_ON_DISPATCH_FAILURE", "MFA_ISSUER",
		"MFA_SECRET", "TRUSTED_PROXY_HOPS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "3000", cfg.Port)
	require.Equal(t, "development", cfg.Env)
	require.Equal(t, "primary", cfg.CalendarID)
	require.Equal(t, "XShift", cfg.ProductName)
	require.Equal(t, "XShift Meeting Agent (xshift.me)", cfg.MFAIssuer)
	require.Equal(t, "http://localhost:3000/oauth2callback", cfg.GoogleRedirectURI)
	require.False(t, cfg.AuthDisabled)
	require.False(t, cfg.CancelEventOnDispatchFailure)
	require.False(t, cfg.IsProduction())
	require.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_EnvVarOverride(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "8080")
	t.Setenv("CALENDAR_ID", "sales@xshift.me")
	t.Setenv("CANCEL_EVENT_ON_DISPATCH_FAILURE", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "sales@xshift.me", cfg.CalendarID)
	require.True(t, cfg.CancelEventOnDispatchFailure)
	require.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_WithEnvFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	env := "PRODUCT_NAME=ShiftPilot\nCALENDAR_ID=demos@xshift.me\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	t.Setenv("CALENDAR_ID", "from-env@xshift.me")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "ShiftPilot", cfg.ProductName)
	require.Equal(t, "from-env@xshift.me", cfg.CalendarID, "env vars override .env")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"auth bypass in production", map[string]string{"APP_ENV": "production", "AUTH_DISABLED": "true", "SESSION_SECRET": "x"}},
		{"no session secret in production", map[string]string{"APP_ENV": "production"}},
		{"mail domain without key", map[string]string{"MAIL_DOMAIN": "mail.xshift.me"}},
		{"google client id without secret", map[string]string{"GOOGLE_CLIENT_ID": "id"}},
		{"MFA secret that is not base32", map[string]string{"MFA_SECRET": "not-a-secret!"}},
		{"MFA secret with a digit outside base32", map[string]string{"MFA_SECRET": "JBSWY3DPEHPK3PX1"}},
		{"negative proxy hops", map[string]string{"TRUSTED_PROXY_HOPS": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}

	t.Run("accepts a base32 MFA secret in any case", func(t *testing.T) {
		for _, secret := range []string{"JBSWY3DPEHPK3PXP", "jbswy3dpehpk3pxp", " JBSWY3DPEHPK3PXP\n", "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"} {
			isolate(t)
			t.Setenv("MFA_SECRET", secret)
			_, err := Load()
			require.NoError(t, err, "secret %q", secret)
		}
	})

	t.Run("reads trusted proxy hops", func(t *testing.T) {
		isolate(t)
		t.Setenv("TRUSTED_PROXY_HOPS", "1")
		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, 1, cfg.TrustedProxyHops)
	})

	t.Run("auth bypass outside production", func(t *testing.T) {
		isolate(t)
		t.Setenv("AUTH_DISABLED", "true")
		cfg, err := Load()
		require.NoError(t, err)
		require.True(t, cfg.AuthDisabled)
	})
}

func TestSessionKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	key, err := (&Config{SessionSecret: "configured"}).SessionKey(logger)
	require.NoError(t, err)
	require.Equal(t, []byte("configured"), key)

	var logs bytes.Buffer
	a, err := (&Config{}).SessionKey(slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	require.Len(t, a, 32)
	require.Contains(t, logs.String(), "SESSION_SECRET is not set")

	b, err := (&Config{}).SessionKey(logger)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
