// Package config loads the service configuration from the environment and an optional .env file using Viper.
package config

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// TOTP secrets are unpadded base32, as authenticator apps and otpauth:// URLs carry them.
var mfaSecretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Port the HTTP server listens on.
	Port string `mapstructure:"PORT"`
	// Env is the application environment ("development", "staging", "production").
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// SentryDSN enables error reporting when set.
	SentryDSN string `mapstructure:"SENTRY_DSN"`

	// SessionSecret signs session cookies. Required in production.
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	// AdminPassword is the plaintext admin password. Ignored when AdminPasswordHash is set.
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
	// AdminPasswordHash is a bcrypt hash of the admin password (see `invitectl hash-password`).
	AdminPasswordHash string `mapstructure:"ADMIN_PASSWORD_HASH"`
	// MFASecret is the durable base32 TOTP secret. Empty until enrollment.
	MFASecret string `mapstructure:"MFA_SECRET"`
	// MFASecretFile persists the secret promoted by enrollment. Empty keeps it in memory only.
	MFASecretFile string `mapstructure:"MFA_SECRET_FILE"`
	MFAIssuer     string `mapstructure:"MFA_ISSUER"`
	// TrustedProxyHops is how many reverse proxies append to X-Forwarded-For, 1 on Cloud Run.
	// 0 throttles logins by the connection's remote address.
	TrustedProxyHops int `mapstructure:"TRUSTED_PROXY_HOPS"`
	// AuthDisabled skips the login gate. Development only; rejected in production.
	AuthDisabled bool `mapstructure:"AUTH_DISABLED"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `mapstructure:"GOOGLE_REDIRECT_URI"`
	GoogleAccessToken  string `mapstructure:"GOOGLE_ACCESS_TOKEN"`
	GoogleRefreshToken string `mapstructure:"GOOGLE_REFRESH_TOKEN"`
	// GoogleTokenFile is written by `invitectl authorize` and wins over the token env vars.
	GoogleTokenFile string `mapstructure:"GOOGLE_TOKEN_FILE"`
	CalendarID      string `mapstructure:"CALENDAR_ID"`

	MailDomain string `mapstructure:"MAIL_DOMAIN"`
	MailAPIKey string `mapstructure:"MAIL_GUN_PRIVATE_API_KEY"`
	// MailSender overrides the default "<product> <meetings@MAIL_DOMAIN>" sender.
	MailSender string `mapstructure:"MAIL_SENDER"`

	ProductName     string `mapstructure:"PRODUCT_NAME"`
	SlackWebhookURL string `mapstructure:"SLACK_WEBHOOK_URL"`
	// BookingWebhookURL receives a DEMO_BOOKED event for every scheduled demo.
	BookingWebhookURL string `mapstructure:"BOOKING_WEBHOOK_URL"`
	// BookingWebhookIDToken authenticates booking webhook requests with a Google ID token.
	BookingWebhookIDToken bool `mapstructure:"BOOKING_WEBHOOK_ID_TOKEN"`
	// BookingWebhookSecret HMAC-signs booking webhook payloads when set.
	BookingWebhookSecret string `mapstructure:"BOOKING_WEBHOOK_SECRET"`
	// CancelEventOnDispatchFailure deletes the calendar event when the confirmation email fails.
	CancelEventOnDispatchFailure bool `mapstructure:"CANCEL_EVENT_ON_DISPATCH_FAILURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Every key needs a default so AutomaticEnv picks it up during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SENTRY_DSN", "")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("ADMIN_PASSWORD_HASH", "")
	v.SetDefault("MFA_SECRET", "")
	v.SetDefault("MFA_SECRET_FILE", "")
	v.SetDefault("MFA_ISSUER", "XShift Meeting Agent (xshift.me)")
	v.SetDefault("TRUSTED_PROXY_HOPS", 0)
	v.SetDefault("AUTH_DISABLED", false)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_REDIRECT_URI", "http://localhost:3000/oauth2callback")
	v.SetDefault("GOOGLE_ACCESS_TOKEN", "")
	v.SetDefault("GOOGLE_REFRESH_TOKEN", "")
	v.SetDefault("GOOGLE_TOKEN_FILE", "")
	v.SetDefault("CALENDAR_ID", "primary")
	v.SetDefault("MAIL_DOMAIN", "")
	v.SetDefault("MAIL_GUN_PRIVATE_API_KEY", "")
	v.SetDefault("MAIL_SENDER", "")
	v.SetDefault("PRODUCT_NAME", "XShift")
	v.SetDefault("SLACK_WEBHOOK_URL", "")
	v.SetDefault("BOOKING_WEBHOOK_URL", "")
	v.SetDefault("BOOKING_WEBHOOK_ID_TOKEN", false)
	v.SetDefault("BOOKING_WEBHOOK_SECRET", "")
	v.SetDefault("CANCEL_EVENT_ON_DISPATCH_FAILURE", false)
}

func (c *Config) validate() error {
	if c.Port == "" {
		return errors.New("config: PORT must be set")
	}
	if c.TrustedProxyHops < 0 {
		return errors.New("config: TRUSTED_PROXY_HOPS must not be negative")
	}
	if len(c.MFASecret) > 0 {
		if _, err := mfaSecretEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(c.MFASecret))); err != nil {
			return fmt.Errorf("config: MFA_SECRET is not valid base32: %w", err)
		}
	}
	if c.AuthDisabled && c.IsProduction() {
		return errors.New("config: AUTH_DISABLED must not be true when APP_ENV=production")
	}
	if c.SessionSecret == "" && c.IsProduction() {
		return errors.New("config: SESSION_SECRET must be set when APP_ENV=production")
	}
	if (c.MailDomain == "") != (c.MailAPIKey == "") {
		return errors.New("config: MAIL_DOMAIN and MAIL_GUN_PRIVATE_API_KEY must be set together")
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return errors.New("config: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	return nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SessionKey returns the cookie signing key. Outside production a missing secret is
// replaced with a random one, which logs everyone out on restart.
func (c *Config) SessionKey(logger *slog.Logger) ([]byte, error) {
	if len(c.SessionSecret) > 0 {
		return []byte(c.SessionSecret), nil
	}
	logger.Warn("SESSION_SECRET is not set, using a random key; sessions will not survive a restart")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Level maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
