package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	invite "github.com/xshift/service-meeting-invite"
	"github.com/xshift/service-meeting-invite/auth"
	"github.com/xshift/service-meeting-invite/config"
	"github.com/xshift/service-meeting-invite/logging"
)

// Login attempts: a burst of 5, then one every 12 seconds per client.
const (
	throttleEvery = 12 * time.Second
	throttleBurst = 5
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config.Load: %v\n", err)
	}

	useSentry := len(cfg.SentryDSN) > 0
	if useSentry {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
		})
		if err != nil {
			log.Fatalf("sentry.Init: %v\n", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	logger := logging.New(os.Stdout, cfg.Level(), useSentry)
	slog.SetDefault(logger)

	handler, err := newHandler(cfg, logger)
	if err != nil {
		logger.Error("server setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if useSentry {
		handler = sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(handler)
	}

	ctx := context.Background()
	if err := funcframework.RegisterHTTPFunctionContext(ctx, "/", handler.ServeHTTP); err != nil {
		log.Fatalf("funcframework.RegisterHTTPFunctionContext: %v\n", err)
	}

	logger.Info("server starting", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
	if err := funcframework.Start(cfg.Port); err != nil {
		log.Fatalf("funcframework.Start: %v\n", err)
	}
}

func newHandler(cfg *config.Config, logger *slog.Logger) (http.Handler, error) {
	creds, err := invite.NewCalendarCredentials(invite.CalendarCredentialsOptions{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		AccessToken:  cfg.GoogleAccessToken,
		RefreshToken: cfg.GoogleRefreshToken,
		TokenFile:    cfg.GoogleTokenFile,
	})
	if err != nil {
		return nil, fmt.Errorf("calendar credentials: %w", err)
	}
	if _, err := creds.Token(); err != nil {
		logger.Warn("calendar is not authorized, run `invitectl authorize`", slog.String("error", err.Error()))
	}

	var mailer *invite.MailgunService
	if len(cfg.MailDomain) > 0 {
		mailer = invite.NewMailgunService(invite.MailgunOptions{
			Domain:  cfg.MailDomain,
			APIKey:  cfg.MailAPIKey,
			Sender:  cfg.MailSender,
			Product: cfg.ProductName,
		})
	} else {
		logger.Warn("MAIL_DOMAIN is not set, confirmation emails will fail")
	}

	var webhook *invite.BookingWebhook
	if len(cfg.BookingWebhookURL) > 0 {
		webhook, err = invite.NewBookingWebhook(context.Background(), invite.BookingWebhookOptions{
			URL:        cfg.BookingWebhookURL,
			UseIDToken: cfg.BookingWebhookIDToken,
			Secret:     cfg.BookingWebhookSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("booking webhook: %w", err)
		}
	}

	invites := invite.NewInviteService(invite.InviteServiceOptions{
		Credentials:             creds,
		CalendarID:              cfg.CalendarID,
		Mailer:                  mailer,
		SlackWebhookURL:         cfg.SlackWebhookURL,
		BookingWebhook:          webhook,
		Product:                 cfg.ProductName,
		CancelOnDispatchFailure: cfg.CancelEventOnDispatchFailure,
		Logger:                  logger,
	})

	if cfg.AuthDisabled {
		logger.Warn("AUTH_DISABLED is set, the scheduling form is open to anyone")
		return invite.NewServer(invite.ServerOptions{
			Invites:      invites,
			AuthDisabled: true,
			Logger:       logger,
		}), nil
	}

	gate, err := newGate(cfg, logger)
	if err != nil {
		return nil, err
	}

	key, err := cfg.SessionKey(logger)
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	sessions, err := auth.NewSessionManager(auth.SessionOptions{
		Secret: key,
		Secure: cfg.IsProduction(),
	})
	if err != nil {
		return nil, fmt.Errorf("auth.NewSessionManager: %w", err)
	}

	return invite.NewServer(invite.ServerOptions{
		Invites:  invites,
		Gate:     gate,
		Sessions: sessions,
		Throttle: auth.NewThrottle(throttleEvery, throttleBurst).TrustProxyHops(cfg.TrustedProxyHops),
		Logger:   logger,
	}), nil
}

func newGate(cfg *config.Config, logger *slog.Logger) (*auth.Gate, error) {
	hash := []byte(cfg.AdminPasswordHash)
	if len(hash) == 0 && len(cfg.AdminPassword) > 0 {
		var err error
		hash, err = auth.HashPassword(cfg.AdminPassword, 0)
		if err != nil {
			return nil, fmt.Errorf("auth.HashPassword: %w", err)
		}
	}
	if len(hash) == 0 {
		logger.Warn("neither ADMIN_PASSWORD_HASH nor ADMIN_PASSWORD is set, every login will be rejected")
	}

	store, err := auth.NewCredentialStore(cfg.MFASecret, cfg.MFASecretFile)
	if err != nil {
		return nil, fmt.Errorf("auth.NewCredentialStore: %w", err)
	}
	if _, enrolled := store.Secret(); !enrolled {
		logger.Info("MFA is not enrolled yet, the first login will start setup")
		if !store.Persistent() {
			logger.Warn("MFA_SECRET_FILE is not set, an enrolled MFA secret will be lost on restart")
		}
	}

	return auth.NewGate(auth.GateOptions{
		PasswordHash: hash,
		Credentials:  store,
		Issuer:       cfg.MFAIssuer,
	}), nil
}
