package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	invite "github.com/xshift/service-meeting-invite"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

var (
	authorizeTokenFile string
	authorizeForce     bool
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Authorize the calendar identity and store its refresh token",
	Long: `Runs the Google OAuth consent flow for the calendar that hosts every demo.
The authorization code is received on the local redirect URI, or can be pasted
into the terminal. The resulting token is written to the token file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.GoogleClientID) == 0 {
			return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
		}
		path := authorizeTokenFile
		if len(path) == 0 {
			path = cfg.GoogleTokenFile
		}
		if len(path) == 0 {
			path = "token.json"
		}

		if _, err := os.Stat(path); err == nil && !authorizeForce {
			fmt.Fprintf(cmd.OutOrStdout(), "Token already exists at %s, use --force to replace it\n", path)
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		oauthCfg := invite.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
		tok, err := authorize(ctx, oauthCfg, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if len(tok.RefreshToken) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: no refresh token was returned, revoke the app's access and run authorize again")
		}

		if err := invite.WriteTokenFile(path, tok); err != nil {
			return fmt.Errorf("failed to write token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token stored to %s\n", path)
		return nil
	},
}

func init() {
	authorizeCmd.Flags().StringVar(&authorizeTokenFile, "token-file", "", "where to store the token (default GOOGLE_TOKEN_FILE or token.json)")
	authorizeCmd.Flags().BoolVar(&authorizeForce, "force", false, "replace an existing token")
}

// authorize prints the consent URL and waits for the first authorization code, either
// from the local callback server or pasted on in.
func authorize(ctx context.Context, oauthCfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	state := uuid.NewString()
	authURL := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Fprintln(out, "Authorize this app by visiting this URL:")
	fmt.Fprintf(out, "\n%s\n\n", authURL)
	fmt.Fprintln(out, "Waiting for the redirect, or paste the code (or the full redirect URL) here:")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	codes := make(chan string, 2)
	g, gctx := errgroup.WithContext(ctx)

	redirect, err := url.Parse(oauthCfg.RedirectURL)
	if err == nil && isLoopback(redirect.Hostname()) {
		srv := &http.Server{
			Addr:              redirect.Host,
			Handler:           callbackHandler(redirect.Path, state, codes),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(out, "callback server unavailable (%v), paste the code instead\n", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Stdin reads cannot be interrupted, so this reader stays outside the group.
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if code := extractCode(sc.Text()); len(code) > 0 {
				codes <- code
				return
			}
		}
	}()

	var code string
	select {
	case code = <-codes:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	cancel()
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("callback server: %w", err)
	}

	exchangeCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
	defer done()
	tok, err := oauthCfg.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return tok, nil
}

// callbackHandler accepts the OAuth redirect on path and forwards the code when state matches.
func callbackHandler(path, state string, codes chan<- string) http.Handler {
	if len(path) == 0 {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); len(e) > 0 {
			http.Error(w, "Authorization failed: "+e, http.StatusBadRequest)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if len(code) == 0 {
			http.Error(w, "Missing code", http.StatusBadRequest)
			return
		}

		select {
		case codes <- code:
		default:
		}
		fmt.Fprintln(w, "Authorization successful. You can close this window.")
	})
	return mux
}

// extractCode accepts either a bare authorization code or a pasted redirect URL.
func extractCode(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "code=") {
		return input
	}
	u, err := url.Parse(input)
	if err != nil {
		return ""
	}
	return u.Query().Get("code")
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
