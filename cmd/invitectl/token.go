package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	invite "github.com/xshift/service-meeting-invite"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect the calendar token",
}

var tokenStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the calendar token is usable",
	Long:  `Loads the configured calendar token, refreshing it if needed, and reports its expiry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := invite.NewCalendarCredentials(invite.CalendarCredentialsOptions{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			AccessToken:  cfg.GoogleAccessToken,
			RefreshToken: cfg.GoogleRefreshToken,
			TokenFile:    cfg.GoogleTokenFile,
		})
		if err != nil {
			return err
		}
		tok, err := creds.Token()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Calendar token: valid")
		if tok.Expiry.IsZero() {
			fmt.Fprintln(out, "Expires: never")
		} else {
			fmt.Fprintf(out, "Expires: %s (in %s)\n", tok.Expiry.Format(time.RFC1123), time.Until(tok.Expiry).Round(time.Second))
		}
		fmt.Fprintf(out, "Refresh token: %t\n", len(tok.RefreshToken) > 0)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenStatusCmd)
}
