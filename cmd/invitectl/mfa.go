package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xshift/service-meeting-invite/auth"
)

var mfaCmd = &cobra.Command{
	Use:   "mfa",
	Short: "Manage the admin MFA enrollment",
}

var mfaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the persisted MFA secret",
	Long: `Deletes MFA_SECRET_FILE so the next login starts enrollment again.
Restart the server afterwards. A secret set through MFA_SECRET must be unset by hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.MFASecretFile) == 0 {
			return errors.New("MFA_SECRET_FILE is not set, nothing to reset")
		}
		if err := auth.ResetCredentialFile(cfg.MFASecretFile); err != nil {
			return fmt.Errorf("failed to reset MFA: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s, restart the server to enroll again\n", cfg.MFASecretFile)
		if len(cfg.MFASecret) > 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: MFA_SECRET is still set and takes precedence")
		}
		return nil
	},
}

func init() {
	mfaCmd.AddCommand(mfaResetCmd)
}
