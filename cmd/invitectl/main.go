// Invitectl is the operator CLI for the meeting invite service. It authorizes the
// calendar identity, hashes the admin password and resets MFA enrollment.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xshift/service-meeting-invite/config"
)

var (
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "invitectl",
		Short: "Operator tool for the meeting invite service",
		Long:  `invitectl manages the calendar authorization and admin login of the meeting invite service.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.AddCommand(authorizeCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(mfaCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
