package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/annualreview/internal/notify"
)

// checkEmailCmd validates the SMTP settings without sending anything
var checkEmailCmd = &cobra.Command{
	Use:   "check-email",
	Short: "Validate the email configuration and list recipient group sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		n, err := notify.CheckConfig(cfg.Email, getLogger())
		if err != nil {
			return fmt.Errorf("email configuration incomplete: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Email configuration OK: %s:%d as %s, %d recipients.\n",
			cfg.Email.SMTPServer, cfg.Email.SMTPPort, cfg.Email.Sender, n)
		return nil
	},
}
