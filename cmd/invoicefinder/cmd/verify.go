package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyMailbox string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify credentials, delegation and directory access",
	Long: `Verify the deployment end to end:

  1. The service account key parses
  2. Delegated mailbox access works (one list call)
  3. Directory access works, when an admin email is configured

Run this after changing credentials or delegation scopes.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyMailbox, "mailbox", "", "mailbox to test delegation against (default: first configured)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := buildService()
	if err != nil {
		return err
	}
	fmt.Println("✓ service account key parsed")

	mailbox := verifyMailbox
	if mailbox == "" && len(cfg.Google.Mailboxes) > 0 {
		mailbox = cfg.Google.Mailboxes[0]
	}
	if mailbox == "" {
		mailbox = cfg.Google.AdminEmail
	}
	if mailbox == "" {
		return fmt.Errorf("no mailbox to test; pass --mailbox or configure [google] mailboxes")
	}

	api, err := svc.Mailbox(mailbox)
	if err != nil {
		return fmt.Errorf("delegate to %s: %w", mailbox, err)
	}
	messages, err := api.ListMessages(ctx, "in:inbox", 1)
	if err != nil {
		return fmt.Errorf("list messages in %s: %w\n\nCheck that the Gmail scope is delegated to the service account", mailbox, err)
	}
	fmt.Printf("✓ delegated access to %s (%d message sampled)\n", mailbox, len(messages))

	if cfg.Google.AdminEmail == "" {
		fmt.Println("- directory access skipped (no admin_email configured)")
		return nil
	}

	dir, err := svc.Directory(cfg.Google.AdminEmail)
	if err != nil {
		return fmt.Errorf("create directory client: %w", err)
	}
	if cfg.Google.Domain != "" {
		users, err := dir.ListDomainUsers(ctx, cfg.Google.Domain)
		if err != nil {
			return fmt.Errorf("list users of %s: %w\n\nCheck that the Directory scopes are delegated and %s is an admin", cfg.Google.Domain, err, cfg.Google.AdminEmail)
		}
		fmt.Printf("✓ directory access as %s (%d users in %s)\n", cfg.Google.AdminEmail, len(users), cfg.Google.Domain)
	} else {
		fmt.Println("- domain enumeration skipped (no domain configured)")
	}

	return nil
}
