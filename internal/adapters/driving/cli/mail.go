package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/vellum/internal/adapters/driving/oauth"
)

// authTimeout bounds how long mail auth waits for the browser consent.
const authTimeout = 5 * time.Minute

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Connect and synchronise Gmail accounts",
}

var mailAuthCmd = &cobra.Command{
	Use:   "auth [account]",
	Short: "Authorise read-only access to a Gmail account",
	Long: `Opens the Google consent page in the browser and stores the resulting
token for the account. Access is read-only.

The OAuth client credentials file is set with:
  vellum settings set mail.credentials_path /path/to/credentials.json`,
	Args: cobra.ExactArgs(1),
	RunE: runMailAuth,
}

var mailSyncCmd = &cobra.Command{
	Use:   "sync [account...]",
	Short: "Fetch and index new messages",
	Long: `Fetches messages received since the last sync and indexes them.
Without arguments every configured account is synchronised.`,
	RunE: runMailSync,
}

var (
	mailSyncSince  string
	mailSyncLimit  int
	mailAuthPort   int
	mailAuthNoOpen bool
)

func init() {
	mailAuthCmd.Flags().IntVar(&mailAuthPort, "port", 0, "callback port (0 = any free port)")
	mailAuthCmd.Flags().BoolVar(&mailAuthNoOpen, "no-browser", false, "print the consent URL instead of opening it")
	mailSyncCmd.Flags().StringVar(&mailSyncSince, "since", "", "only fetch messages after this date (YYYY-MM-DD)")
	mailSyncCmd.Flags().IntVarP(&mailSyncLimit, "limit", "n", 0, "maximum messages per account (0 = configured default)")

	mailCmd.AddCommand(mailAuthCmd)
	mailCmd.AddCommand(mailSyncCmd)
	rootCmd.AddCommand(mailCmd)
}

func runMailAuth(cmd *cobra.Command, args []string) error {
	if mailAuth == nil {
		return errors.New("mail credentials not configured: set mail.credentials_path")
	}
	account := args[0]

	state, err := oauth.GenerateState()
	if err != nil {
		return err
	}
	verifier := oauth2.GenerateVerifier()

	server := oauth.NewCallbackServer(mailAuthPort, state)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	defer func() { _ = server.Stop() }()

	redirectURI := server.RedirectURI()
	authURL := mailAuth.AuthCodeURL(state, redirectURI, verifier)

	if mailAuthNoOpen {
		cmd.Printf("Open this URL to authorise %s:\n\n  %s\n\n", account, authURL)
	} else {
		cmd.Printf("Opening the browser to authorise %s...\n", account)
		if err := oauth.OpenBrowser(authURL); err != nil {
			cmd.Printf("Could not open a browser. Open this URL instead:\n\n  %s\n\n", authURL)
		}
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), authTimeout)
	defer cancel()

	code, err := server.WaitForCode(ctx)
	if err != nil {
		return fmt.Errorf("authorisation failed: %w", err)
	}

	if err := mailAuth.Exchange(ctx, account, code, redirectURI, verifier); err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	cmd.Printf("Account %s connected.\n", account)
	return nil
}

func runMailSync(cmd *cobra.Command, args []string) error {
	if mailSyncService == nil {
		return errors.New("mail sync not configured")
	}
	ownerID, err := owner()
	if err != nil {
		return err
	}

	var since time.Time
	if mailSyncSince != "" {
		since, err = time.Parse(time.DateOnly, mailSyncSince)
		if err != nil {
			return fmt.Errorf("invalid --since date %q: %w", mailSyncSince, err)
		}
	}

	accounts := args
	limit := mailSyncLimit
	if settingsService != nil {
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		if len(accounts) == 0 {
			accounts = settings.Mail.Accounts
		}
		if limit == 0 {
			limit = settings.Mail.FetchLimit
		}
	}
	if len(accounts) == 0 {
		return errors.New("no mail accounts: pass one or set mail.accounts")
	}

	ctx := commandContext(cmd)
	var errs []error
	for _, account := range accounts {
		cmd.Printf("Synchronising %s...\n", account)
		report, err := mailSyncService.Sync(ctx, ownerID, account, since, limit)
		if report != nil {
			cmd.Printf("  %d fetched, %d completed, %d partial, %d failed\n",
				report.Fetched, report.Completed, report.Partial, report.Failed)
		}
		if err != nil {
			cmd.Printf("  error: %v\n", err)
			errs = append(errs, fmt.Errorf("%s: %w", account, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sync failed: %w", errors.Join(errs...))
	}
	return nil
}
