// Package cli implements the vellum command line.
// It is a driving adapter: commands translate flags and arguments into
// calls on the core driving ports and print the outcome.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/vellum/internal/adapters/driving/watch"
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
	"github.com/custodia-labs/vellum/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// MailAuthenticator runs the OAuth exchange for a mail account.
type MailAuthenticator interface {
	AuthCodeURL(state, redirectURI, verifier string) string
	Exchange(ctx context.Context, account, code, redirectURI, verifier string) error
}

// TaskQueue runs ingestion work in the background.
type TaskQueue interface {
	watch.Queue
	Start(ctx context.Context)
	Pending() int
	Close()
}

// Services holds the driving ports the commands call.
type Services struct {
	Settings  driving.SettingsService
	Ingestion driving.IngestionService
	Intake    driving.IntakeService
	MailSync  driving.MailSyncService
	Query     driving.QueryService
	Account   driving.AccountService
	Scheduler driving.Scheduler
	Queue     TaskQueue
	MailAuth  MailAuthenticator

	// OwnerID is the owner used when --owner is not given.
	OwnerID string
}

// Service references used by commands.
var (
	settingsService  driving.SettingsService
	ingestionService driving.IngestionService
	intakeService    driving.IntakeService
	mailSyncService  driving.MailSyncService
	queryService     driving.QueryService
	accountService   driving.AccountService
	scheduler        driving.Scheduler
	taskQueue        TaskQueue
	mailAuth         MailAuthenticator
	defaultOwner     string
)

// Persistent flags.
var (
	verboseFlag bool
	ownerFlag   string
)

var errNoOwner = errors.New("no owner configured: pass --owner or set VELLUM_OWNER")

var rootCmd = &cobra.Command{
	Use:   "vellum",
	Short: "Ask questions about your PDFs and email",
	Long: `Vellum indexes PDF documents and Gmail messages on this machine and
answers questions about them with a local language model. Every answer
cites the passages it was generated from.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "print debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "owner whose data is used")
}

// SetServices wires the core services into the commands.
func SetServices(s Services) {
	settingsService = s.Settings
	ingestionService = s.Ingestion
	intakeService = s.Intake
	mailSyncService = s.MailSync
	queryService = s.Query
	accountService = s.Account
	scheduler = s.Scheduler
	taskQueue = s.Queue
	mailAuth = s.MailAuth
	defaultOwner = s.OwnerID
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// owner returns the owner for the current command.
func owner() (string, error) {
	if ownerFlag != "" {
		return ownerFlag, nil
	}
	if defaultOwner != "" {
		return defaultOwner, nil
	}
	return "", errNoOwner
}

// commandContext returns the command's context, or a background context
// when the command is run without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
