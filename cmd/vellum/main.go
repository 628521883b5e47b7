// Command vellum answers questions about local PDFs and Gmail messages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"

	"github.com/custodia-labs/vellum/internal/adapters/driven/ai"
	"github.com/custodia-labs/vellum/internal/adapters/driven/config/env"
	"github.com/custodia-labs/vellum/internal/adapters/driven/config/file"
	"github.com/custodia-labs/vellum/internal/adapters/driven/extract/pdf"
	"github.com/custodia-labs/vellum/internal/adapters/driven/mail/eml"
	"github.com/custodia-labs/vellum/internal/adapters/driven/mail/gmail"
	"github.com/custodia-labs/vellum/internal/adapters/driven/storage/chromem"
	"github.com/custodia-labs/vellum/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/vellum/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/vellum/internal/adapters/driving/cli"
	"github.com/custodia-labs/vellum/internal/classifier"
	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
	"github.com/custodia-labs/vellum/internal/core/services"
	"github.com/custodia-labs/vellum/internal/logger"
	"github.com/custodia-labs/vellum/internal/postprocessors/chunker"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// stores groups the persistence adapters selected by the index backend.
type stores struct {
	units     driven.UnitStore
	records   driven.IngestionStore
	syncs     driven.SyncStateStore
	scheduler driven.SchedulerStore
	index     driven.VectorIndex
}

func run(ctx context.Context) error {
	dataDir, err := defaultDataDir()
	if err != nil {
		return err
	}

	overrides, err := env.Load(env.DotEnvFiles(dataDir)...)
	if err != nil {
		return err
	}
	if overrides.DataDir != "" {
		dataDir = overrides.DataDir
	}

	configStore, err := file.NewConfigStore(dataDir)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator(), overrides)
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := settingsService.Validate(settings); err != nil {
		logger.Warn("settings: %v", err)
	}

	sqlStore, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer sqlStore.Close()

	st, closeIndex, err := openStores(sqlStore, settings, dataDir)
	if err != nil {
		return err
	}
	defer closeIndex()

	ownerID := overrides.Owner
	if ownerID == "" {
		ownerID = defaultOwner()
	}
	svcs := cli.Services{Settings: settingsService, OwnerID: ownerID}

	// Without a usable model provider only the settings commands work,
	// so the user can still fix the configuration.
	models, err := ai.NewServices(settings)
	if err != nil {
		logger.Warn("%v", err)
	} else {
		defer models.Close()
		if err := wireServices(&svcs, st, models, settings, dataDir); err != nil {
			return err
		}
	}

	cli.SetVersion(version)
	cli.SetServices(svcs)
	return cli.Execute(ctx)
}

// wireServices builds the ingestion, query and mail services on top of
// the selected stores and model services.
//
//nolint:funlen // composition root
func wireServices(svcs *cli.Services, st stores, models *ai.Services, settings *domain.Settings, dataDir string) error {
	prompts, err := file.NewPromptStore(filepath.Join(dataDir, "prompts"))
	if err != nil {
		return fmt.Errorf("open prompts: %w", err)
	}

	rules := classifier.DefaultEmailRules()
	if settings.Classifier.RulesPath != "" {
		rules, err = classifier.LoadEmailRules(settings.Classifier.RulesPath)
		if err != nil {
			return fmt.Errorf("load classifier rules: %w", err)
		}
	}

	locks := services.NewIngestLocks()
	embedder := services.NewEmbedder(models.EmbeddingService, services.EmbedderConfigFrom(settings.Embedding))
	ingestion := services.NewIngestionService(
		st.units, st.records, st.index,
		classifier.New(settings.Classifier, rules),
		chunker.New(
			chunker.WithPolicies(settings.Chunking),
			chunker.WithMinContentLength(settings.Ingestion.MinContentLength),
		),
		embedder, locks,
		services.IngestionConfig{MaxUnitBytes: settings.Ingestion.MaxUnitBytes},
	)
	intake := services.NewIntakeService(ingestion, pdf.New(), eml.Parser{})

	svcs.Ingestion = ingestion
	svcs.Intake = intake
	svcs.Query = services.NewQueryService(
		st.index, embedder, models.LLMService, prompts, services.QueryConfigFrom(settings),
	)
	svcs.Account = services.NewAccountService(st.index, st.records, st.units, st.syncs, locks)
	svcs.Queue = services.NewTaskQueue(settings.Ingestion.Workers, settings.Ingestion.QueueSize,
		func(name string, rec *domain.IngestionRecord, err error) {
			if err == nil && rec != nil {
				logger.Info("%s: %s (%d/%d chunks)", name, rec.Status, rec.IndexedChunks(), rec.TotalChunks)
			}
		})

	// Mail is optional: without client credentials, sync and auth are unavailable.
	credentials := settings.Mail.CredentialsPath
	if credentials == "" {
		credentials = filepath.Join(dataDir, "credentials.json")
	}
	tokenDir := settings.Mail.TokenPath
	if tokenDir == "" {
		tokenDir = filepath.Join(dataDir, "tokens")
	}
	if auth, err := gmail.NewAuthenticator(credentials, gmail.NewTokenStore(tokenDir)); err == nil {
		svcs.MailAuth = auth
		svcs.MailSync = services.NewMailSyncService(gmail.NewFetcher(auth.Service), intake, st.syncs)
	} else {
		logger.Debug("mail disabled: %v", err)
	}

	svcs.Scheduler = services.NewScheduler(settings.Scheduler, st.scheduler, svcs.MailSync, ingestion,
		services.ScheduleScope{
			OwnerID:    svcs.OwnerID,
			Accounts:   settings.Mail.Accounts,
			FetchLimit: settings.Mail.FetchLimit,
		})
	return nil
}

// openStores selects the vector index backend. The memory backend keeps
// units and records in memory too so the index and its bookkeeping agree.
func openStores(sqlStore *sqlite.Store, settings *domain.Settings, dataDir string) (stores, func(), error) {
	st := stores{
		units:     sqlStore.UnitStore(),
		records:   sqlStore.IngestionStore(),
		syncs:     sqlStore.SyncStateStore(),
		scheduler: sqlStore.SchedulerStore(),
	}
	noop := func() {}

	switch settings.Index.Backend {
	case domain.IndexBackendMemory:
		st.units = memory.NewUnitStore()
		st.records = memory.NewIngestionStore()
		st.syncs = memory.NewSyncStateStore()
		st.index = memory.NewVectorIndex()
		return st, noop, nil

	case domain.IndexBackendChromem:
		path := settings.Index.Path
		if path == "" {
			path = filepath.Join(dataDir, "chromem")
		}
		idx, err := chromem.New(path)
		if err != nil {
			return stores{}, noop, err
		}
		st.index = idx
		return st, func() { _ = idx.Close() }, nil

	default:
		st.index = sqlStore.VectorIndex()
		return st, noop, nil
	}
}

func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".vellum"), nil
}

func defaultOwner() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}
