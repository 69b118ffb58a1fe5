package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aristath/custodian/internal/clientdata"
	"github.com/aristath/custodian/internal/clients/exchangerate"
	"github.com/aristath/custodian/internal/clients/openfigi"
	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/banks"
	"github.com/aristath/custodian/internal/modules/cash_flows"
	"github.com/aristath/custodian/internal/modules/dashboard"
	"github.com/aristath/custodian/internal/modules/detection"
	"github.com/aristath/custodian/internal/modules/enrichment"
	"github.com/aristath/custodian/internal/modules/pipeline"
	"github.com/aristath/custodian/internal/modules/portfolio"
	"github.com/aristath/custodian/internal/modules/preprocess"
	"github.com/aristath/custodian/internal/modules/standardized"
	"github.com/aristath/custodian/internal/modules/transform"
	"github.com/aristath/custodian/internal/reliability"
	"github.com/aristath/custodian/internal/work"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the repositories over the open databases.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.PortfolioDB == nil || container.ClientDataDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}

	portfolioConn := container.PortfolioDB.Conn()
	container.TransactionRepo = cash_flows.NewTransactionRepository(portfolioConn, log)
	container.SnapshotRepo = portfolio.NewSnapshotRepository(portfolioConn, log)
	container.AggregateCache = dashboard.NewCacheRepository(portfolioConn, log)
	container.RunRepo = preprocess.NewRunRepository(portfolioConn, log)
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	log.Info().Msg("Repositories initialized")
	return nil
}

// InitializeServices creates the clients, the pipeline and the background
// work components.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.SnapshotRepo == nil {
		return fmt.Errorf("repositories must be initialized first")
	}

	container.EventManager = events.NewManager(log)
	container.TaskManager = work.NewManager(container.EventManager, log)

	// Clients
	figiOpts := []openfigi.ClientOption{
		openfigi.WithRateLimit(cfg.Lookup.RatePerMinute),
		openfigi.WithRetry(cfg.Lookup.MaxRetries, time.Second),
		openfigi.WithAttemptTimeout(cfg.Lookup.Timeout),
		openfigi.WithMemoryCache(cache.New(cfg.Lookup.CacheTTL, 2*cfg.Lookup.CacheTTL)),
		openfigi.WithCacheRepository(container.ClientDataRepo),
	}
	if cfg.Lookup.APIKey != "" {
		figiOpts = append(figiOpts, openfigi.WithAPIKey(cfg.Lookup.APIKey))
	}
	container.OpenFIGIClient = openfigi.NewClient(log, figiOpts...)
	container.ExchangeRateClient = exchangerate.NewClient(log, exchangerate.WithCacheRepository(container.ClientDataRepo))

	// Preprocessing
	container.Paths = standardized.Paths{InputRoot: cfg.InputDir, OutputRoot: cfg.OutputDir}
	container.Registry = banks.NewRegistry(banks.Settings{
		Thresholds: enrichment.Thresholds{
			Warn: cfg.EnrichWarnThreshold,
			Fail: cfg.EnrichFailThreshold,
		},
		StrictBanks: cfg.StrictCombineBanks,
		Lookup:      transform.NewFIGILookup(container.OpenFIGIClient),
		Rates:       container.ExchangeRateClient,
	}, log)
	container.Detector = detection.NewDetector(log)
	container.Preprocessor = preprocess.NewPreprocessor(
		preprocess.Config{
			Paths:        container.Paths,
			MappingsFile: mappingsFile(cfg, log),
			Workers:      cfg.Workers,
		},
		container.Registry,
		container.Detector,
		container.RunRepo,
		container.EventManager,
		log,
	)

	// Metrics
	container.PortfolioService = portfolio.NewService(
		container.SnapshotRepo,
		container.TransactionRepo,
		container.Paths,
		container.EventManager,
		log,
	)
	container.DashboardService = dashboard.NewService(
		container.SnapshotRepo,
		container.AggregateCache,
		container.EventManager,
		log,
	)
	container.PipelineRunner = pipeline.NewRunner(
		container.Preprocessor,
		container.PortfolioService,
		container.DashboardService,
		log,
	)

	// Backups
	if cfg.S3.Enabled() {
		store, err := reliability.NewS3Store(context.Background(), reliability.S3StoreConfig{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			store,
			[]*database.DB{container.PortfolioDB},
			cfg.OutputDir,
			cfg.DataDir,
			cfg.S3.Prefix,
			container.EventManager,
			log,
		)
	} else {
		log.Info().Msg("No S3 bucket configured, backups disabled")
	}

	log.Info().Msg("Services initialized")
	return nil
}

// mappingsFile drops a configured workbook that does not exist, so runs
// proceed with unmapped accounts instead of failing every bank.
func mappingsFile(cfg *config.Config, log zerolog.Logger) string {
	if cfg.MappingsFile == "" {
		return ""
	}
	if _, err := os.Stat(cfg.MappingsFile); err != nil {
		log.Warn().Err(err).Str("path", cfg.MappingsFile).Msg("Mappings file not readable")
		return ""
	}
	return cfg.MappingsFile
}
