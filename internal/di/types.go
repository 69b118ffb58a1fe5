// Package di provides dependency injection type definitions.
//
// The Container holds every application dependency. It is built by Wire and
// handed to the HTTP server and the entry point.
package di

import (
	"github.com/aristath/custodian/internal/clientdata"
	"github.com/aristath/custodian/internal/clients/exchangerate"
	"github.com/aristath/custodian/internal/clients/openfigi"
	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/banks"
	"github.com/aristath/custodian/internal/modules/cash_flows"
	"github.com/aristath/custodian/internal/modules/dashboard"
	"github.com/aristath/custodian/internal/modules/detection"
	"github.com/aristath/custodian/internal/modules/pipeline"
	"github.com/aristath/custodian/internal/modules/portfolio"
	"github.com/aristath/custodian/internal/modules/preprocess"
	"github.com/aristath/custodian/internal/modules/standardized"
	"github.com/aristath/custodian/internal/reliability"
	"github.com/aristath/custodian/internal/scheduler"
	"github.com/aristath/custodian/internal/work"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases
	PortfolioDB  *database.DB // snapshots, transactions, run history, aggregate cache
	ClientDataDB *database.DB // external API response cache

	// Repositories
	TransactionRepo *cash_flows.TransactionRepository
	SnapshotRepo    *portfolio.SnapshotRepository
	AggregateCache  *dashboard.CacheRepository
	RunRepo         *preprocess.RunRepository
	ClientDataRepo  *clientdata.Repository

	// Clients
	OpenFIGIClient     *openfigi.Client
	ExchangeRateClient *exchangerate.Client

	// Services
	EventManager     *events.Manager
	Paths            standardized.Paths
	Registry         *banks.Registry
	Detector         *detection.Detector
	Preprocessor     *preprocess.Preprocessor
	PortfolioService *portfolio.Service
	DashboardService *dashboard.Service
	PipelineRunner   *pipeline.Runner
	BackupService    *reliability.BackupService // nil when no backup target is configured

	// Background work
	TaskManager *work.Manager
	Scheduler   *scheduler.Scheduler
}

// Databases lists the open databases.
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.PortfolioDB, c.ClientDataDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes every database. The first error is returned.
func (c *Container) Close() error {
	var first error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
