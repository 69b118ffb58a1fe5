package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// portfolio.db - snapshots and imported transactions, rebuilt only by recalculation
	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, database.NamePortfolio+".db"),
		Profile: database.ProfileLedger,
		Name:    database.NamePortfolio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portfolio database: %w", err)
	}
	container.PortfolioDB = portfolioDB

	// client_data.db - re-fetchable OpenFIGI and exchange rate responses
	clientDataDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, database.NameClientData+".db"),
		Profile: database.ProfileCache,
		Name:    database.NameClientData,
	})
	if err != nil {
		portfolioDB.Close()
		return nil, fmt.Errorf("failed to initialize client_data database: %w", err)
	}
	container.ClientDataDB = clientDataDB

	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
