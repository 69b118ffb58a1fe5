// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/utils"
	"github.com/joho/godotenv"
)

const envPrefix = "CUSTODIAN_"

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the databases (always absolute)
	InputDir     string // Raw bank statements, one directory per date
	OutputDir    string // Pipeline output, one directory per date
	MappingsFile string // Account -> client mapping workbook
	BaseCurrency string
	LogLevel     string
	Port         int
	DevMode      bool
	Workers      int // Banks processed in parallel per date

	EnrichWarnThreshold float64 // Unmatched ratio that logs a warning
	EnrichFailThreshold float64 // Unmatched ratio that fails the bank
	StrictCombineBanks  []domain.BankCode

	Lookup              LookupConfig
	ProcessSchedule     string // Cron spec (with seconds) of the latest-date run; empty disables it
	BackupSchedule      string
	MaintenanceSchedule string
	CleanupSchedule     string // Expired client-data cache rows
	S3                  S3Config
}

// LookupConfig configures the OpenFIGI identifier lookup.
type LookupConfig struct {
	APIKey        string
	Timeout       time.Duration // Per attempt
	MaxRetries    int
	RatePerMinute int
	CacheTTL      time.Duration
}

// S3Config holds the off-site backup target.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Custom endpoint for S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	RetentionDays   int // 0 keeps every backup
}

// Enabled reports whether backups can be uploaded.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := absDir(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	inputDir, err := absDir(getEnv("INPUT_DIR", filepath.Join(dataDir, "input")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input directory: %w", err)
	}
	outputDir, err := absDir(getEnv("OUTPUT_DIR", filepath.Join(dataDir, "output")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}

	strict, err := parseBanks(getEnvAsList("STRICT_COMBINE_BANKS", nil))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:             dataDir,
		InputDir:            inputDir,
		OutputDir:           outputDir,
		MappingsFile:        getEnv("MAPPINGS_FILE", filepath.Join(dataDir, "Mappings.xlsx")),
		BaseCurrency:        strings.ToUpper(getEnv("BASE_CURRENCY", "USD")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Port:                getEnvAsInt("PORT", 8001),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		Workers:             getEnvAsInt("WORKERS", 4),
		EnrichWarnThreshold: getEnvAsFloat("ENRICH_WARN_THRESHOLD", 0.05),
		EnrichFailThreshold: getEnvAsFloat("ENRICH_FAIL_THRESHOLD", 0.5),
		StrictCombineBanks:  strict,
		Lookup: LookupConfig{
			APIKey:        getEnv("OPENFIGI_API_KEY", ""),
			Timeout:       getEnvAsDuration("LOOKUP_TIMEOUT", 15*time.Second),
			MaxRetries:    getEnvAsInt("LOOKUP_MAX_RETRIES", 3),
			RatePerMinute: getEnvAsInt("LOOKUP_RATE_LIMIT", 25),
			CacheTTL:      getEnvAsDuration("LOOKUP_CACHE_TTL", 24*time.Hour),
		},
		ProcessSchedule:     getEnv("PROCESS_SCHEDULE", "0 0 6 * * *"),
		BackupSchedule:      getEnv("BACKUP_SCHEDULE", "0 30 3 * * *"),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 0 2 * * *"),
		CleanupSchedule:     getEnv("CLEANUP_SCHEDULE", "0 15 2 * * *"),
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("S3_PREFIX", "custodian-backups"),
			RetentionDays:   getEnvAsInt("S3_RETENTION_DAYS", 30),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.EnrichWarnThreshold < 0 || c.EnrichWarnThreshold > 1 {
		return fmt.Errorf("enrich warn threshold must be within [0, 1], got %v", c.EnrichWarnThreshold)
	}
	if c.EnrichFailThreshold < c.EnrichWarnThreshold || c.EnrichFailThreshold > 1 {
		return fmt.Errorf("enrich fail threshold must be within [warn, 1], got %v", c.EnrichFailThreshold)
	}
	if c.Lookup.MaxRetries < 1 {
		return fmt.Errorf("lookup max retries must be at least 1, got %d", c.Lookup.MaxRetries)
	}
	if c.Lookup.RatePerMinute < 1 {
		return fmt.Errorf("lookup rate limit must be at least 1 per minute, got %d", c.Lookup.RatePerMinute)
	}
	if c.S3.RetentionDays < 0 {
		return fmt.Errorf("backup retention must not be negative, got %d", c.S3.RetentionDays)
	}
	if c.S3.Enabled() && (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return fmt.Errorf("S3 access key id and secret must be set together")
	}
	return nil
}

func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", err
	}
	return abs, nil
}

func parseBanks(codes []string) ([]domain.BankCode, error) {
	var banks []domain.BankCode
	for _, c := range codes {
		b, err := domain.ParseBankCode(c)
		if err != nil {
			return nil, fmt.Errorf("invalid %sSTRICT_COMBINE_BANKS entry: %w", envPrefix, err)
		}
		banks = append(banks, b)
	}
	return banks, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := utils.ParseCSV(os.Getenv(envPrefix + key)); value != nil {
		return value
	}
	return defaultValue
}
