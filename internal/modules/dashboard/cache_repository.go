package dashboard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// cachePayload is the msgpack blob stored next to the indexed columns.
type cachePayload struct {
	InceptionGainLossDollar  decimal.Decimal         `msgpack:"inception_gain_loss_dollar"`
	InceptionGainLossPercent float64                 `msgpack:"inception_gain_loss_percent"`
	RealGainLossDollar       decimal.Decimal         `msgpack:"real_gain_loss_dollar"`
	RealGainLossPercent      float64                 `msgpack:"real_gain_loss_percent"`
	EstimatedAnnualIncome    decimal.Decimal         `msgpack:"estimated_annual_income"`
	AssetAllocation          domain.Allocation       `msgpack:"asset_allocation"`
	BankAllocation           domain.Allocation       `msgpack:"bank_allocation"`
	BondMaturityBuckets      []domain.MaturityBucket `msgpack:"bond_maturity_buckets"`
	MissingClients           []string                `msgpack:"missing_clients"`
}

// CacheRepository stores one aggregate row per (date, client filter) in the
// dashboard_cache table of portfolio.db.
type CacheRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCacheRepository creates a new dashboard cache repository.
func NewCacheRepository(db *sql.DB, log zerolog.Logger) *CacheRepository {
	return &CacheRepository{
		db:  db,
		log: log.With().Str("repo", "dashboard_cache").Logger(),
	}
}

// ReplaceDate swaps every cached aggregate of date for aggs in one
// transaction, so readers see either the old set or the new one.
func (r *CacheRepository) ReplaceDate(ctx context.Context, date time.Time, aggs []*domain.DateAggregatedMetrics) error {
	_, err := r.Rebuild(ctx, date, func(*sql.Tx) ([]*domain.DateAggregatedMetrics, error) {
		return aggs, nil
	})
	return err
}

// Rebuild runs build and replaces date's cached aggregates with its result,
// all inside one transaction. The snapshots build reads and the rows it
// replaces are therefore consistent. An empty result leaves the cache as is.
func (r *CacheRepository) Rebuild(ctx context.Context, date time.Time, build func(tx *sql.Tx) ([]*domain.DateAggregatedMetrics, error)) ([]*domain.DateAggregatedMetrics, error) {
	day := domain.TruncateDay(date).Unix()

	var aggs []*domain.DateAggregatedMetrics
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		var err error
		if aggs, err = build(tx); err != nil {
			return err
		}
		if len(aggs) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM dashboard_cache WHERE snapshot_date = ?", day); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO dashboard_cache (snapshot_date, client_filter, total_value, client_count, payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare cache insert: %w", err)
		}
		defer stmt.Close()

		for _, agg := range aggs {
			payload, err := msgpack.Marshal(payloadOf(agg))
			if err != nil {
				return fmt.Errorf("failed to encode aggregate %s: %w", agg.ClientFilter, err)
			}
			if agg.UpdatedAt.IsZero() {
				agg.UpdatedAt = time.Now().UTC()
			}
			if _, err := stmt.ExecContext(ctx,
				day,
				agg.ClientFilter,
				agg.TotalValue.String(),
				agg.ClientCount,
				payload,
				agg.UpdatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("failed to insert aggregate %s: %w", agg.ClientFilter, err)
			}
		}
		return nil
	})
	if err != nil {
		if domain.IsFatal(err) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "replace dashboard cache", Err: err}
	}

	r.log.Debug().
		Str("date", date.Format(domain.DateLayout)).
		Int("rows", len(aggs)).
		Msg("Replaced dashboard cache")
	return aggs, nil
}

// Get returns the cached aggregate of (date, filter), or nil.
func (r *CacheRepository) Get(ctx context.Context, date time.Time, filter string) (*domain.DateAggregatedMetrics, error) {
	var (
		total   string
		count   int
		payload []byte
		updated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT total_value, client_count, payload, updated_at
		FROM dashboard_cache WHERE snapshot_date = ? AND client_filter = ?
	`, domain.TruncateDay(date).Unix(), filter).Scan(&total, &count, &payload, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dashboard cache: %w", err)
	}

	var p cachePayload
	if err := msgpack.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate %s: %w", filter, err)
	}
	totalValue, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("invalid cached total %q: %w", total, err)
	}

	return &domain.DateAggregatedMetrics{
		SnapshotDate:             domain.TruncateDay(date),
		ClientFilter:             filter,
		TotalValue:               totalValue,
		InceptionGainLossDollar:  p.InceptionGainLossDollar,
		InceptionGainLossPercent: p.InceptionGainLossPercent,
		RealGainLossDollar:       p.RealGainLossDollar,
		RealGainLossPercent:      p.RealGainLossPercent,
		EstimatedAnnualIncome:    p.EstimatedAnnualIncome,
		ClientCount:              count,
		AssetAllocation:          p.AssetAllocation,
		BankAllocation:           p.BankAllocation,
		BondMaturityBuckets:      p.BondMaturityBuckets,
		MissingClients:           p.MissingClients,
		UpdatedAt:                time.Unix(updated, 0).UTC(),
	}, nil
}

// Filters lists the cached filters of date, sorted.
func (r *CacheRepository) Filters(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT client_filter FROM dashboard_cache WHERE snapshot_date = ? ORDER BY client_filter",
		domain.TruncateDay(date).Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query cached filters: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("failed to scan filter: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func payloadOf(agg *domain.DateAggregatedMetrics) cachePayload {
	return cachePayload{
		InceptionGainLossDollar:  agg.InceptionGainLossDollar,
		InceptionGainLossPercent: agg.InceptionGainLossPercent,
		RealGainLossDollar:       agg.RealGainLossDollar,
		RealGainLossPercent:      agg.RealGainLossPercent,
		EstimatedAnnualIncome:    agg.EstimatedAnnualIncome,
		AssetAllocation:          agg.AssetAllocation,
		BankAllocation:           agg.BankAllocation,
		BondMaturityBuckets:      agg.BondMaturityBuckets,
		MissingClients:           agg.MissingClients,
	}
}
