package dashboard

import (
	"context"
	"database/sql"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/portfolio"
	"github.com/aristath/custodian/internal/utils"
	"github.com/rs/zerolog"
)

// Service recomputes and serves the cached aggregates. Refreshes of the same
// date are serialized; different dates run in parallel.
type Service struct {
	snapshots *portfolio.SnapshotRepository
	cache     *CacheRepository
	events    *events.Manager
	locks     *utils.KeyedMutex
	log       zerolog.Logger
}

// NewService creates the dashboard aggregation service. eventManager may be nil.
func NewService(
	snapshots *portfolio.SnapshotRepository,
	cache *CacheRepository,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		snapshots: snapshots,
		cache:     cache,
		events:    eventManager,
		locks:     utils.NewKeyedMutex(),
		log:       log.With().Str("service", "dashboard").Logger(),
	}
}

// Refresh fully recomputes every aggregate of date: ALL plus one row per
// client with a snapshot on date.
func (s *Service) Refresh(ctx context.Context, date time.Time) error {
	_, err := s.refresh(ctx, date)
	return err
}

// Get returns the aggregate of (date, filter), computing the date's cache on
// a miss. Returns nil when nothing matches the filter on date.
func (s *Service) Get(ctx context.Context, date time.Time, filter string) (*domain.DateAggregatedMetrics, error) {
	if filter == "" {
		filter = domain.ClientFilterAll
	}

	agg, err := s.cache.Get(ctx, date, filter)
	if err != nil {
		return nil, &domain.StorageError{Op: "read dashboard cache", Err: err}
	}
	if agg != nil {
		return agg, nil
	}

	aggs, err := s.refresh(ctx, date)
	if err != nil {
		return nil, err
	}
	for _, a := range aggs {
		if a.ClientFilter == filter {
			return a, nil
		}
	}
	return nil, nil
}

func (s *Service) refresh(ctx context.Context, date time.Time) ([]*domain.DateAggregatedMetrics, error) {
	date = domain.TruncateDay(date)
	dateStr := date.Format(domain.DateLayout)
	unlock := s.locks.Lock(dateStr)
	defer unlock()

	var all *domain.DateAggregatedMetrics
	aggs, err := s.cache.Rebuild(ctx, date, func(tx *sql.Tx) ([]*domain.DateAggregatedMetrics, error) {
		snapshots, err := s.snapshots.ListForDateTx(ctx, tx, date)
		if err != nil {
			return nil, &domain.StorageError{Op: "list snapshots", Err: err}
		}
		if len(snapshots) == 0 {
			return nil, nil
		}
		known, err := s.snapshots.ClientsUpToTx(ctx, tx, date)
		if err != nil {
			return nil, &domain.StorageError{Op: "list clients", Err: err}
		}

		all = Aggregate(date, snapshots, known)
		aggs := make([]*domain.DateAggregatedMetrics, 0, len(snapshots)+1)
		aggs = append(aggs, all)
		for _, snap := range snapshots {
			aggs = append(aggs, ForClient(snap))
		}

		now := time.Now().UTC()
		for _, a := range aggs {
			a.UpdatedAt = now
		}
		return aggs, nil
	})
	if err != nil {
		return nil, err
	}
	if all == nil {
		s.log.Debug().Str("date", dateStr).Msg("No snapshots to aggregate")
		return nil, nil
	}

	if len(all.MissingClients) > 0 {
		s.log.Warn().
			Err(&domain.AggregationInconsistency{Date: date, MissingClients: all.MissingClients}).
			Str("date", dateStr).
			Msg("Aggregate excludes clients without a snapshot")
	}
	s.log.Info().
		Str("date", dateStr).
		Int("clients", all.ClientCount).
		Str("total_value", all.TotalValue.StringFixed(2)).
		Msg("Refreshed dashboard aggregates")

	s.events.EmitTyped(events.AggregateRefreshed, "dashboard", &events.AggregateRefreshedData{
		Date:           dateStr,
		Filters:        len(aggs),
		ClientCount:    all.ClientCount,
		MissingClients: all.MissingClients,
	})

	return aggs, nil
}
