package clientdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// cleanupTimeout bounds one purge pass so a locked client_data.db cannot
// hold the scheduler goroutine.
const cleanupTimeout = 2 * time.Minute

// CleanupJob purges expired security lookups and FX rates once a day. Stale
// rows are useful until then as a fallback for the statement runs.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates the reference-data cleanup job.
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run purges every reference-data table.
func (j *CleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	counts, err := j.repo.PurgeAllExpired(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to purge expired reference data")
		return err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		j.log.Debug().Msg("No expired reference data")
		return nil
	}

	event := j.log.Info()
	for _, table := range Tables {
		event = event.Int64(table.Label(), counts[table])
	}
	event.Int64("total_deleted", total).Msg("Purged expired reference data")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
