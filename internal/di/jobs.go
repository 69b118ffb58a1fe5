package di

import (
	"fmt"

	"github.com/aristath/custodian/internal/clientdata"
	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/reliability"
	"github.com/aristath/custodian/internal/scheduler"
	"github.com/aristath/custodian/internal/work"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers every periodic job. The
// scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.PipelineRunner == nil {
		return fmt.Errorf("services must be initialized first")
	}

	sched := scheduler.New(log)

	// Latest input date through the whole pipeline
	processLatest := scheduler.NewProcessLatestDateJob(
		container.Paths,
		container.PipelineRunner,
		container.TaskManager,
		log,
	)
	if err := sched.AddJob(cfg.ProcessSchedule, processLatest); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", processLatest.Name(), err)
	}

	// Expired OpenFIGI and exchange rate cache rows
	cleanup := clientdata.NewCleanupJob(container.ClientDataRepo, log)
	if err := sched.AddJob(cfg.CleanupSchedule, cleanup); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", cleanup.Name(), err)
	}

	// Integrity checks, WAL checkpoints, disk space
	maintenance := reliability.NewDailyMaintenanceJob(map[string]*database.DB{
		database.NamePortfolio:  container.PortfolioDB,
		database.NameClientData: container.ClientDataDB,
	}, cfg.DataDir, log)
	if err := sched.AddJob(cfg.MaintenanceSchedule, maintenance); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", maintenance.Name(), err)
	}

	// Off-site backup with rotation
	if container.BackupService != nil {
		backups := container.BackupService
		retention := cfg.S3.RetentionDays
		backup := scheduler.NewTaskJob("backup", func() work.Spec {
			return backups.ScheduledSpec(retention)
		}, container.TaskManager)
		if err := sched.AddJob(cfg.BackupSchedule, backup); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", backup.Name(), err)
		}
	}

	container.Scheduler = sched
	log.Info().Int("jobs", sched.Entries()).Msg("Jobs registered")
	return nil
}
