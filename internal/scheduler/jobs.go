package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/work"
	"github.com/rs/zerolog"
)

// DateSource finds the newest date with input.
type DateSource interface {
	LatestDate() (time.Time, error)
}

// DateRunner turns a date into a pipeline task.
type DateRunner interface {
	Spec(date time.Time, force bool) work.Spec
}

// ProcessLatestDateJob runs the pipeline for the newest input date. The run
// is an ordinary task, so it is visible and cancellable like a manual one.
type ProcessLatestDateJob struct {
	dates  DateSource
	runner DateRunner
	tasks  *work.Manager
	log    zerolog.Logger
}

// NewProcessLatestDateJob creates the latest-date job.
func NewProcessLatestDateJob(dates DateSource, runner DateRunner, tasks *work.Manager, log zerolog.Logger) *ProcessLatestDateJob {
	return &ProcessLatestDateJob{
		dates:  dates,
		runner: runner,
		tasks:  tasks,
		log:    log.With().Str("job", "process_latest_date").Logger(),
	}
}

// Run processes the newest date and waits for the task to finish.
func (j *ProcessLatestDateJob) Run() error {
	date, err := j.dates.LatestDate()
	if err != nil {
		return fmt.Errorf("failed to find latest input date: %w", err)
	}

	spec := j.runner.Spec(date, false)
	if task, running := j.tasks.Running(spec.Type, spec.Description); running {
		j.log.Info().
			Str("date", date.Format(domain.DateLayout)).
			Str("task_id", task.ID()).
			Msg("Date already being processed, skipping")
		return nil
	}

	j.log.Info().Str("date", date.Format(domain.DateLayout)).Msg("Processing latest date")
	return waitTask(j.tasks.Start(spec))
}

// Name returns the job name for scheduling and logging.
func (j *ProcessLatestDateJob) Name() string {
	return "process_latest_date"
}

// TaskJob runs a work task on a schedule and waits for it.
type TaskJob struct {
	name  string
	spec  func() work.Spec
	tasks *work.Manager
}

// NewTaskJob creates a job that starts spec() as a task on every tick.
func NewTaskJob(name string, spec func() work.Spec, tasks *work.Manager) *TaskJob {
	return &TaskJob{name: name, spec: spec, tasks: tasks}
}

// Run starts the task and waits for it.
func (j *TaskJob) Run() error {
	return waitTask(j.tasks.Start(j.spec()))
}

// Name returns the job name for scheduling and logging.
func (j *TaskJob) Name() string {
	return j.name
}

func waitTask(task *work.Task) error {
	snap, err := task.Wait(context.Background())
	if err != nil {
		return err
	}
	switch snap.Status {
	case work.StatusCompleted:
		return nil
	case work.StatusCancelled:
		return errors.New("task cancelled")
	default:
		return fmt.Errorf("task %s failed: %s", snap.ID, snap.Error)
	}
}
