// Package pipeline chains one date end to end: preprocess the statements,
// calculate every client's snapshot, then refresh the dashboard aggregates.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/portfolio"
	"github.com/aristath/custodian/internal/modules/preprocess"
	"github.com/aristath/custodian/internal/work"
	"github.com/rs/zerolog"
)

// TaskType is the work task type of a date run.
const TaskType = "process_date"

// Preprocessor builds a date's standardized files.
type Preprocessor interface {
	Process(ctx context.Context, date time.Time, opts preprocess.Options) (*preprocess.BatchResult, error)
}

// Calculator writes the snapshots of a date.
type Calculator interface {
	CalculateDate(ctx context.Context, date time.Time, clients ...string) (*portfolio.DateResult, error)
}

// Refresher rebuilds a date's aggregates.
type Refresher interface {
	Refresh(ctx context.Context, date time.Time) error
}

// Options control one Run.
type Options struct {
	Force    bool
	Progress *work.ProgressReporter // may be nil
}

// Result is what a Run produced, stage by stage. Later stages are nil when an
// earlier one stopped the run.
type Result struct {
	Date        time.Time               `json:"date"`
	Batch       *preprocess.BatchResult `json:"batch"`
	Calculation *portfolio.DateResult   `json:"calculation,omitempty"`
	Refreshed   bool                    `json:"refreshed"`
}

// Runner runs dates through every stage.
type Runner struct {
	preprocessor Preprocessor
	calculator   Calculator
	refresher    Refresher
	log          zerolog.Logger
}

// NewRunner creates a date runner.
func NewRunner(preprocessor Preprocessor, calculator Calculator, refresher Refresher, log zerolog.Logger) *Runner {
	return &Runner{
		preprocessor: preprocessor,
		calculator:   calculator,
		refresher:    refresher,
		log:          log.With().Str("service", "pipeline").Logger(),
	}
}

// Run processes date. Snapshots are recalculated even when the preprocess
// step was skipped because its output already existed.
func (r *Runner) Run(ctx context.Context, date time.Time, opts Options) (*Result, error) {
	date = domain.TruncateDay(date)
	result := &Result{Date: date}
	log := r.log.With().Str("date", date.Format(domain.DateLayout)).Logger()

	opts.Progress.ReportPhase("preprocessing", "Processing bank statements")
	batch, err := r.preprocessor.Process(ctx, date, preprocess.Options{
		Force:    opts.Force,
		Progress: opts.Progress.Report,
	})
	result.Batch = batch
	if err != nil {
		return result, err
	}
	if batch.State == preprocess.StateFailed {
		return result, fmt.Errorf("preprocess of %s failed: %s", date.Format(domain.DateLayout), batch.Error)
	}

	opts.Progress.ReportPhase("calculating", "Calculating client snapshots")
	calc, err := r.calculator.CalculateDate(ctx, date)
	result.Calculation = calc
	if err != nil {
		return result, err
	}

	opts.Progress.ReportPhase("aggregating", "Refreshing dashboard aggregates")
	if err := r.refresher.Refresh(ctx, date); err != nil {
		return result, err
	}
	result.Refreshed = true

	log.Info().
		Bool("skipped_preprocess", batch.Skipped).
		Int("banks_failed", len(batch.Failed())).
		Int("clients", len(calc.Succeeded())).
		Int("clients_failed", len(calc.Failed())).
		Msg("Date processed")

	return result, nil
}

// Spec wraps a run of date as a work task.
func (r *Runner) Spec(date time.Time, force bool) work.Spec {
	date = domain.TruncateDay(date)
	return work.Spec{
		Type:        TaskType,
		Description: date.Format(domain.DateLayout),
		Run: func(ctx context.Context, progress *work.ProgressReporter) (any, error) {
			return r.Run(ctx, date, Options{Force: force, Progress: progress})
		},
	}
}
