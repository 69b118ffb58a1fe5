package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/work"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs int
	err  error
}

func (j *countingJob) Run() error {
	j.runs++
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("0 0 6 * * *", &countingJob{}))
	require.NoError(t, s.AddJob("", &countingJob{}))
	assert.Equal(t, 1, s.Entries())

	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}

	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, 1, job.runs)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &countingJob{}))
	s.Start()
	s.Stop()
}

type fixedDates struct {
	date time.Time
	err  error
}

func (f fixedDates) LatestDate() (time.Time, error) { return f.date, f.err }

type specRunner struct {
	dates   []time.Time
	release chan struct{}
	err     error
}

func (r *specRunner) Spec(date time.Time, force bool) work.Spec {
	r.dates = append(r.dates, date)
	return work.Spec{
		Type:        "process_date",
		Description: date.Format("2006-01-02"),
		Run: func(ctx context.Context, p *work.ProgressReporter) (any, error) {
			if r.release != nil {
				<-r.release
			}
			return nil, r.err
		},
	}
}

var latest = time.Date(2025, 7, 24, 0, 0, 0, 0, time.UTC)

func TestProcessLatestDateJob_Run(t *testing.T) {
	tasks := work.NewManager(nil, zerolog.Nop())
	runner := &specRunner{}
	job := NewProcessLatestDateJob(fixedDates{date: latest}, runner, tasks, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, []time.Time{latest}, runner.dates)
	assert.Equal(t, "process_latest_date", job.Name())

	list := tasks.List()
	require.Len(t, list, 1)
	assert.Equal(t, work.StatusCompleted, list[0].Status)
}

func TestProcessLatestDateJob_TaskFailure(t *testing.T) {
	tasks := work.NewManager(nil, zerolog.Nop())
	job := NewProcessLatestDateJob(fixedDates{date: latest}, &specRunner{err: errors.New("all 3 banks failed")}, tasks, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 banks failed")
}

func TestProcessLatestDateJob_NoInput(t *testing.T) {
	tasks := work.NewManager(nil, zerolog.Nop())
	job := NewProcessLatestDateJob(fixedDates{err: errors.New("no dated directories")}, &specRunner{}, tasks, zerolog.Nop())

	assert.Error(t, job.Run())
	assert.Empty(t, tasks.List())
}

func TestProcessLatestDateJob_SkipsWhileRunning(t *testing.T) {
	tasks := work.NewManager(nil, zerolog.Nop())
	runner := &specRunner{release: make(chan struct{})}
	running := tasks.Start(runner.Spec(latest, true))

	job := NewProcessLatestDateJob(fixedDates{date: latest}, runner, tasks, zerolog.Nop())
	require.NoError(t, job.Run())
	assert.Len(t, tasks.List(), 1)

	close(runner.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := running.Wait(ctx)
	require.NoError(t, err)
}

func TestTaskJob(t *testing.T) {
	tasks := work.NewManager(nil, zerolog.Nop())
	job := NewTaskJob("backup", func() work.Spec {
		return work.Spec{
			Type: "backup",
			Run: func(ctx context.Context, p *work.ProgressReporter) (any, error) {
				return nil, errors.New("bucket missing")
			},
		}
	}, tasks)

	assert.Equal(t, "backup", job.Name())
	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket missing")
}
