package work

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, task *Task) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := task.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestManager_CompletesTask(t *testing.T) {
	em := events.NewManager(zerolog.Nop())
	ch, unsubscribe := em.Subscribe(16, events.JobStarted, events.JobCompleted)
	defer unsubscribe()

	m := NewManager(em, zerolog.Nop())
	task := m.Start(Spec{
		Type:        "preprocess",
		Description: "2025-07-24",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			p.Report(1, 1, "done")
			return "ok", nil
		},
	})

	snap := waitFor(t, task)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, "ok", snap.Result)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Progress)
	assert.Equal(t, "done", snap.Progress.Message)
	require.NotNil(t, snap.StartedAt)
	require.NotNil(t, snap.FinishedAt)

	started := <-ch
	assert.Equal(t, events.JobStarted, started.Type)
	completed := <-ch
	assert.Equal(t, events.JobCompleted, completed.Type)
	data, ok := completed.Data.(*events.JobStatusData)
	require.True(t, ok)
	assert.Equal(t, task.ID(), data.JobID)
}

func TestManager_FailedTask(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	task := m.Start(Spec{
		Type: "backup",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			return nil, errors.New("bucket missing")
		},
	})

	snap := waitFor(t, task)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "bucket missing", snap.Error)
}

func TestManager_PanicBecomesFailure(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	task := m.Start(Spec{
		Type: "backup",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			panic("boom")
		},
	})

	snap := waitFor(t, task)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "boom")
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	running := make(chan struct{})
	task := m.Start(Spec{
		Type: "preprocess",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			close(running)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	<-running
	require.NoError(t, m.Cancel(task.ID()))

	snap := waitFor(t, task)
	assert.Equal(t, StatusCancelled, snap.Status)

	assert.ErrorIs(t, m.Cancel("missing"), ErrTaskNotFound)
}

func TestManager_TimeoutFails(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	task := m.Start(Spec{
		Type:    "preprocess",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	snap := waitFor(t, task)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "deadline")
}

func TestManager_GetListRunning(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	release := make(chan struct{})
	first := m.Start(Spec{
		Type:        "preprocess",
		Description: "2025-07-24",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			<-release
			return nil, nil
		},
	})
	time.Sleep(5 * time.Millisecond)
	second := m.Start(Spec{
		Type: "backup",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			return nil, nil
		},
	})
	waitFor(t, second)

	got, err := m.Get(first.ID())
	require.NoError(t, err)
	assert.Equal(t, first, got)

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID(), list[0].ID)

	running, ok := m.Running("preprocess", "2025-07-24")
	assert.True(t, ok)
	assert.Equal(t, first, running)
	_, ok = m.Running("backup", "")
	assert.False(t, ok)

	close(release)
	waitFor(t, first)
}

func TestManager_Prune(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	task := m.Start(Spec{
		Type: "backup",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			return nil, nil
		},
	})
	waitFor(t, task)

	assert.Equal(t, 0, m.Prune())

	m.SetRetention(-time.Second)
	assert.Equal(t, 1, m.Prune())
	_, err := m.Get(task.ID())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestManager_ShutdownCancelsTasks(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	task := m.Start(Spec{
		Type: "preprocess",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, StatusCancelled, task.Snapshot().Status)
}

func TestManager_Subscribe(t *testing.T) {
	em := events.NewManager(zerolog.Nop())
	m := NewManager(em, zerolog.Nop())
	release := make(chan struct{})
	task := m.Start(Spec{
		Type: "preprocess",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			<-release
			p.Report(1, 1, "bank done")
			return nil, nil
		},
	})
	other := m.Start(Spec{
		Type: "backup",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			<-release
			return nil, nil
		},
	})

	ch, unsubscribe, err := m.Subscribe(task.ID())
	require.NoError(t, err)
	defer unsubscribe()

	close(release)

	var received []*events.JobStatusData
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case data, ok := <-ch:
			if !ok {
				done = true
				continue
			}
			received = append(received, data)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
	waitFor(t, other)

	require.NotEmpty(t, received)
	for _, d := range received {
		assert.Equal(t, task.ID(), d.JobID)
	}
	assert.Equal(t, "completed", received[len(received)-1].Status)

	_, _, err = m.Subscribe("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestManager_SubscribeWithoutEvents(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	task := m.Start(Spec{
		Type: "backup",
		Run: func(ctx context.Context, p *ProgressReporter) (any, error) {
			return nil, nil
		},
	})
	waitFor(t, task)

	_, _, err := m.Subscribe(task.ID())
	assert.Error(t, err)
}
