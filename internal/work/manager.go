package work

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/custodian/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrTaskNotFound is returned for unknown or pruned task ids.
var ErrTaskNotFound = errors.New("task not found")

// Task is one running or finished unit of work.
type Task struct {
	mu       sync.RWMutex
	snapshot Snapshot
	cancel   context.CancelFunc
	done     chan struct{}
}

// ID returns the task id.
func (t *Task) ID() string {
	return t.snapshot.ID
}

// Snapshot returns a copy of the task's current state.
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.snapshot
	if s.Progress != nil {
		p := *s.Progress
		s.Progress = &p
	}
	return s
}

// Done is closed once the task reached a terminal status.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finished or ctx ends, and returns its snapshot.
func (t *Task) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-t.done:
		return t.Snapshot(), nil
	case <-ctx.Done():
		return t.Snapshot(), ctx.Err()
	}
}

func (t *Task) update(fn func(s *Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.snapshot)
}

// Manager starts and tracks tasks.
type Manager struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	events    EventEmitter
	bus       *events.Manager
	retention time.Duration
	baseCtx   context.Context
	stopAll   context.CancelFunc
	wg        sync.WaitGroup
	log       zerolog.Logger
}

// NewManager creates a task manager. eventManager may be nil.
func NewManager(eventManager *events.Manager, log zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		tasks:     make(map[string]*Task),
		retention: DefaultRetention,
		baseCtx:   ctx,
		stopAll:   cancel,
		log:       log.With().Str("component", "work").Logger(),
	}
	if eventManager != nil {
		m.events = eventManager
		m.bus = eventManager
	}
	return m
}

// SetRetention changes how long finished tasks stay queryable.
func (m *Manager) SetRetention(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retention = d
}

// Start runs spec in a new goroutine and returns its task immediately.
func (m *Manager) Start(spec Spec) *Task {
	m.Prune()

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(m.baseCtx, timeout)

	task := &Task{
		snapshot: Snapshot{
			ID:          uuid.New().String(),
			Type:        spec.Type,
			Description: spec.Description,
			Status:      StatusPending,
			CreatedAt:   time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[task.ID()] = task
	m.mu.Unlock()

	reporter := NewProgressReporter(m.events, task.ID(), spec.Type, spec.Description, func(info events.JobProgressInfo) {
		task.update(func(s *Snapshot) { s.Progress = &info })
	})

	m.wg.Add(1)
	go m.run(ctx, task, spec.Run, reporter)

	return task
}

func (m *Manager) run(ctx context.Context, task *Task, fn Func, reporter *ProgressReporter) {
	defer m.wg.Done()
	defer close(task.done)
	defer task.cancel()

	started := time.Now()
	task.update(func(s *Snapshot) {
		s.Status = StatusRunning
		s.StartedAt = &started
	})
	reporter.emitStatus(StatusRunning, nil, 0)

	log := m.log.With().Str("task_id", task.ID()).Str("type", task.snapshot.Type).Logger()
	log.Info().Str("description", task.snapshot.Description).Msg("Task started")

	result, err := m.call(ctx, fn, reporter)

	finished := time.Now()
	status := StatusCompleted
	switch {
	case err != nil && ctx.Err() == context.Canceled:
		status = StatusCancelled
	case err != nil:
		status = StatusFailed
	}

	task.update(func(s *Snapshot) {
		s.Status = status
		s.Result = result
		s.FinishedAt = &finished
		if err != nil {
			s.Error = err.Error()
		}
	})
	reporter.emitStatus(status, err, finished.Sub(started))

	event := log.Info()
	if status == StatusFailed {
		event = log.Error().Err(err)
	}
	event.Str("status", string(status)).Dur("duration", finished.Sub(started)).Msg("Task finished")
}

func (m *Manager) call(ctx context.Context, fn Func, reporter *ProgressReporter) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx, reporter)
}

// Get returns the task with id.
func (m *Manager) Get(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// List returns snapshots of every retained task, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Subscribe streams the lifecycle and progress events of task id. The
// channel is closed after the task's terminal event or when the returned
// function is called.
func (m *Manager) Subscribe(id string) (<-chan *events.JobStatusData, func(), error) {
	task, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if m.bus == nil {
		return nil, nil, errors.New("task events are not enabled")
	}

	in, unsubscribe := m.bus.Subscribe(64, events.JobStarted, events.JobProgress, events.JobCompleted, events.JobFailed)
	out := make(chan *events.JobStatusData, 16)
	stop := make(chan struct{})
	var once sync.Once
	closeFn := func() { once.Do(func() { close(stop) }) }

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-stop:
				return
			case <-task.done:
				// Terminal event may already be buffered in the subscription.
				for {
					select {
					case ev, ok := <-in:
						if !ok {
							return
						}
						if data, match := matchTask(ev, id); match {
							select {
							case out <- data:
							case <-stop:
								return
							}
						}
					default:
						return
					}
				}
			case ev, ok := <-in:
				if !ok {
					return
				}
				data, match := matchTask(ev, id)
				if !match {
					continue
				}
				select {
				case out <- data:
				case <-stop:
					return
				}
			}
		}
	}()

	return out, closeFn, nil
}

func matchTask(ev events.EventWithData, id string) (*events.JobStatusData, bool) {
	data, ok := ev.Data.(*events.JobStatusData)
	if !ok || data.JobID != id {
		return nil, false
	}
	return data, true
}

// Cancel requests cancellation of a running task. Cancelling a finished
// task is a no-op.
func (m *Manager) Cancel(id string) error {
	task, err := m.Get(id)
	if err != nil {
		return err
	}
	task.cancel()
	return nil
}

// Running reports whether a task of taskType with description is still
// pending or running.
func (m *Manager) Running(taskType, description string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		s := t.Snapshot()
		if s.Type == taskType && s.Description == description && !s.Status.IsTerminal() {
			return t, true
		}
	}
	return nil, false
}

// Prune drops finished tasks older than the retention window.
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.retention)
	pruned := 0
	for id, t := range m.tasks {
		s := t.Snapshot()
		if s.FinishedAt != nil && s.FinishedAt.Before(cutoff) {
			delete(m.tasks, id)
			pruned++
		}
	}
	return pruned
}

// Shutdown cancels every task and waits for them to return or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tasks still running at shutdown: %w", ctx.Err())
	}
}
