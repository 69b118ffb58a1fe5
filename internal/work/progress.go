package work

import (
	"sync"
	"time"

	"github.com/aristath/custodian/internal/events"
)

// EventEmitter defines the interface for emitting events
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// Throttle interval for progress events (avoid spam)
const progressThrottleInterval = 100 * time.Millisecond

// ProgressReporter reports a task's progress. Every report updates the
// task's pulled state; emitted events are throttled.
type ProgressReporter struct {
	emitter     EventEmitter
	taskID      string
	taskType    string
	description string
	onReport    func(events.JobProgressInfo)

	lastReport time.Time
	mu         sync.Mutex
}

// NewProgressReporter creates a new progress reporter for a task.
// emitter and onReport may be nil.
func NewProgressReporter(emitter EventEmitter, taskID, taskType, description string, onReport func(events.JobProgressInfo)) *ProgressReporter {
	return &ProgressReporter{
		emitter:     emitter,
		taskID:      taskID,
		taskType:    taskType,
		description: description,
		onReport:    onReport,
	}
}

// Report reports numeric progress (current/total) with a message.
func (r *ProgressReporter) Report(current, total int, message string) {
	r.report(events.JobProgressInfo{Current: current, Total: total, Message: message})
}

// ReportPhase reports a named phase with a message.
// This is useful for work that has distinct phases rather than numeric progress.
func (r *ProgressReporter) ReportPhase(phase, message string) {
	r.report(events.JobProgressInfo{Phase: phase, Message: message})
}

// ReportWithDetails reports progress with additional custom details.
func (r *ProgressReporter) ReportWithDetails(current, total int, message string, details map[string]interface{}) {
	r.report(events.JobProgressInfo{Current: current, Total: total, Message: message, Details: details})
}

func (r *ProgressReporter) report(info events.JobProgressInfo) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.onReport != nil {
		r.onReport(info)
	}
	if r.emitter == nil {
		return
	}

	// Throttle progress events
	if time.Since(r.lastReport) < progressThrottleInterval {
		return
	}
	r.lastReport = time.Now()

	r.emit("progress", &info, "", 0)
}

// emitStatus emits a lifecycle event. It is never throttled.
func (r *ProgressReporter) emitStatus(status Status, err error, duration time.Duration) {
	if r == nil || r.emitter == nil {
		return
	}

	name := string(status)
	if status == StatusRunning {
		name = "started"
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	r.emit(name, nil, errMsg, duration)
}

func (r *ProgressReporter) emit(status string, progress *events.JobProgressInfo, errMsg string, duration time.Duration) {
	data := &events.JobStatusData{
		JobID:       r.taskID,
		JobType:     r.taskType,
		Status:      status,
		Description: r.description,
		Progress:    progress,
		Error:       errMsg,
		Duration:    duration.Seconds(),
		Timestamp:   time.Now(),
	}
	r.emitter.EmitTyped(data.EventType(), "work", data)
}
