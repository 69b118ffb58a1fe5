// Package work runs long operations (batch preprocessing, date calculations,
// backups) as cancellable background tasks.
//
// # Task lifecycle
//
// A Task is created by Manager.Start and moves through
//
//	pending -> running -> completed | failed | cancelled
//
// Every task gets a uuid, its own context (cancelled by Manager.Cancel, by its
// timeout, or on shutdown) and a ProgressReporter.
//
// # Progress
//
// Progress is available both ways:
//   - pull: Manager.Get returns a Snapshot with the latest progress
//   - push: lifecycle and progress events are emitted through events.Manager
//     as JobStatusData (JobStarted, JobProgress, JobCompleted, JobFailed)
//
// Progress events are throttled; the pulled snapshot always holds the latest
// report.
//
// # Retention
//
// Finished tasks stay queryable for the retention window and are pruned on
// the next Start or an explicit Prune.
package work
