package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// BankOutcome summarizes one bank of a preprocess batch.
type BankOutcome struct {
	Bank      string `json:"bank"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchCompletedData contains data for BatchCompleted events
type BatchCompletedData struct {
	BatchID         string        `json:"batch_id"`
	Date            string        `json:"date"`
	State           string        `json:"state"`
	Skipped         bool          `json:"skipped"`
	Banks           []BankOutcome `json:"banks"`
	Quarantined     int           `json:"quarantined"`
	SecurityRows    int           `json:"security_rows"`
	TransactionRows int           `json:"transaction_rows"`
}

// EventType returns the event type for BatchCompletedData
func (d *BatchCompletedData) EventType() EventType {
	return BatchCompleted
}

// SnapshotCalculatedData contains data for SnapshotCalculated events
type SnapshotCalculatedData struct {
	ClientCode string `json:"client_code"`
	Date       string `json:"date"`
	TotalValue string `json:"total_value"`
	Warning    string `json:"warning,omitempty"`
}

// EventType returns the event type for SnapshotCalculatedData
func (d *SnapshotCalculatedData) EventType() EventType {
	return SnapshotCalculated
}

// AggregateRefreshedData contains data for AggregateRefreshed events
type AggregateRefreshedData struct {
	Date           string   `json:"date"`
	Filters        int      `json:"filters"`
	ClientCount    int      `json:"client_count"`
	MissingClients []string `json:"missing_clients,omitempty"`
}

// EventType returns the event type for AggregateRefreshedData
func (d *AggregateRefreshedData) EventType() EventType {
	return AggregateRefreshed
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// JobProgressInfo contains progress information for a job.
type JobProgressInfo struct {
	Current int                    `json:"current"`
	Total   int                    `json:"total"`
	Message string                 `json:"message,omitempty"`
	Phase   string                 `json:"phase,omitempty"` // e.g. "detecting", "transforming"
	Details map[string]interface{} `json:"details,omitempty"`
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobID       string           `json:"job_id"`
	JobType     string           `json:"job_type"`
	Status      string           `json:"status"` // "started", "progress", "completed", "failed", "cancelled"
	Description string           `json:"description"`
	Progress    *JobProgressInfo `json:"progress,omitempty"`
	Error       string           `json:"error,omitempty"`
	Duration    float64          `json:"duration,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// EventType returns the event type for JobStatusData
// Note: The actual event type is determined by the Status field
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "started":
		return JobStarted
	case "progress":
		return JobProgress
	case "completed":
		return JobCompleted
	case "failed", "cancelled":
		return JobFailed
	default:
		return JobStarted
	}
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 {
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case BatchCompleted:
		eventData = &BatchCompletedData{}
	case SnapshotCalculated:
		eventData = &SnapshotCalculatedData{}
	case AggregateRefreshed:
		eventData = &AggregateRefreshedData{}
	case BackupCompleted:
		eventData = &BackupCompletedData{}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	case JobStarted, JobProgress, JobCompleted, JobFailed:
		eventData = &JobStatusData{}
	default:
		eventData = &GenericEventData{Type: aux.Type}
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
