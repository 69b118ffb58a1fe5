// Package preprocess runs the per-date statement pipeline: detection, then
// enrichment, combination and transformation per bank, then the merge into
// the date's standardized files.
package preprocess

import (
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/events"
	"github.com/aristath/custodian/internal/modules/combination"
	"github.com/aristath/custodian/internal/modules/enrichment"
	"github.com/aristath/custodian/internal/modules/transform"
)

// State is the position of a date's batch in the pipeline.
type State string

const (
	StateIdle       State = "idle"
	StateDetecting  State = "detecting"
	StateProcessing State = "processing"
	StateMerged     State = "merged"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// BankStatus is the terminal state of one bank's sub-pipeline.
type BankStatus string

const (
	BankSucceeded BankStatus = "succeeded"
	BankFailed    BankStatus = "failed"
)

// BankResult is the outcome of one bank.
type BankResult struct {
	Bank            domain.BankCode     `json:"bank"`
	Status          BankStatus          `json:"status"`
	Stage           string              `json:"stage,omitempty"` // stage that failed
	ErrorKind       string              `json:"error_kind,omitempty"`
	Error           string              `json:"error,omitempty"`
	Files           []string            `json:"files"`
	SecurityRows    int                 `json:"security_rows"`
	TransactionRows int                 `json:"transaction_rows"`
	Enrichment      *enrichment.Report  `json:"enrichment,omitempty"`
	Combination     *combination.Result `json:"combination,omitempty"`
	Transform       *transform.Report   `json:"transform,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
	Duration        time.Duration       `json:"duration"`

	output *transform.Output
}

// Quarantined is a file the detector rejected.
type Quarantined struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// BatchResult is the structured outcome of one date. It always lists every
// bank that had files, so partial success is visible.
type BatchResult struct {
	ID               string        `json:"id"`
	Date             time.Time     `json:"date"`
	State            State         `json:"state"`
	Skipped          bool          `json:"skipped"` // output existed and force was not set
	Banks            []*BankResult `json:"banks"`
	Quarantined      []Quarantined `json:"quarantined,omitempty"`
	SecuritiesFile   string        `json:"securities_file,omitempty"`
	TransactionsFile string        `json:"transactions_file,omitempty"`
	SecurityRows     int           `json:"security_rows"`
	TransactionRows  int           `json:"transaction_rows"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Error            string        `json:"error,omitempty"`
}

// Succeeded lists the banks whose output was merged.
func (r *BatchResult) Succeeded() []domain.BankCode {
	return r.banksWith(BankSucceeded)
}

// Failed lists the banks that produced no output.
func (r *BatchResult) Failed() []domain.BankCode {
	return r.banksWith(BankFailed)
}

func (r *BatchResult) banksWith(status BankStatus) []domain.BankCode {
	var out []domain.BankCode
	for _, b := range r.Banks {
		if b.Status == status {
			out = append(out, b.Bank)
		}
	}
	return out
}

// Bank returns the result of bank, or nil when it had no files.
func (r *BatchResult) Bank(bank domain.BankCode) *BankResult {
	for _, b := range r.Banks {
		if b.Bank == bank {
			return b
		}
	}
	return nil
}

func (r *BatchResult) event() *events.BatchCompletedData {
	data := &events.BatchCompletedData{
		BatchID:         r.ID,
		Date:            r.Date.Format(domain.DateLayout),
		State:           string(r.State),
		Skipped:         r.Skipped,
		Quarantined:     len(r.Quarantined),
		SecurityRows:    r.SecurityRows,
		TransactionRows: r.TransactionRows,
	}
	for _, b := range r.Banks {
		data.Banks = append(data.Banks, events.BankOutcome{
			Bank:      string(b.Bank),
			Status:    string(b.Status),
			ErrorKind: b.ErrorKind,
			Error:     b.Error,
		})
	}
	return data
}
