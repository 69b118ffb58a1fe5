package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DetectionError is returned when a file matches no bank pattern.
// The file is quarantined and the batch continues.
type DetectionError struct {
	File   string
	Reason string
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("cannot detect bank for %s: %s", e.File, e.Reason)
}

// EnrichmentError fails a single bank's pipeline during enrichment.
type EnrichmentError struct {
	Bank           BankCode
	File           string
	UnmatchedRatio float64
	Err            error
}

func (e *EnrichmentError) Error() string {
	msg := fmt.Sprintf("enrichment failed for %s", e.Bank)
	if e.File != "" {
		msg += " (" + e.File + ")"
	}
	if e.UnmatchedRatio > 0 {
		msg += fmt.Sprintf(": %.1f%% of rows unmatched", e.UnmatchedRatio*100)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// CombinationError fails a single bank's pipeline during combination.
type CombinationError struct {
	Bank            BankCode
	MissingAccounts []string
	Err             error
}

func (e *CombinationError) Error() string {
	msg := fmt.Sprintf("combination failed for %s", e.Bank)
	if len(e.MissingAccounts) > 0 {
		msg += ": missing " + strings.Join(e.MissingAccounts, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CombinationError) Unwrap() error { return e.Err }

// TransformMappingError means a bank file lacks the columns its mapping table expects.
// It is fatal to that bank's output for the date.
type TransformMappingError struct {
	Bank           BankCode
	File           string
	MissingColumns []string
	Err            error
}

func (e *TransformMappingError) Error() string {
	msg := fmt.Sprintf("transform failed for %s", e.Bank)
	if e.File != "" {
		msg += " (" + e.File + ")"
	}
	if len(e.MissingColumns) > 0 {
		msg += ": missing columns " + strings.Join(e.MissingColumns, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformMappingError) Unwrap() error { return e.Err }

// LookupDegraded reports identifiers whose asset type fell back to AssetOther
// because the lookup service was unavailable.
type LookupDegraded struct {
	Identifiers []string
	Err         error
}

func (e *LookupDegraded) Error() string {
	return fmt.Sprintf("identifier lookup degraded for %d identifiers: %v", len(e.Identifiers), e.Err)
}

func (e *LookupDegraded) Unwrap() error { return e.Err }

// InvalidFlowDataError is fatal for one client's calculation.
type InvalidFlowDataError struct {
	Client string
	Reason string
}

func (e *InvalidFlowDataError) Error() string {
	return fmt.Sprintf("invalid cash flow data for client %s: %s", e.Client, e.Reason)
}

// MissingPriorSnapshotWarning is non-fatal: the period return degrades to zero.
type MissingPriorSnapshotWarning struct {
	Client string
	Date   time.Time
}

func (e *MissingPriorSnapshotWarning) Error() string {
	return fmt.Sprintf("no snapshot before %s for client %s", e.Date.Format(DateLayout), e.Client)
}

// AggregationInconsistency lists clients excluded from an aggregate because
// their snapshot for the date is missing.
type AggregationInconsistency struct {
	Date           time.Time
	MissingClients []string
}

func (e *AggregationInconsistency) Error() string {
	return fmt.Sprintf("aggregate for %s excludes clients without snapshots: %s",
		e.Date.Format(DateLayout), strings.Join(e.MissingClients, ", "))
}

// StorageError wraps a persistence failure. It is the only error kind that
// aborts a whole run.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the overall run.
func IsFatal(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ErrorKind returns the taxonomy name of err, or "error" for untyped errors.
func ErrorKind(err error) string {
	var (
		detection   *DetectionError
		enrichment  *EnrichmentError
		combination *CombinationError
		mapping     *TransformMappingError
		lookup      *LookupDegraded
		flow        *InvalidFlowDataError
		prior       *MissingPriorSnapshotWarning
		aggregation *AggregationInconsistency
		storage     *StorageError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &detection):
		return "DetectionError"
	case errors.As(err, &enrichment):
		return "EnrichmentError"
	case errors.As(err, &combination):
		return "CombinationError"
	case errors.As(err, &mapping):
		return "TransformMappingError"
	case errors.As(err, &lookup):
		return "LookupDegraded"
	case errors.As(err, &flow):
		return "InvalidFlowDataError"
	case errors.As(err, &prior):
		return "MissingPriorSnapshotWarning"
	case errors.As(err, &aggregation):
		return "AggregationInconsistency"
	case errors.As(err, &storage):
		return "StorageError"
	default:
		return "error"
	}
}
