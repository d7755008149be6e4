/*
errors.go - Centralized error and warning types for the engine

ERROR CATEGORIES:
  1. Scope errors     - malformed period descriptors, raised before aggregation
  2. Cascade errors   - sibling reports that failed to persist
  3. Input errors     - invalid attendance, non-editable adjustments
  4. Lookup errors    - missing snapshots, workers, cascade runs

WARNINGS:
  Warnings are returned beside results and never abort an operation:
  - MissingReferenceWarning: entries referencing workers absent from the roster
  - StaleAggregationWarning: attendance corrected after a report was aggregated

The formula pipeline itself never fails.
*/
package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrScopeResolution is returned for malformed period descriptors.
	ErrScopeResolution = errors.New("scope resolution failed")

	// ErrIncompleteCascade is returned when sibling reports were only partly persisted.
	ErrIncompleteCascade = errors.New("incomplete cascade")

	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrSnapshotExists     = errors.New("snapshot already exists")
	ErrWorkerNotFound     = errors.New("worker not found")
	ErrCascadeRunNotFound = errors.New("cascade run not found")

	// ErrInvalidAttendance is returned for attendance outside its bounds.
	ErrInvalidAttendance = errors.New("invalid attendance entry")

	// ErrNotEditable is returned when an adjustment targets a field the
	// report kind does not expose.
	ErrNotEditable = errors.New("adjustment not editable for report kind")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ScopeResolutionError explains why a period descriptor could not be resolved.
type ScopeResolutionError struct {
	Kind   PeriodKind
	Reason string
}

func (e *ScopeResolutionError) Error() string {
	return fmt.Sprintf("resolve %s scope: %s", e.Kind, e.Reason)
}

func (e *ScopeResolutionError) Unwrap() error { return ErrScopeResolution }

// IncompleteCascadeError lists which sibling reports landed and which did not,
// so a retry can target only the failed ones.
type IncompleteCascadeError struct {
	RunID     string
	Succeeded []ReportKind
	Failed    map[ReportKind]error
}

func (e *IncompleteCascadeError) Error() string {
	failed := make([]string, 0, len(e.Failed))
	for k, err := range e.Failed {
		failed = append(failed, fmt.Sprintf("%s: %v", k, err))
	}
	sort.Strings(failed)
	if e.RunID == "" {
		return fmt.Sprintf("cascade incomplete: %d succeeded, failed [%s]", len(e.Succeeded), strings.Join(failed, "; "))
	}
	return fmt.Sprintf("cascade %s incomplete: %d succeeded, failed [%s]",
		e.RunID, len(e.Succeeded), strings.Join(failed, "; "))
}

func (e *IncompleteCascadeError) Unwrap() error { return ErrIncompleteCascade }

// AttendanceError carries the offending entry.
type AttendanceError struct {
	Entry  Attendance
	Reason string
}

func (e *AttendanceError) Error() string {
	return fmt.Sprintf("attendance %s %d-%02d half %d: %s",
		e.Entry.WorkerID, e.Entry.Year, int(e.Entry.Month), e.Entry.Half, e.Reason)
}

func (e *AttendanceError) Unwrap() error { return ErrInvalidAttendance }

// NotEditableError names the report kind and the rejected field.
type NotEditableError struct {
	Kind  ReportKind
	Field AdjustmentField
}

func (e *NotEditableError) Error() string {
	return fmt.Sprintf("%s reports do not accept %s adjustments", e.Kind, e.Field)
}

func (e *NotEditableError) Unwrap() error { return ErrNotEditable }

// =============================================================================
// WARNINGS
// =============================================================================

// Warning is a non-fatal condition reported alongside a result.
type Warning interface {
	error
	Code() string
}

// MissingReferenceWarning counts skipped entries whose worker is not on the roster.
type MissingReferenceWarning struct {
	LogEntries        int
	AttendanceEntries int
	WorkerIDs         []WorkerID
}

func (w *MissingReferenceWarning) Error() string {
	return fmt.Sprintf("skipped %d log and %d attendance entries for %d unknown workers",
		w.LogEntries, w.AttendanceEntries, len(w.WorkerIDs))
}

func (w *MissingReferenceWarning) Code() string { return "missing_reference" }

// StaleAggregationWarning signals that attendance changed after the report was
// aggregated. Recomputation still uses the stored aggregation.
type StaleAggregationWarning struct {
	ReportID     ReportID
	AggregatedAt time.Time
	CorrectedAt  time.Time
	WorkerIDs    []WorkerID
}

func (w *StaleAggregationWarning) Error() string {
	return fmt.Sprintf("report %s aggregated at %s predates attendance corrections at %s for %d workers",
		w.ReportID, w.AggregatedAt.Format(time.RFC3339), w.CorrectedAt.Format(time.RFC3339), len(w.WorkerIDs))
}

func (w *StaleAggregationWarning) Code() string { return "stale_aggregation" }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrScopeResolution) ||
		errors.Is(err, ErrInvalidAttendance) ||
		errors.Is(err, ErrNotEditable) ||
		errors.Is(err, ErrWorkerNotFound)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound) ||
		errors.Is(err, ErrCascadeRunNotFound)
}

// IsRetryable returns true if retrying the failed part may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIncompleteCascade)
}
