/*
Package engine provides the aggregation and financial-derivation core for
piece-rate agricultural payroll.

PURPOSE:
  Raw activity logs (task quantities per worker per day) and attendance
  entries (days worked per half month) are turned into a chain of period
  reports: the bi-monthly summary, the payroll decompte, the detailed
  payroll, the transfer order, and season/annual rollups. Every monetary
  field is a pure function of stored aggregates, so any report can be
  recomputed and must reproduce the same figures.

KEY CONCEPTS IN THIS FILE (types.go):
  - Worker: roster record with seniority percentage and current group
  - Task / PriceTable: unit prices, with a fallback for unknown ids
  - ActivityLog: immutable quantity entry tagged with its owner group
  - Attendance: days worked for one (worker, year, month, half)

DESIGN PRINCIPLES:
  1. Ownership is a tag written on each entry, never a live lookup
  2. Precision: decimal.Decimal end to end, rounding only at presentation
  3. Reports are tagged unions (ReportKind + policy), see policy.go

SEE ALSO:
  - period.go:    Period Resolver
  - aggregate.go: Aggregation Engine
  - derive.go:    Financial Derivation Engine
  - cascade.go:   Cascade saga for sibling reports
  - rollup.go:    Season / annual rollups
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type GroupID string
type TaskID int
type ReportID string

// =============================================================================
// FIXED BUSINESS CONSTANTS
// =============================================================================

// In-kind indemnity tasks. Their logged quantities never enter the
// operational total; they are paid as daysWorked x unit price.
const (
	LaitTaskID   TaskID = 100
	PanierTaskID TaskID = 101
)

// Statutory withholding rates. RateCNSS + RateAMO == RateCombined.
var (
	RateCombined = decimal.RequireFromString("0.0674")
	RateCNSS     = decimal.RequireFromString("0.0448")
	RateAMO      = decimal.RequireFromString("0.0226")
)

// IsIndemnity reports whether id is one of the in-kind indemnity tasks.
func IsIndemnity(id TaskID) bool {
	return id == LaitTaskID || id == PanierTaskID
}

// =============================================================================
// WORKER
// =============================================================================

type Worker struct {
	ID           WorkerID        `json:"id"`
	Name         string          `json:"name"`
	BankAccount  string          `json:"bank_account,omitempty"`
	CIN          string          `json:"cin,omitempty"`
	CNSSNumber   string          `json:"cnss_number,omitempty"`
	SeniorityPct decimal.Decimal `json:"seniority_pct"`
	Dependents   int             `json:"dependents"`
	GroupID      GroupID         `json:"group_id"`
}

// Roster indexes workers by id.
type Roster map[WorkerID]Worker

func NewRoster(workers []Worker) Roster {
	r := make(Roster, len(workers))
	for _, w := range workers {
		r[w.ID] = w
	}
	return r
}

// =============================================================================
// TASK PRICE TABLE
// =============================================================================

type Task struct {
	ID          TaskID          `json:"id"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

// Placeholders returned for task ids missing from the table.
const (
	UnknownTaskCategory    = "inconnue"
	UnknownTaskDescription = "tâche inconnue"
)

// PriceTable maps task id to its definition.
type PriceTable map[TaskID]Task

func NewPriceTable(tasks []Task) PriceTable {
	pt := make(PriceTable, len(tasks))
	for _, t := range tasks {
		pt[t.ID] = t
	}
	return pt
}

// Lookup never fails: unknown ids get price 0 and placeholder labels.
func (pt PriceTable) Lookup(id TaskID) Task {
	if t, ok := pt[id]; ok {
		return t
	}
	return Task{ID: id, Price: decimal.Zero, Category: UnknownTaskCategory, Description: UnknownTaskDescription}
}

func (pt PriceTable) Price(id TaskID) decimal.Decimal {
	return pt.Lookup(id).Price
}

// Clone returns an independent copy, used when freezing prices into a snapshot.
func (pt PriceTable) Clone() PriceTable {
	out := make(PriceTable, len(pt))
	for k, v := range pt {
		out[k] = v
	}
	return out
}

// =============================================================================
// ACTIVITY LOG
// =============================================================================

// ActivityLog is immutable once written. Owner is the worker's group at the
// time of entry.
type ActivityLog struct {
	ID        string          `json:"id"`
	WorkerID  WorkerID        `json:"worker_id"`
	TaskID    TaskID          `json:"task_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Date      Date            `json:"date"`
	Owner     GroupID         `json:"owner"`
	CreatedAt time.Time       `json:"created_at"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// Half selects the first (1-15) or second (16-end) half of a month.
type Half int

const (
	FirstHalf  Half = 1
	SecondHalf Half = 2
)

func (h Half) Valid() bool { return h == FirstHalf || h == SecondHalf }

// MaxHalfMonthDays bounds Attendance.Days for a single half month.
const MaxHalfMonthDays = 16

// Attendance is keyed by (worker, year, month, half); later writes for the
// same key replace the earlier one.
type Attendance struct {
	WorkerID  WorkerID        `json:"worker_id"`
	Year      int             `json:"year"`
	Month     time.Month      `json:"month"`
	Half      Half            `json:"half"`
	Days      decimal.Decimal `json:"days"`
	Owner     GroupID         `json:"owner"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type AttendanceKey struct {
	WorkerID WorkerID
	Year     int
	Month    time.Month
	Half     Half
}

func (a Attendance) Key() AttendanceKey {
	return AttendanceKey{WorkerID: a.WorkerID, Year: a.Year, Month: a.Month, Half: a.Half}
}

// Period returns the half-month range the entry describes.
func (a Attendance) Period() Period {
	return HalfMonth(a.Year, a.Month, a.Half)
}

// Validate checks the key and the 0-16 day bound.
func (a Attendance) Validate() error {
	switch {
	case a.WorkerID == "":
		return &AttendanceError{Entry: a, Reason: "worker id is required"}
	case a.Year <= 0:
		return &AttendanceError{Entry: a, Reason: "year must be positive"}
	case a.Month < time.January || a.Month > time.December:
		return &AttendanceError{Entry: a, Reason: "month must be 1-12"}
	case !a.Half.Valid():
		return &AttendanceError{Entry: a, Reason: "half must be 1 or 2"}
	case a.Days.IsNegative() || a.Days.GreaterThan(decimal.NewFromInt(MaxHalfMonthDays)):
		return &AttendanceError{Entry: a, Reason: "days must be between 0 and 16"}
	}
	return nil
}
