/*
aggregate.go - Aggregation Engine

PURPOSE:
  Scans activity logs and attendance entries for a resolved scope and
  produces, per worker, the summed quantity of each task and the total
  days worked.

OWNERSHIP RULE:
  An entry counts only when the owner tag written on it matches the
  worker's owner of record at aggregation time. Activity logged while the
  worker belonged to another group stays with that group and is never
  counted twice.

DETERMINISM:
  Sums are exact decimal additions, so the result does not depend on the
  order entries are supplied in. Output is sorted by worker id.
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Aggregate is one worker's totals for a scope.
type Aggregate struct {
	WorkerID   WorkerID                   `json:"worker_id"`
	TaskTotals map[TaskID]decimal.Decimal `json:"task_totals"`
	DaysWorked decimal.Decimal            `json:"days_worked"`
}

// IsEmpty reports whether the worker has neither activity nor days.
func (a Aggregate) IsEmpty() bool {
	if !a.DaysWorked.IsZero() {
		return false
	}
	for _, q := range a.TaskTotals {
		if !q.IsZero() {
			return false
		}
	}
	return true
}

// Merge sums other into a copy of a.
func (a Aggregate) Merge(other Aggregate) Aggregate {
	out := Aggregate{
		WorkerID:   a.WorkerID,
		TaskTotals: make(map[TaskID]decimal.Decimal, len(a.TaskTotals)+len(other.TaskTotals)),
		DaysWorked: a.DaysWorked.Add(other.DaysWorked),
	}
	for id, q := range a.TaskTotals {
		out.TaskTotals[id] = q
	}
	for id, q := range other.TaskTotals {
		out.TaskTotals[id] = out.TaskTotals[id].Add(q)
	}
	return out
}

type AggregateInput struct {
	Scope      Scope
	Roster     Roster
	Logs       []ActivityLog
	Attendance []Attendance

	// FullRoster keeps workers of the scope that have no activity and no days.
	FullRoster bool
}

type AggregateResult struct {
	Aggregates []Aggregate
	Missing    *MissingReferenceWarning
}

// AggregateActivity applies the range and ownership rules and sums per worker.
func AggregateActivity(in AggregateInput) AggregateResult {
	inScope := make(map[WorkerID]bool, len(in.Scope.WorkerIDs))
	for _, id := range in.Scope.WorkerIDs {
		inScope[id] = true
	}

	byWorker := make(map[WorkerID]*Aggregate)
	get := func(id WorkerID) *Aggregate {
		a, ok := byWorker[id]
		if !ok {
			a = &Aggregate{WorkerID: id, TaskTotals: make(map[TaskID]decimal.Decimal)}
			byWorker[id] = a
		}
		return a
	}

	missing := &MissingReferenceWarning{}
	unknown := make(map[WorkerID]bool)

	for _, entry := range in.Logs {
		if !in.Scope.Period.Contains(entry.Date) {
			continue
		}
		worker, ok := in.Roster[entry.WorkerID]
		if !ok {
			missing.LogEntries++
			unknown[entry.WorkerID] = true
			continue
		}
		if !inScope[entry.WorkerID] || entry.Owner != worker.GroupID {
			continue
		}
		a := get(entry.WorkerID)
		a.TaskTotals[entry.TaskID] = a.TaskTotals[entry.TaskID].Add(entry.Quantity)
	}

	for _, entry := range in.Attendance {
		if !in.Scope.Period.Covers(entry.Period()) {
			continue
		}
		worker, ok := in.Roster[entry.WorkerID]
		if !ok {
			missing.AttendanceEntries++
			unknown[entry.WorkerID] = true
			continue
		}
		if !inScope[entry.WorkerID] || entry.Owner != worker.GroupID {
			continue
		}
		a := get(entry.WorkerID)
		a.DaysWorked = a.DaysWorked.Add(entry.Days)
	}

	result := AggregateResult{}
	for _, id := range in.Scope.WorkerIDs {
		a, ok := byWorker[id]
		if !ok {
			if !in.FullRoster {
				continue
			}
			a = &Aggregate{WorkerID: id, TaskTotals: map[TaskID]decimal.Decimal{}}
		}
		if !in.FullRoster && a.IsEmpty() {
			continue
		}
		result.Aggregates = append(result.Aggregates, *a)
	}
	sort.Slice(result.Aggregates, func(i, j int) bool {
		return result.Aggregates[i].WorkerID < result.Aggregates[j].WorkerID
	})

	if len(unknown) > 0 {
		for id := range unknown {
			missing.WorkerIDs = append(missing.WorkerIDs, id)
		}
		sort.Slice(missing.WorkerIDs, func(i, j int) bool { return missing.WorkerIDs[i] < missing.WorkerIDs[j] })
		result.Missing = missing
	}
	return result
}
