package engine

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// ADJUSTMENT RECOMPUTATION
// =============================================================================

// Recompute applies edited adjustments to a stored snapshot and re-derives
// every line from its stored aggregation and the snapshot's frozen prices.
// Live logs are never read, so TotalOperation, Anciennete and DaysWorked
// cannot move. Same edits in, same snapshot out.
//
// An edit replaces every field the kind exposes for that worker: a field
// left empty in the edit is cleared. Carried fields and other workers'
// lines are kept. Fields the kind does not expose are rejected.
func Recompute(snap Snapshot, edits map[WorkerID]Adjustments, at time.Time) (Snapshot, error) {
	policy, ok := PolicyFor(snap.Kind)
	if !ok {
		return Snapshot{}, fmt.Errorf("recompute %s: unknown report kind %q", snap.ID, snap.Kind)
	}

	for id, adj := range edits {
		if _, ok := snap.Line(id); !ok {
			return Snapshot{}, fmt.Errorf("recompute %s: %w: %s", snap.ID, ErrWorkerNotFound, id)
		}
		if extra := adj.Fields() &^ policy.Editable; extra != NoFields {
			return Snapshot{}, &NotEditableError{Kind: snap.Kind, Field: extra}
		}
	}
	return rederive(snap, policy, edits, policy.Editable, at), nil
}

// CarryEdits re-derives member after edits were made on a report of kind
// from in the same cascade. The fields from exposes are copied onto the
// member's lines; the member's policy then decides which of them apply.
// Workers missing from member are skipped.
func CarryEdits(member Snapshot, from ReportKind, edits map[WorkerID]Adjustments, at time.Time) (Snapshot, error) {
	policy, ok := PolicyFor(member.Kind)
	if !ok {
		return Snapshot{}, fmt.Errorf("carry edits to %s: unknown report kind %q", member.ID, member.Kind)
	}
	source, ok := PolicyFor(from)
	if !ok {
		return Snapshot{}, fmt.Errorf("carry edits to %s: unknown report kind %q", member.ID, from)
	}
	return rederive(member, policy, edits, source.Editable, at), nil
}

func rederive(snap Snapshot, policy Policy, edits map[WorkerID]Adjustments, set AdjustmentField, at time.Time) Snapshot {
	out := snap.Clone()
	for i := range out.Lines {
		line := &out.Lines[i]
		if adj, ok := edits[line.WorkerID]; ok {
			line.Adjustments = line.Adjustments.Overlay(adj, set)
		}
		line.Adjustments = line.Adjustments.Mask(policy.Applied())
		if !out.Kind.IsRollup() {
			line.Base = BaseFor(line.Aggregate(), out.Prices)
		}
		line.Figures = Derive(DeriveInput{
			Base:         line.Base,
			SeniorityPct: line.SeniorityPct,
			Adjustments:  line.Adjustments,
			Policy:       policy,
		})
	}
	out.summarize()
	out.UpdatedAt = at
	return out
}

// CheckStaleness returns a warning when attendance for the snapshot's
// workers and range was written after the snapshot was aggregated.
func CheckStaleness(snap Snapshot, attendance []Attendance) *StaleAggregationWarning {
	workers := make(map[WorkerID]bool, len(snap.Lines))
	for _, l := range snap.Lines {
		workers[l.WorkerID] = true
	}

	var latest time.Time
	stale := make(map[WorkerID]bool)
	for _, a := range attendance {
		if !workers[a.WorkerID] || !snap.Params.Period.Covers(a.Period()) {
			continue
		}
		if !a.UpdatedAt.After(snap.AggregatedAt) {
			continue
		}
		stale[a.WorkerID] = true
		if a.UpdatedAt.After(latest) {
			latest = a.UpdatedAt
		}
	}
	if len(stale) == 0 {
		return nil
	}

	w := &StaleAggregationWarning{ReportID: snap.ID, AggregatedAt: snap.AggregatedAt, CorrectedAt: latest}
	for id := range stale {
		w.WorkerIDs = append(w.WorkerIDs, id)
	}
	sort.Slice(w.WorkerIDs, func(i, j int) bool { return w.WorkerIDs[i] < w.WorkerIDs[j] })
	return w
}
