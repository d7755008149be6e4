/*
rollup.go - Season and annual summaries

PURPOSE:
  Merges persisted bi-monthly reports into one summary without touching
  raw logs. Each source line is priced with its own report's frozen
  prices, the resulting Bases are summed per worker, and the rest of the
  pipeline runs once over the combined Base. Summing already-derived net
  figures would compound per-period rounding and is never done. Holiday
  pay set on the sources is summed and carried as the line's holiday pay.

OUTPUT RULES:
  - workers with combined netPay <= 0 are dropped
  - each line is classified into a sub-group for subtotals
  - lines are sorted by worker name, then id
*/
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type RollupInput struct {
	ID         ReportID
	Kind       ReportKind
	Descriptor PeriodDescriptor
	Scope      Scope

	// Roster supplies current names and banking details; lines of workers
	// no longer on it keep the details stored in the latest source.
	Roster   Roster
	Classify Classifier
	At       time.Time
}

type rollupAcc struct {
	latest  Line
	agg     Aggregate
	base    Base
	holiday decimal.Decimal

	// hasHoliday is set once any source line carries holiday pay.
	hasHoliday bool
}

// Rollup builds a season or annual summary from Scope.Sources.
func Rollup(in RollupInput) (Snapshot, error) {
	if !in.Kind.IsRollup() {
		return Snapshot{}, fmt.Errorf("rollup: %s is not a rollup kind", in.Kind)
	}
	policy, _ := PolicyFor(in.Kind)

	wanted := make(map[WorkerID]bool, len(in.Scope.WorkerIDs))
	for _, id := range in.Scope.WorkerIDs {
		wanted[id] = true
	}

	acc := make(map[WorkerID]*rollupAcc)
	var sourceIDs []ReportID
	for _, src := range in.Scope.Sources {
		sourceIDs = append(sourceIDs, src.ID)
		for _, l := range src.Lines {
			if !wanted[l.WorkerID] {
				continue
			}
			a, ok := acc[l.WorkerID]
			if !ok {
				a = &rollupAcc{agg: Aggregate{WorkerID: l.WorkerID, TaskTotals: map[TaskID]decimal.Decimal{}}}
				acc[l.WorkerID] = a
			}
			a.agg = a.agg.Merge(l.Aggregate())
			a.base = a.base.Add(BaseFor(l.Aggregate(), src.Prices))
			a.latest = l
			if l.Adjustments.HolidayPay != nil {
				a.holiday = a.holiday.Add(l.Figures.JourFerier)
				a.hasHoliday = true
			}
		}
	}

	snap := Snapshot{
		ID:   in.ID,
		Kind: in.Kind,
		Params: ReportParams{
			Descriptor:      in.Descriptor,
			Period:          in.Scope.Period,
			WorkerIDs:       append([]WorkerID(nil), in.Scope.WorkerIDs...),
			Owner:           in.Scope.Owner,
			SourceReportIDs: sourceIDs,
		},
		AggregatedAt: in.At,
		CreatedAt:    in.At,
		UpdatedAt:    in.At,
	}

	for id, a := range acc {
		line := Line{
			WorkerID:     id,
			WorkerName:   a.latest.WorkerName,
			BankAccount:  a.latest.BankAccount,
			CNSSNumber:   a.latest.CNSSNumber,
			GroupID:      a.latest.GroupID,
			TaskTotals:   a.agg.TaskTotals,
			DaysWorked:   a.agg.DaysWorked,
			SeniorityPct: a.latest.SeniorityPct,
			Base:         a.base,
		}
		if w, ok := in.Roster[id]; ok {
			line.WorkerName = w.Name
			line.BankAccount = w.BankAccount
			line.CNSSNumber = w.CNSSNumber
		}
		if a.hasHoliday {
			holiday := a.holiday
			line.Adjustments.HolidayPay = &holiday
		}
		line.Figures = Derive(DeriveInput{
			Base:         line.Base,
			SeniorityPct: line.SeniorityPct,
			Adjustments:  line.Adjustments,
			Policy:       policy,
		})
		if !line.NetPay.IsPositive() {
			continue
		}
		if in.Classify != nil {
			line.SubGroup = in.Classify(line)
		}
		snap.Lines = append(snap.Lines, line)
	}

	sort.Slice(snap.Lines, func(i, j int) bool {
		if snap.Lines[i].WorkerName != snap.Lines[j].WorkerName {
			return snap.Lines[i].WorkerName < snap.Lines[j].WorkerName
		}
		return snap.Lines[i].WorkerID < snap.Lines[j].WorkerID
	})
	snap.summarize()
	return snap, nil
}
