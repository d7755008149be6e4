package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT - Persisted derived report
// =============================================================================

// Snapshot is one stored report. Params, Prices and each line's stored
// aggregation are frozen at creation; only line Adjustments may change,
// and every change re-derives Figures through Recompute.
type Snapshot struct {
	ID     ReportID     `json:"id"`
	Kind   ReportKind   `json:"kind"`
	Params ReportParams `json:"params"`

	// Prices is the price table in force when the report was aggregated.
	Prices PriceTable `json:"prices,omitempty"`

	Lines     []Line             `json:"lines"`
	Subtotals map[string]Figures `json:"subtotals,omitempty"`
	Totals    Figures            `json:"totals"`

	AggregatedAt time.Time `json:"aggregated_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReportParams are the immutable parameters of a snapshot.
type ReportParams struct {
	Descriptor      PeriodDescriptor `json:"descriptor"`
	Period          Period           `json:"period"`
	WorkerIDs       []WorkerID       `json:"worker_ids"`
	Owner           GroupID          `json:"owner,omitempty"`
	SourceReportIDs []ReportID       `json:"source_report_ids,omitempty"`

	// CascadeFrom is the bi-monthly report a sibling was derived from.
	CascadeFrom ReportID `json:"cascade_from,omitempty"`
}

// Line is one worker's row. TaskTotals, DaysWorked and SeniorityPct are the
// stored aggregation; Base is what the pipeline consumed.
type Line struct {
	WorkerID     WorkerID                   `json:"worker_id"`
	WorkerName   string                     `json:"worker_name"`
	BankAccount  string                     `json:"bank_account,omitempty"`
	CNSSNumber   string                     `json:"cnss_number,omitempty"`
	GroupID      GroupID                    `json:"group_id"`
	SubGroup     string                     `json:"sub_group,omitempty"`
	TaskTotals   map[TaskID]decimal.Decimal `json:"task_totals"`
	DaysWorked   decimal.Decimal            `json:"days_worked"`
	SeniorityPct decimal.Decimal            `json:"seniority_pct"`
	Base         Base                       `json:"base"`
	Adjustments  Adjustments                `json:"adjustments"`
	Figures
}

// Aggregate returns the stored aggregation of the line.
func (l Line) Aggregate() Aggregate {
	return Aggregate{WorkerID: l.WorkerID, TaskTotals: l.TaskTotals, DaysWorked: l.DaysWorked}
}

// Line returns the row for worker, if present.
func (s Snapshot) Line(id WorkerID) (Line, bool) {
	for _, l := range s.Lines {
		if l.WorkerID == id {
			return l, true
		}
	}
	return Line{}, false
}

// Clone deep-copies the mutable parts of a snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Params.WorkerIDs = append([]WorkerID(nil), s.Params.WorkerIDs...)
	out.Params.SourceReportIDs = append([]ReportID(nil), s.Params.SourceReportIDs...)
	out.Params.Descriptor.SourceReportIDs = append([]ReportID(nil), s.Params.Descriptor.SourceReportIDs...)
	if s.Prices != nil {
		out.Prices = s.Prices.Clone()
	}
	out.Lines = make([]Line, len(s.Lines))
	for i, l := range s.Lines {
		totals := make(map[TaskID]decimal.Decimal, len(l.TaskTotals))
		for k, v := range l.TaskTotals {
			totals[k] = v
		}
		l.TaskTotals = totals
		l.Adjustments = l.Adjustments.Mask(AllFields)
		out.Lines[i] = l
	}
	if s.Subtotals != nil {
		out.Subtotals = make(map[string]Figures, len(s.Subtotals))
		for k, v := range s.Subtotals {
			out.Subtotals[k] = v
		}
	}
	return out
}

// =============================================================================
// BUILDING
// =============================================================================

// PeriodSnapshotInput builds a non-rollup report from aggregates.
type PeriodSnapshotInput struct {
	ID          ReportID
	Kind        ReportKind
	Params      ReportParams
	Prices      PriceTable
	Roster      Roster
	Aggregates  []Aggregate
	Adjustments map[WorkerID]Adjustments
	Classify    Classifier
	At          time.Time
}

// Classifier assigns a line to a named sub-group for subtotals.
type Classifier func(Line) string

// NewPeriodSnapshot prices each aggregate once and runs the pipeline under
// the kind's policy.
func NewPeriodSnapshot(in PeriodSnapshotInput) Snapshot {
	policy, _ := PolicyFor(in.Kind)
	snap := Snapshot{
		ID:           in.ID,
		Kind:         in.Kind,
		Params:       in.Params,
		Prices:       in.Prices.Clone(),
		AggregatedAt: in.At,
		CreatedAt:    in.At,
		UpdatedAt:    in.At,
	}
	for _, agg := range in.Aggregates {
		w := in.Roster[agg.WorkerID]
		line := Line{
			WorkerID:     agg.WorkerID,
			WorkerName:   w.Name,
			BankAccount:  w.BankAccount,
			CNSSNumber:   w.CNSSNumber,
			GroupID:      w.GroupID,
			TaskTotals:   agg.TaskTotals,
			DaysWorked:   agg.DaysWorked,
			SeniorityPct: w.SeniorityPct,
			Base:         BaseFor(agg, snap.Prices),
			Adjustments:  in.Adjustments[agg.WorkerID].Mask(policy.Applied()),
		}
		line.Figures = Derive(DeriveInput{
			Base:         line.Base,
			SeniorityPct: line.SeniorityPct,
			Adjustments:  line.Adjustments,
			Policy:       policy,
		})
		if in.Classify != nil {
			line.SubGroup = in.Classify(line)
		}
		snap.Lines = append(snap.Lines, line)
	}
	snap.summarize()
	return snap
}

// summarize recomputes Totals and per sub-group Subtotals from the lines.
func (s *Snapshot) summarize() {
	s.Totals = Figures{}
	s.Subtotals = nil
	for _, l := range s.Lines {
		s.Totals = s.Totals.Add(l.Figures)
		if l.SubGroup == "" {
			continue
		}
		if s.Subtotals == nil {
			s.Subtotals = make(map[string]Figures)
		}
		s.Subtotals[l.SubGroup] = s.Subtotals[l.SubGroup].Add(l.Figures)
	}
}
