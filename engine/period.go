package engine

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// PERIOD DESCRIPTOR - What the caller asks for
// =============================================================================

type PeriodKind string

const (
	PeriodHalfMonth PeriodKind = "half_month" // day 1-15 or 16-end
	PeriodSeason    PeriodKind = "season"     // May 1 - April 30
	PeriodAnnual    PeriodKind = "annual"     // union of selected bi-monthly reports
)

// PeriodDescriptor identifies a report period. Only the fields of its Kind
// are read.
type PeriodDescriptor struct {
	Kind  PeriodKind `json:"kind"`
	Year  int        `json:"year,omitempty"`
	Month time.Month `json:"month,omitempty"`
	Half  Half       `json:"half,omitempty"`

	// SeasonYear is the year the season opens. Zero anchors it to the
	// reference date.
	SeasonYear int `json:"season_year,omitempty"`

	SourceReportIDs []ReportID `json:"source_report_ids,omitempty"`
}

// =============================================================================
// RESOLVER
// =============================================================================

// ResolveInput carries everything resolution depends on. Reference replaces
// the wall clock so resolution is a pure function.
type ResolveInput struct {
	Descriptor PeriodDescriptor
	Reference  time.Time
	Roster     Roster

	// WorkerIDs is an explicit selection. Empty means "derive from scope".
	WorkerIDs []WorkerID

	// Owner restricts the derived worker set to one group. Empty means all.
	Owner GroupID

	// Sources are candidate bi-monthly snapshots for season and annual
	// rollups. Season keeps those inside the season range; annual requires
	// every id in Descriptor.SourceReportIDs to be present.
	Sources []Snapshot
}

// Scope is a resolved period: the concrete range and who it covers.
type Scope struct {
	Kind      PeriodKind
	Period    Period
	WorkerIDs []WorkerID
	Owner     GroupID
	Sources   []Snapshot
}

// Resolve turns a descriptor into a Scope.
func Resolve(in ResolveInput) (Scope, error) {
	switch in.Descriptor.Kind {
	case PeriodHalfMonth:
		return resolveHalfMonth(in)
	case PeriodSeason:
		return resolveSeason(in)
	case PeriodAnnual:
		return resolveAnnual(in)
	default:
		return Scope{}, &ScopeResolutionError{Kind: in.Descriptor.Kind, Reason: "unknown period kind"}
	}
}

func resolveHalfMonth(in ResolveInput) (Scope, error) {
	d := in.Descriptor
	if d.Year <= 0 {
		return Scope{}, &ScopeResolutionError{Kind: d.Kind, Reason: "year is required"}
	}
	if d.Month < time.January || d.Month > time.December {
		return Scope{}, &ScopeResolutionError{Kind: d.Kind, Reason: fmt.Sprintf("invalid month %d", d.Month)}
	}
	if !d.Half.Valid() {
		return Scope{}, &ScopeResolutionError{Kind: d.Kind, Reason: fmt.Sprintf("invalid half %d", d.Half)}
	}

	workers, err := selectWorkers(in, nil)
	if err != nil {
		return Scope{}, err
	}
	return Scope{
		Kind:      d.Kind,
		Period:    HalfMonth(d.Year, d.Month, d.Half),
		WorkerIDs: workers,
		Owner:     in.Owner,
	}, nil
}

func resolveSeason(in ResolveInput) (Scope, error) {
	year := in.Descriptor.SeasonYear
	if year == 0 {
		if in.Reference.IsZero() {
			return Scope{}, &ScopeResolutionError{Kind: PeriodSeason, Reason: "season year or reference date is required"}
		}
		year = SeasonYearFor(in.Reference)
	}
	period := Season(year)

	var sources []Snapshot
	for _, s := range in.Sources {
		if s.Kind == KindBiMonthly && period.Covers(s.Params.Period) {
			sources = append(sources, s)
		}
	}
	sortSources(sources)

	workers, err := selectWorkers(in, activeGroups(sources))
	if err != nil {
		return Scope{}, err
	}
	return Scope{Kind: PeriodSeason, Period: period, WorkerIDs: workers, Owner: in.Owner, Sources: sources}, nil
}

func resolveAnnual(in ResolveInput) (Scope, error) {
	ids := in.Descriptor.SourceReportIDs
	if len(ids) == 0 {
		return Scope{}, &ScopeResolutionError{Kind: PeriodAnnual, Reason: "no source reports selected"}
	}

	byID := make(map[ReportID]Snapshot, len(in.Sources))
	for _, s := range in.Sources {
		byID[s.ID] = s
	}

	seen := make(map[ReportID]bool, len(ids))
	var sources []Snapshot
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		s, ok := byID[id]
		if !ok {
			return Scope{}, &ScopeResolutionError{Kind: PeriodAnnual, Reason: fmt.Sprintf("source report %s not found", id)}
		}
		if s.Kind != KindBiMonthly {
			return Scope{}, &ScopeResolutionError{Kind: PeriodAnnual, Reason: fmt.Sprintf("source report %s is %s, want %s", id, s.Kind, KindBiMonthly)}
		}
		sources = append(sources, s)
	}
	sortSources(sources)

	period := Period{Start: sources[0].Params.Period.Start, End: sources[0].Params.Period.End}
	for _, s := range sources[1:] {
		if s.Params.Period.Start.Before(period.Start) {
			period.Start = s.Params.Period.Start
		}
		if s.Params.Period.End.After(period.End) {
			period.End = s.Params.Period.End
		}
	}

	workers, err := selectWorkers(in, activeGroups(sources))
	if err != nil {
		return Scope{}, err
	}
	return Scope{Kind: PeriodAnnual, Period: period, WorkerIDs: workers, Owner: in.Owner, Sources: sources}, nil
}

// selectWorkers returns the explicit selection (validated against the
// roster) or every roster worker in the owner scope. When groups is non-nil
// only workers whose current group has activity in it are kept.
func selectWorkers(in ResolveInput, groups map[GroupID]bool) ([]WorkerID, error) {
	var out []WorkerID
	seen := make(map[WorkerID]bool)

	if len(in.WorkerIDs) > 0 {
		for _, id := range in.WorkerIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			w, ok := in.Roster[id]
			if !ok {
				return nil, &ScopeResolutionError{Kind: in.Descriptor.Kind, Reason: fmt.Sprintf("%v: %s", ErrWorkerNotFound, id)}
			}
			if in.Owner != "" && w.GroupID != in.Owner {
				return nil, &ScopeResolutionError{Kind: in.Descriptor.Kind, Reason: fmt.Sprintf("worker %s belongs to group %s, not %s", id, w.GroupID, in.Owner)}
			}
			out = append(out, id)
		}
	} else {
		for id, w := range in.Roster {
			if in.Owner != "" && w.GroupID != in.Owner {
				continue
			}
			if groups != nil && !groups[w.GroupID] {
				continue
			}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// activeGroups collects the groups with at least one line in sources.
func activeGroups(sources []Snapshot) map[GroupID]bool {
	groups := make(map[GroupID]bool)
	for _, s := range sources {
		for _, l := range s.Lines {
			groups[l.GroupID] = true
		}
	}
	return groups
}

func sortSources(sources []Snapshot) {
	sort.SliceStable(sources, func(i, j int) bool {
		a, b := sources[i].Params.Period, sources[j].Params.Period
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return sources[i].ID < sources[j].ID
	})
}
