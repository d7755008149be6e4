package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// SERVICE - Orchestrates persistence around the pure engine functions
// =============================================================================

// Service wires the Store to the resolver, aggregation, derivation, cascade
// and rollup functions.
type Service struct {
	Store    Store
	Cascade  *Cascade
	Logger   logrus.FieldLogger
	Classify Classifier
	Now      func() time.Time
}

func NewService(store Store, logger logrus.FieldLogger) *Service {
	s := &Service{
		Store:  store,
		Logger: logger,
		Now:    time.Now,
	}
	s.Cascade = NewCascade(store, store, logger)
	s.Cascade.Now = func() time.Time { return s.Now() }
	return s
}

// =============================================================================
// RAW INPUTS
// =============================================================================

// RecordActivity validates and appends log entries. Entries without an
// owner are tagged with the worker's current group.
func (s *Service) RecordActivity(ctx context.Context, logs []ActivityLog) ([]ActivityLog, error) {
	roster, err := s.roster(ctx)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	out := make([]ActivityLog, 0, len(logs))
	for _, l := range logs {
		w, ok := roster[l.WorkerID]
		if !ok {
			return nil, fmt.Errorf("record activity: %w: %s", ErrWorkerNotFound, l.WorkerID)
		}
		if _, err := ParseDate(string(l.Date)); err != nil {
			return nil, fmt.Errorf("record activity: %w", err)
		}
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		if l.Owner == "" {
			l.Owner = w.GroupID
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		out = append(out, l)
	}
	if err := s.Store.AppendActivity(ctx, out); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}
	return out, nil
}

// RecordAttendance upserts entries one at a time, each write completing
// before the next starts, so a following aggregation sees all of them.
func (s *Service) RecordAttendance(ctx context.Context, entries []Attendance) ([]Attendance, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	roster, err := s.roster(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Attendance, 0, len(entries))
	for _, a := range entries {
		if err := a.Validate(); err != nil {
			return out, err
		}
		w, ok := roster[a.WorkerID]
		if !ok {
			return out, fmt.Errorf("record attendance: %w: %s", ErrWorkerNotFound, a.WorkerID)
		}
		if a.Owner == "" {
			a.Owner = w.GroupID
		}
		saved, err := s.Store.UpsertAttendance(ctx, a)
		if err != nil {
			return out, fmt.Errorf("record attendance %s: %w", a.WorkerID, err)
		}
		out = append(out, saved)
	}
	return out, nil
}

// =============================================================================
// BI-MONTHLY + CASCADE
// =============================================================================

type GenerateInput struct {
	Descriptor PeriodDescriptor
	WorkerIDs  []WorkerID
	Owner      GroupID

	// Attendance is recorded before aggregation.
	Attendance []Attendance

	// Adjustments apply to the bi-monthly report itself.
	Adjustments map[WorkerID]Adjustments
}

type GenerateResult struct {
	Report   Snapshot
	Cascade  *CascadeRun
	Warnings []Warning
}

// GenerateBiMonthly records attendance, aggregates the half month once,
// then stores the bi-monthly report and its siblings as one cascade run.
// When the cascade is partial the result is still returned with an
// IncompleteCascadeError.
func (s *Service) GenerateBiMonthly(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	if in.Descriptor.Kind != PeriodHalfMonth {
		return nil, &ScopeResolutionError{Kind: in.Descriptor.Kind, Reason: "bi-monthly reports need a half_month period"}
	}
	if _, err := s.RecordAttendance(ctx, in.Attendance); err != nil {
		return nil, err
	}

	roster, err := s.roster(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := Resolve(ResolveInput{
		Descriptor: in.Descriptor,
		Reference:  s.Now(),
		Roster:     roster,
		WorkerIDs:  in.WorkerIDs,
		Owner:      in.Owner,
	})
	if err != nil {
		return nil, err
	}

	prices, err := s.prices(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := s.Store.ListActivity(ctx, scope.Period)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	attendance, err := s.Store.ListAttendance(ctx, scope.Period)
	if err != nil {
		return nil, fmt.Errorf("load attendance: %w", err)
	}

	agg := AggregateActivity(AggregateInput{
		Scope:      scope,
		Roster:     roster,
		Logs:       logs,
		Attendance: attendance,
		FullRoster: len(in.WorkerIDs) > 0,
	})

	result := &GenerateResult{}
	if agg.Missing != nil {
		s.Logger.WithField("skipped", agg.Missing.LogEntries+agg.Missing.AttendanceEntries).Warn(agg.Missing.Error())
		result.Warnings = append(result.Warnings, agg.Missing)
	}

	report := NewPeriodSnapshot(PeriodSnapshotInput{
		ID:   ReportID(uuid.NewString()),
		Kind: KindBiMonthly,
		Params: ReportParams{
			Descriptor: in.Descriptor,
			Period:     scope.Period,
			WorkerIDs:  scope.WorkerIDs,
			Owner:      scope.Owner,
		},
		Prices:      prices,
		Roster:      roster,
		Aggregates:  agg.Aggregates,
		Adjustments: in.Adjustments,
		Classify:    s.Classify,
		At:          s.Now(),
	})
	run, err := s.Cascade.Start(ctx, report)
	if run == nil {
		return nil, fmt.Errorf("save bi-monthly report: %w", err)
	}
	result.Report = report
	result.Cascade = run
	s.Logger.WithFields(logrus.Fields{"report_id": report.ID, "kind": report.Kind, "lines": len(report.Lines)}).
		Info("bi-monthly report created")
	return result, err
}

// ResumeCascade retries the failed stages of a recorded cascade run.
func (s *Service) ResumeCascade(ctx context.Context, runID string) (*CascadeRun, error) {
	run, err := s.Store.GetCascadeRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	err = s.Cascade.Resume(ctx, run)
	return run, err
}

// ResumeIncomplete retries every incomplete cascade and returns how many
// completed.
func (s *Service) ResumeIncomplete(ctx context.Context) (int, error) {
	runs, err := s.Store.ListIncompleteCascadeRuns(ctx)
	if err != nil {
		return 0, err
	}
	completed := 0
	for i := range runs {
		err := s.Cascade.Resume(ctx, &runs[i])
		if err == nil {
			completed++
			continue
		}
		if !errors.Is(err, ErrIncompleteCascade) {
			return completed, err
		}
	}
	return completed, nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// UpdateAdjustments recomputes a stored report with edited adjustments and
// carries the edits to every other report of its cascade, so the
// bi-monthly, payroll, detailed payroll and transfer order keep one gross.
// The edited report is written first. If a sibling write fails the edited
// report is kept and an IncompleteCascadeError names the failed kinds;
// repeating the same edit is safe.
//
// A StaleAggregationWarning is returned when attendance changed after the
// report was aggregated; the stored aggregation is still used.
func (s *Service) UpdateAdjustments(ctx context.Context, id ReportID, edits map[WorkerID]Adjustments) (Snapshot, []Warning, error) {
	stored, err := s.Store.GetSnapshot(ctx, id)
	if err != nil {
		return Snapshot{}, nil, err
	}

	now := s.Now()
	updated, err := Recompute(*stored, edits, now)
	if err != nil {
		return Snapshot{}, nil, err
	}

	var warnings []Warning
	if !stored.Kind.IsRollup() {
		attendance, err := s.Store.ListAttendance(ctx, stored.Params.Period)
		if err != nil {
			return Snapshot{}, nil, fmt.Errorf("load attendance: %w", err)
		}
		if w := CheckStaleness(*stored, attendance); w != nil {
			s.Logger.WithField("report_id", id).Warn(w.Error())
			warnings = append(warnings, w)
		}
	}

	source := cascadeSource(*stored)
	if source != "" {
		if err := s.pendingCascade(ctx, source); err != nil {
			return Snapshot{}, nil, err
		}
	}

	updated, err = s.Store.UpdateSnapshot(ctx, updated)
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("save recomputed report: %w", err)
	}
	log := s.Logger.WithFields(logrus.Fields{"report_id": id, "kind": updated.Kind, "edits": len(edits)})
	log.Info("report recomputed")

	if source == "" || len(edits) == 0 {
		return updated, warnings, nil
	}
	if err := s.carryEdits(ctx, updated, source, edits, now); err != nil {
		log.WithError(err).Warn("edits not carried to every cascade report")
		return updated, warnings, err
	}
	return updated, warnings, nil
}

// cascadeSource returns the bi-monthly report snap belongs to, or "" when
// it is not part of a cascade.
func cascadeSource(snap Snapshot) ReportID {
	switch {
	case snap.Kind == KindBiMonthly:
		return snap.ID
	case snap.Params.CascadeFrom != "":
		return snap.Params.CascadeFrom
	}
	return ""
}

// pendingCascade refuses edits while a cascade of source still has stages
// waiting to be written, since those stages hold snapshots derived before
// the edit.
func (s *Service) pendingCascade(ctx context.Context, source ReportID) error {
	runs, err := s.Store.ListIncompleteCascadeRuns(ctx)
	if err != nil {
		return fmt.Errorf("load cascade runs: %w", err)
	}
	for _, run := range runs {
		if run.SourceReportID != source {
			continue
		}
		pending := &IncompleteCascadeError{
			RunID:     run.ID,
			Succeeded: run.Succeeded(),
			Failed:    map[ReportKind]error{},
		}
		for _, stage := range run.Stages {
			if stage.Status != StageDone {
				pending.Failed[stage.Kind] = errors.New(stageReason(stage))
			}
		}
		return pending
	}
	return nil
}

func stageReason(stage CascadeStage) string {
	if stage.Error != "" {
		return stage.Error
	}
	return "stage " + string(stage.Status)
}

// carryEdits re-derives and stores every report of the cascade of source
// other than edited.
func (s *Service) carryEdits(ctx context.Context, edited Snapshot, source ReportID, edits map[WorkerID]Adjustments, at time.Time) error {
	members, err := s.Store.ListSnapshots(ctx, SnapshotFilter{CascadeFrom: source})
	if err != nil {
		return fmt.Errorf("load cascade reports: %w", err)
	}
	if edited.ID != source {
		bimonthly, err := s.Store.GetSnapshot(ctx, source)
		if err != nil {
			return fmt.Errorf("load cascade source %s: %w", source, err)
		}
		members = append(members, *bimonthly)
	}

	errs := make([]error, len(members))
	var g errgroup.Group
	for i := range members {
		if members[i].ID == edited.ID {
			continue
		}
		i := i
		g.Go(func() error {
			carried, err := CarryEdits(members[i], edited.Kind, edits, at)
			if err == nil {
				_, err = s.Store.UpdateSnapshot(ctx, carried)
			}
			errs[i] = err
			return err
		})
	}
	_ = g.Wait()

	incomplete := &IncompleteCascadeError{Succeeded: []ReportKind{edited.Kind}, Failed: map[ReportKind]error{}}
	for i, m := range members {
		if m.ID == edited.ID {
			continue
		}
		if errs[i] != nil {
			incomplete.Failed[m.Kind] = errs[i]
			continue
		}
		incomplete.Succeeded = append(incomplete.Succeeded, m.Kind)
	}
	if len(incomplete.Failed) > 0 {
		return incomplete
	}
	return nil
}

// =============================================================================
// ROLLUPS
// =============================================================================

// SeasonSummary rolls up the bi-monthly reports of a season. seasonYear 0
// selects the season containing the service clock's current date.
func (s *Service) SeasonSummary(ctx context.Context, seasonYear int, owner GroupID) (Snapshot, error) {
	ref := s.Now()
	year := seasonYear
	if year == 0 {
		year = SeasonYearFor(ref)
	}
	season := Season(year)
	sources, err := s.Store.ListSnapshots(ctx, SnapshotFilter{Kind: KindBiMonthly, Within: &season})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load season sources: %w", err)
	}
	return s.rollup(ctx, KindSeasonSummary, PeriodDescriptor{Kind: PeriodSeason, SeasonYear: year}, owner, sources, ref)
}

// AnnualSummary rolls up an explicit selection of bi-monthly reports.
func (s *Service) AnnualSummary(ctx context.Context, ids []ReportID, owner GroupID) (Snapshot, error) {
	if len(ids) == 0 {
		return Snapshot{}, &ScopeResolutionError{Kind: PeriodAnnual, Reason: "no source reports selected"}
	}
	sources, err := s.Store.ListSnapshots(ctx, SnapshotFilter{IDs: ids})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load annual sources: %w", err)
	}
	return s.rollup(ctx, KindAnnualSummary, PeriodDescriptor{Kind: PeriodAnnual, SourceReportIDs: ids}, owner, sources, s.Now())
}

func (s *Service) rollup(ctx context.Context, kind ReportKind, desc PeriodDescriptor, owner GroupID, sources []Snapshot, ref time.Time) (Snapshot, error) {
	roster, err := s.roster(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	scope, err := Resolve(ResolveInput{
		Descriptor: desc,
		Reference:  ref,
		Roster:     roster,
		Owner:      owner,
		Sources:    sources,
	})
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := Rollup(RollupInput{
		ID:         ReportID(uuid.NewString()),
		Kind:       kind,
		Descriptor: desc,
		Scope:      scope,
		Roster:     roster,
		Classify:   s.Classify,
		At:         ref,
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap, err = s.Store.CreateSnapshot(ctx, snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("save %s: %w", kind, err)
	}
	s.Logger.WithFields(logrus.Fields{"report_id": snap.ID, "kind": kind, "sources": len(scope.Sources), "lines": len(snap.Lines)}).
		Info("rollup created")
	return snap, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) GetReport(ctx context.Context, id ReportID) (*Snapshot, error) {
	return s.Store.GetSnapshot(ctx, id)
}

func (s *Service) ListReports(ctx context.Context, f SnapshotFilter) ([]Snapshot, error) {
	return s.Store.ListSnapshots(ctx, f)
}

func (s *Service) roster(ctx context.Context) (Roster, error) {
	workers, err := s.Store.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load workers: %w", err)
	}
	return NewRoster(workers), nil
}

func (s *Service) prices(ctx context.Context) (PriceTable, error) {
	tasks, err := s.Store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return NewPriceTable(tasks), nil
}
