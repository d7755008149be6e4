/*
cascade.go - Cascade saga for sibling reports

PURPOSE:
  One bi-monthly aggregation fans out into the payroll, detailed payroll
  and transfer order of the same period and workers. All three are derived
  from the bi-monthly snapshot's stored lines in one pass and carry its
  holiday pay, so they share TotalOperation, Anciennete and TotalBrut by
  construction.

SAGA:
  The bi-monthly and its derived siblings are recorded on a CascadeRun
  before any write, so a failed first record leaves nothing behind. The
  four writes then run concurrently. Each stage records its own outcome;
  nothing is rolled back. If a stage fails, the run stays incomplete and
  an IncompleteCascadeError names what landed. Resume retries only the
  failed stages with the snapshots derived the first time.

IDEMPOTENCY:
  Sibling ids are fixed at derivation. A retry that hits ErrSnapshotExists
  means the earlier write landed and counts as success.
*/
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
// CASCADE RUN
// =============================================================================

type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageDone    StageStatus = "done"
	StageFailed  StageStatus = "failed"
)

type CascadeStage struct {
	Kind     ReportKind  `json:"kind"`
	ReportID ReportID    `json:"report_id"`
	Status   StageStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
	Attempts int         `json:"attempts"`

	// Snapshot is the derived sibling, kept until it is persisted.
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

type CascadeRun struct {
	ID             string         `json:"id"`
	SourceReportID ReportID       `json:"source_report_id"`
	Stages         []CascadeStage `json:"stages"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Complete reports whether every stage is persisted.
func (r CascadeRun) Complete() bool {
	for _, s := range r.Stages {
		if s.Status != StageDone {
			return false
		}
	}
	return true
}

func (r CascadeRun) Succeeded() []ReportKind {
	var kinds []ReportKind
	for _, s := range r.Stages {
		if s.Status == StageDone {
			kinds = append(kinds, s.Kind)
		}
	}
	return kinds
}

// =============================================================================
// SIBLING DERIVATION
// =============================================================================

// DeriveSiblings builds the cascade reports from a bi-monthly snapshot's
// stored lines. Each sibling keeps the adjustments its policy applies and
// derives its own figures from the shared Base.
func DeriveSiblings(source Snapshot, newID func() ReportID) []Snapshot {
	siblings := make([]Snapshot, 0, len(CascadeKinds))
	for _, kind := range CascadeKinds {
		policy, _ := PolicyFor(kind)
		sib := source.Clone()
		sib.ID = newID()
		sib.Kind = kind
		sib.Params.CascadeFrom = source.ID
		for i := range sib.Lines {
			line := &sib.Lines[i]
			line.Adjustments = line.Adjustments.Mask(policy.Applied())
			line.Figures = Derive(DeriveInput{
				Base:         line.Base,
				SeniorityPct: line.SeniorityPct,
				Adjustments:  line.Adjustments,
				Policy:       policy,
			})
		}
		sib.summarize()
		siblings = append(siblings, sib)
	}
	return siblings
}

// =============================================================================
// CASCADE
// =============================================================================

type Cascade struct {
	Snapshots SnapshotStore
	Runs      CascadeRunStore
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

func NewCascade(snapshots SnapshotStore, runs CascadeRunStore, logger logrus.FieldLogger) *Cascade {
	return &Cascade{Snapshots: snapshots, Runs: runs, Logger: logger, Now: time.Now}
}

// Start records a run for source and its derived siblings, then persists
// all of them. source must not be stored yet; when the run cannot be
// recorded nothing is written.
func (c *Cascade) Start(ctx context.Context, source Snapshot) (*CascadeRun, error) {
	if source.Kind != KindBiMonthly {
		return nil, fmt.Errorf("cascade: source %s is %s, want %s", source.ID, source.Kind, KindBiMonthly)
	}

	now := c.Now()
	run := &CascadeRun{
		ID:             uuid.NewString(),
		SourceReportID: source.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Stages: []CascadeStage{{
			Kind:     KindBiMonthly,
			ReportID: source.ID,
			Status:   StagePending,
			Snapshot: &source,
		}},
	}
	for _, sib := range DeriveSiblings(source, func() ReportID { return ReportID(uuid.NewString()) }) {
		sib := sib
		sib.CreatedAt, sib.UpdatedAt = now, now
		run.Stages = append(run.Stages, CascadeStage{
			Kind:     sib.Kind,
			ReportID: sib.ID,
			Status:   StagePending,
			Snapshot: &sib,
		})
	}

	if err := c.Runs.SaveCascadeRun(ctx, *run); err != nil {
		return nil, fmt.Errorf("cascade: record run: %w", err)
	}
	return run, c.execute(ctx, run)
}

// Resume retries the stages of run that are not persisted yet.
func (c *Cascade) Resume(ctx context.Context, run *CascadeRun) error {
	if run.Complete() {
		return nil
	}
	return c.execute(ctx, run)
}

func (c *Cascade) execute(ctx context.Context, run *CascadeRun) error {
	errs := make([]error, len(run.Stages))

	var g errgroup.Group
	for i := range run.Stages {
		stage := &run.Stages[i]
		if stage.Status == StageDone {
			continue
		}
		i := i
		g.Go(func() error {
			stage.Attempts++
			if stage.Snapshot == nil {
				errs[i] = fmt.Errorf("stage %s has no derived snapshot", stage.Kind)
				return errs[i]
			}
			_, err := c.Snapshots.CreateSnapshot(ctx, *stage.Snapshot)
			if errors.Is(err, ErrSnapshotExists) {
				err = nil
			}
			errs[i] = err
			return err
		})
	}
	_ = g.Wait()

	incomplete := &IncompleteCascadeError{RunID: run.ID, Failed: map[ReportKind]error{}}
	for i := range run.Stages {
		stage := &run.Stages[i]
		switch {
		case stage.Status == StageDone:
		case errs[i] != nil:
			stage.Status = StageFailed
			stage.Error = errs[i].Error()
			incomplete.Failed[stage.Kind] = errs[i]
		default:
			stage.Status = StageDone
			stage.Error = ""
			stage.Snapshot = nil
		}
		if stage.Status == StageDone {
			incomplete.Succeeded = append(incomplete.Succeeded, stage.Kind)
		}
	}
	run.UpdatedAt = c.Now()

	log := c.Logger.WithFields(logrus.Fields{"cascade_id": run.ID, "report_id": run.SourceReportID})
	if err := c.Runs.SaveCascadeRun(ctx, *run); err != nil {
		log.WithError(err).Error("failed to record cascade outcome")
		if len(incomplete.Failed) == 0 {
			return fmt.Errorf("cascade: record outcome: %w", err)
		}
	}

	if len(incomplete.Failed) > 0 {
		log.WithField("failed", len(incomplete.Failed)).Warn(incomplete.Error())
		return incomplete
	}
	log.Info("cascade complete")
	return nil
}
