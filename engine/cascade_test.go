package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-payroll/engine"
	"github.com/warp/harvest-payroll/engine/store"
)

// =============================================================================
// SIBLING DERIVATION
// =============================================================================

func TestDeriveSiblings_ShareUpstreamFigures(t *testing.T) {
	// GIVEN: a bi-monthly report with a holiday-pay override
	source := payrollSnapshot(engine.KindBiMonthly, standardPrices())
	holiday := dec("20")
	source, err := engine.Recompute(source, map[engine.WorkerID]engine.Adjustments{"w1": {HolidayPay: &holiday}}, aggregatedAt)
	require.NoError(t, err)

	n := 0
	newID := func() engine.ReportID {
		n++
		return engine.ReportID([]string{"p", "d", "t"}[n-1])
	}

	// WHEN
	siblings := engine.DeriveSiblings(source, newID)

	// THEN: one sibling per cascade kind, each agreeing on the operational
	//       figures and carrying the holiday pay into the gross
	require.Len(t, siblings, 3)
	assert.Equal(t, engine.KindPayroll, siblings[0].Kind)
	assert.Equal(t, engine.KindDetailedPayroll, siblings[1].Kind)
	assert.Equal(t, engine.KindTransferOrder, siblings[2].Kind)

	src, _ := source.Line("w1")
	for _, sib := range siblings {
		assert.Equal(t, source.ID, sib.Params.CascadeFrom)
		assert.Equal(t, source.Params.Period, sib.Params.Period)
		line, ok := sib.Line("w1")
		require.True(t, ok)
		assertDec(t, src.TotalOperation.String(), line.TotalOperation, sib.Kind)
		assertDec(t, src.Anciennete.String(), line.Anciennete, sib.Kind)
		assertDec(t, src.TotalBrut.String(), line.TotalBrut, sib.Kind)
		assertDec(t, "570", line.TotalBrut, sib.Kind)
		assertDec(t, "20", line.JourFerier, sib.Kind)
		require.NotNil(t, line.Adjustments.HolidayPay, sib.Kind)
		assertDec(t, "20", *line.Adjustments.HolidayPay, sib.Kind)
	}

	detailed, _ := siblings[1].Line("w1")
	assertDec(t, "25.536", detailed.RetCNSS)
	assertDec(t, "12.882", detailed.RetAMO)

	payroll, _ := siblings[0].Line("w1")
	transfer, _ := siblings[2].Line("w1")
	assertDec(t, payroll.NetPay.String(), transfer.NetPay)
}

func TestDeriveSiblings_WithoutHolidayPay(t *testing.T) {
	source := payrollSnapshot(engine.KindBiMonthly, standardPrices())

	siblings := engine.DeriveSiblings(source, func() engine.ReportID { return "x" })

	for _, sib := range siblings {
		line, _ := sib.Line("w1")
		assertDec(t, "550", line.TotalBrut, sib.Kind)
		assert.Nil(t, line.Adjustments.HolidayPay, sib.Kind)
	}
}

// =============================================================================
// SAGA
// =============================================================================

func newCascade(snapshots engine.SnapshotStore, runs engine.CascadeRunStore) *engine.Cascade {
	c := engine.NewCascade(snapshots, runs, quietLogger())
	c.Now = newClock().Now
	return c
}

func TestCascade_AllStagesPersist(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	source := payrollSnapshot(engine.KindBiMonthly, standardPrices())

	run, err := newCascade(mem, mem).Start(ctx, source)

	require.NoError(t, err)
	assert.True(t, run.Complete())
	require.Len(t, run.Stages, 4)
	assert.Equal(t, engine.KindBiMonthly, run.Stages[0].Kind)
	assert.Equal(t, source.ID, run.Stages[0].ReportID)
	for _, stage := range run.Stages {
		assert.Equal(t, engine.StageDone, stage.Status)
		assert.Nil(t, stage.Snapshot)
		assert.Equal(t, 1, stage.Attempts)

		stored, err := mem.GetSnapshot(ctx, stage.ReportID)
		require.NoError(t, err)
		assert.Equal(t, stage.Kind, stored.Kind)
	}

	incomplete, err := mem.ListIncompleteCascadeRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}

func TestCascade_PartialFailureThenResume(t *testing.T) {
	// GIVEN: a store that rejects detailed payroll writes
	ctx := context.Background()
	mem := store.NewMemory()
	flaky := newFlakySnapshots(mem, engine.KindDetailedPayroll)
	cascade := newCascade(flaky, mem)
	source := payrollSnapshot(engine.KindBiMonthly, standardPrices())

	// WHEN: the cascade starts
	run, err := cascade.Start(ctx, source)

	// THEN: the source and two siblings land and the failure is named
	require.Error(t, err)
	assert.True(t, engine.IsRetryable(err))
	var incomplete *engine.IncompleteCascadeError
	require.True(t, errors.As(err, &incomplete))
	assert.ElementsMatch(t, []engine.ReportKind{engine.KindBiMonthly, engine.KindPayroll, engine.KindTransferOrder}, incomplete.Succeeded)
	require.Contains(t, incomplete.Failed, engine.KindDetailedPayroll)
	assert.ErrorIs(t, incomplete.Failed[engine.KindDetailedPayroll], errDiskFull)

	stored, err := mem.ListIncompleteCascadeRuns(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, run.ID, stored[0].ID)

	// WHEN: the store recovers and the recorded run is resumed
	flaky.heal()
	require.NoError(t, cascade.Resume(ctx, &stored[0]))

	// THEN: only the failed stage was retried and every sibling exists
	assert.True(t, stored[0].Complete())
	assert.Equal(t, 1, flaky.calls[engine.KindPayroll])
	assert.Equal(t, 2, flaky.calls[engine.KindDetailedPayroll])
	for _, stage := range stored[0].Stages {
		_, err := mem.GetSnapshot(ctx, stage.ReportID)
		assert.NoError(t, err, stage.Kind)
	}

	again, err := mem.ListIncompleteCascadeRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCascade_ExistingSnapshotOnRetryCountsAsSuccess(t *testing.T) {
	// GIVEN: the transfer-order write lands but reports a failure
	ctx := context.Background()
	mem := store.NewMemory()
	flaky := newFlakySnapshots(mem, engine.KindTransferOrder)
	flaky.landFirst = true
	cascade := newCascade(flaky, mem)

	run, err := cascade.Start(ctx, payrollSnapshot(engine.KindBiMonthly, standardPrices()))
	require.ErrorIs(t, err, engine.ErrIncompleteCascade)

	// WHEN: resumed while the write still reports failure
	flaky.landFirst = false
	flaky.heal()
	err = cascade.Resume(ctx, run)

	// THEN: the duplicate is treated as already persisted
	require.NoError(t, err)
	assert.True(t, run.Complete())
}

func TestCascade_UnrecordedRunWritesNothing(t *testing.T) {
	// GIVEN: a run store that cannot record the run
	ctx := context.Background()
	mem := store.NewMemory()
	runs := &failingRuns{CascadeRunStore: mem, failures: 1}
	source := payrollSnapshot(engine.KindBiMonthly, standardPrices())

	// WHEN
	run, err := newCascade(mem, runs).Start(ctx, source)

	// THEN: neither the source nor any sibling is stored
	require.ErrorIs(t, err, errDiskFull)
	assert.Nil(t, run)
	all, err := mem.ListSnapshots(ctx, engine.SnapshotFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCascade_RejectsNonBiMonthlySource(t *testing.T) {
	mem := store.NewMemory()

	_, err := newCascade(mem, mem).Start(context.Background(), payrollSnapshot(engine.KindPayroll, standardPrices()))

	assert.Error(t, err)
}
