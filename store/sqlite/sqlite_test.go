package sqlite_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-payroll/engine"
	"github.com/warp/harvest-payroll/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixedNow = time.Date(2025, time.June, 16, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	s.Now = func() time.Time { return fixedNow }
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func asJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

// =============================================================================
// ROSTER AND PRICES
// =============================================================================

func TestStore_WorkersRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	w := engine.Worker{ID: "w1", Name: "Amina", BankAccount: "007-123", CNSSNumber: "C-9", SeniorityPct: dec("12.5"), Dependents: 2, GroupID: "g1"}
	require.NoError(t, s.SaveWorker(ctx, w))

	w.GroupID = "g2"
	require.NoError(t, s.SaveWorker(ctx, w))

	got, err := s.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, engine.GroupID("g2"), got.GroupID)
	assert.True(t, got.SeniorityPct.Equal(dec("12.5")))
	assert.Equal(t, 2, got.Dependents)

	_, err = s.GetWorker(ctx, "nope")
	assert.ErrorIs(t, err, engine.ErrWorkerNotFound)

	all, err := s.ListWorkers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_TasksKeepDecimalPrices(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveTask(ctx, engine.Task{ID: 101, Price: dec("12"), Category: "indemnite"}))
	require.NoError(t, s.SaveTask(ctx, engine.Task{ID: 1, Price: dec("0.35"), Category: "recolte"}))

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, engine.TaskID(1), tasks[0].ID)
	assert.Equal(t, "0.35", tasks[0].Price.String())
}

// =============================================================================
// RAW INPUTS
// =============================================================================

func TestStore_ActivityIsAppendOnlyAndFilteredByDate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	logs := []engine.ActivityLog{
		{ID: "l1", WorkerID: "w1", TaskID: 1, Quantity: dec("2.5"), Date: "2025-06-15", Owner: "g1"},
		{ID: "l2", WorkerID: "w1", TaskID: 1, Quantity: dec("4"), Date: "2025-06-16", Owner: "g1"},
	}
	require.NoError(t, s.AppendActivity(ctx, logs))

	got, err := s.ListActivity(ctx, engine.HalfMonth(2025, time.June, engine.FirstHalf))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "l1", got[0].ID)
	assert.Equal(t, "2.5", got[0].Quantity.String())
	assert.Equal(t, fixedNow, got[0].CreatedAt)

	// A repeated id rolls back the whole batch.
	err = s.AppendActivity(ctx, []engine.ActivityLog{
		{ID: "l3", WorkerID: "w1", TaskID: 1, Quantity: dec("1"), Date: "2025-06-03", Owner: "g1"},
		{ID: "l1", WorkerID: "w1", TaskID: 1, Quantity: dec("1"), Date: "2025-06-03", Owner: "g1"},
	})
	assert.Error(t, err)

	got, err = s.ListActivity(ctx, engine.HalfMonth(2025, time.June, engine.FirstHalf))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_AttendanceUpsert(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a := engine.Attendance{WorkerID: "w1", Year: 2025, Month: time.June, Half: engine.SecondHalf, Days: dec("5"), Owner: "g1"}
	_, err := s.UpsertAttendance(ctx, a)
	require.NoError(t, err)

	a.Days = dec("11.5")
	saved, err := s.UpsertAttendance(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, saved.UpdatedAt)

	second, err := s.ListAttendance(ctx, engine.HalfMonth(2025, time.June, engine.SecondHalf))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "11.5", second[0].Days.String())
	assert.Equal(t, engine.SecondHalf, second[0].Half)

	first, err := s.ListAttendance(ctx, engine.HalfMonth(2025, time.June, engine.FirstHalf))
	require.NoError(t, err)
	assert.Empty(t, first)

	season, err := s.ListAttendance(ctx, engine.Season(2025))
	require.NoError(t, err)
	assert.Len(t, season, 1)
}

// =============================================================================
// SNAPSHOTS AND CASCADE RUNS
// =============================================================================

func TestStore_SnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	holiday := dec("12.5")
	snap := engine.Snapshot{
		ID:     "r1",
		Kind:   engine.KindPayroll,
		Params: engine.ReportParams{Period: engine.HalfMonth(2025, time.June, engine.FirstHalf), WorkerIDs: []engine.WorkerID{"w1"}},
		Prices: engine.NewPriceTable([]engine.Task{{ID: 1, Price: dec("5")}}),
		Lines: []engine.Line{{
			WorkerID:    "w1",
			TaskTotals:  map[engine.TaskID]decimal.Decimal{1: dec("100")},
			DaysWorked:  dec("10"),
			Adjustments: engine.Adjustments{HolidayPay: &holiday},
			Figures:     engine.Figures{NetPay: dec("712.93")},
		}},
	}

	created, err := s.CreateSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, created.CreatedAt)

	_, err = s.CreateSnapshot(ctx, snap)
	assert.ErrorIs(t, err, engine.ErrSnapshotExists)

	got, err := s.GetSnapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, asJSON(t, created), asJSON(t, *got))

	got.Lines[0].Advance = dec("100")
	_, err = s.UpdateSnapshot(ctx, *got)
	require.NoError(t, err)
	reread, err := s.GetSnapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "100", reread.Lines[0].Advance.String())

	_, err = s.UpdateSnapshot(ctx, engine.Snapshot{ID: "missing"})
	assert.ErrorIs(t, err, engine.ErrSnapshotNotFound)
	_, err = s.GetSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrSnapshotNotFound)
}

func TestStore_ListSnapshotsFilters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for _, snap := range []engine.Snapshot{
		{ID: "b", Kind: engine.KindBiMonthly, Params: engine.ReportParams{Period: engine.HalfMonth(2025, time.July, engine.FirstHalf)}},
		{ID: "a", Kind: engine.KindBiMonthly, Params: engine.ReportParams{Period: engine.HalfMonth(2025, time.June, engine.SecondHalf)}},
		{ID: "p", Kind: engine.KindPayroll, Params: engine.ReportParams{Period: engine.HalfMonth(2025, time.June, engine.SecondHalf)}},
		{ID: "old", Kind: engine.KindBiMonthly, Params: engine.ReportParams{Period: engine.HalfMonth(2025, time.April, engine.FirstHalf)}},
		{ID: "t", Kind: engine.KindTransferOrder, Params: engine.ReportParams{Period: engine.HalfMonth(2025, time.June, engine.SecondHalf), CascadeFrom: "a"}},
	} {
		_, err := s.CreateSnapshot(ctx, snap)
		require.NoError(t, err)
	}

	season := engine.Season(2025)
	inSeason, err := s.ListSnapshots(ctx, engine.SnapshotFilter{Kind: engine.KindBiMonthly, Within: &season})
	require.NoError(t, err)
	require.Len(t, inSeason, 2)
	assert.Equal(t, engine.ReportID("a"), inSeason[0].ID)
	assert.Equal(t, engine.ReportID("b"), inSeason[1].ID)

	byID, err := s.ListSnapshots(ctx, engine.SnapshotFilter{IDs: []engine.ReportID{"old", "p"}})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, engine.ReportID("old"), byID[0].ID)

	siblings, err := s.ListSnapshots(ctx, engine.SnapshotFilter{CascadeFrom: "a"})
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, engine.ReportID("t"), siblings[0].ID)

	all, err := s.ListSnapshots(ctx, engine.SnapshotFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_CascadeRuns(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	run := engine.CascadeRun{
		ID:             "run-1",
		SourceReportID: "r1",
		CreatedAt:      fixedNow,
		UpdatedAt:      fixedNow,
		Stages: []engine.CascadeStage{
			{Kind: engine.KindPayroll, ReportID: "p1", Status: engine.StageDone, Attempts: 1},
			{Kind: engine.KindDetailedPayroll, ReportID: "d1", Status: engine.StageFailed, Error: "disk full", Attempts: 1,
				Snapshot: &engine.Snapshot{ID: "d1", Kind: engine.KindDetailedPayroll}},
		},
	}
	require.NoError(t, s.SaveCascadeRun(ctx, run))

	pending, err := s.ListIncompleteCascadeRuns(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Stages[1].Snapshot)
	assert.Equal(t, engine.ReportID("d1"), pending[0].Stages[1].Snapshot.ID)

	run.Stages[1].Status = engine.StageDone
	run.Stages[1].Snapshot = nil
	require.NoError(t, s.SaveCascadeRun(ctx, run))

	pending, err = s.ListIncompleteCascadeRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := s.GetCascadeRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.Complete())

	_, err = s.GetCascadeRun(ctx, "nope")
	assert.ErrorIs(t, err, engine.ErrCascadeRunNotFound)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveWorker(ctx, engine.Worker{ID: "w1", Name: "Amina", GroupID: "g1"}))
	require.NoError(t, s.SaveTask(ctx, engine.Task{ID: 1, Price: dec("5")}))

	require.NoError(t, s.Reset(ctx))

	workers, err := s.ListWorkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers)
	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

// =============================================================================
// SERVICE ON SQLITE
// =============================================================================

func TestStore_ServiceReferenceFlow(t *testing.T) {
	// GIVEN: the reference worker on a SQLite-backed service
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveWorker(ctx, engine.Worker{ID: "w1", Name: "Amina", SeniorityPct: dec("10"), GroupID: "g1"}))
	for _, task := range []engine.Task{{ID: 1, Price: dec("5")}, {ID: 100, Price: dec("8")}, {ID: 101, Price: dec("12")}} {
		require.NoError(t, s.SaveTask(ctx, task))
	}

	logger, _ := test.NewNullLogger()
	svc := engine.NewService(s, logger)
	svc.Now = func() time.Time { return fixedNow }

	_, err := svc.RecordActivity(ctx, []engine.ActivityLog{{WorkerID: "w1", TaskID: 1, Quantity: dec("100"), Date: "2025-06-05"}})
	require.NoError(t, err)

	// WHEN: the half month is generated and the payroll gets an advance
	res, err := svc.GenerateBiMonthly(ctx, engine.GenerateInput{
		Descriptor: engine.PeriodDescriptor{Kind: engine.PeriodHalfMonth, Year: 2025, Month: time.June, Half: engine.FirstHalf},
		Attendance: []engine.Attendance{{WorkerID: "w1", Year: 2025, Month: time.June, Half: engine.FirstHalf, Days: dec("10")}},
	})
	require.NoError(t, err)
	require.True(t, res.Cascade.Complete())

	var payrollID, transferID engine.ReportID
	for _, st := range res.Cascade.Stages {
		switch st.Kind {
		case engine.KindPayroll:
			payrollID = st.ReportID
		case engine.KindTransferOrder:
			transferID = st.ReportID
		}
	}
	updated, warnings, err := svc.UpdateAdjustments(ctx, payrollID, map[engine.WorkerID]engine.Adjustments{"w1": {Advance: dec("100")}})

	// THEN: figures survive the trip through the database
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "712.93", res.Report.Lines[0].NetPay.StringFixed(2))
	assert.Equal(t, "612.93", updated.Lines[0].NetPay.StringFixed(2))

	stored, err := svc.GetReport(ctx, payrollID)
	require.NoError(t, err)
	assert.Equal(t, asJSON(t, updated), asJSON(t, *stored))

	transfer, err := svc.GetReport(ctx, transferID)
	require.NoError(t, err)
	assert.Equal(t, "612.93", transfer.Lines[0].NetPay.StringFixed(2))

	again, _, err := svc.UpdateAdjustments(ctx, payrollID, map[engine.WorkerID]engine.Adjustments{"w1": {Advance: dec("100")}})
	require.NoError(t, err)
	assert.Equal(t, asJSON(t, updated), asJSON(t, again))
}
