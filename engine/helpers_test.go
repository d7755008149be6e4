package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-payroll/engine"
	"github.com/warp/harvest-payroll/engine/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

const (
	taskCrate engine.TaskID = 1
	taskRow   engine.TaskID = 2
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// standardPrices: crates at 5.00, rows at 3.00, milk 8/day, basket 12/day.
func standardPrices() engine.PriceTable {
	return engine.NewPriceTable([]engine.Task{
		{ID: taskCrate, Price: dec("5.00"), Category: "recolte", Description: "caisse"},
		{ID: taskRow, Price: dec("3.00"), Category: "entretien", Description: "rang"},
		{ID: engine.LaitTaskID, Price: dec("8"), Category: "indemnite", Description: "lait"},
		{ID: engine.PanierTaskID, Price: dec("12"), Category: "indemnite", Description: "panier"},
	})
}

func worker(id, name string, seniority int64, group string) engine.Worker {
	return engine.Worker{
		ID:           engine.WorkerID(id),
		Name:         name,
		SeniorityPct: decimal.NewFromInt(seniority),
		GroupID:      engine.GroupID(group),
	}
}

func logEntry(id, workerID string, task engine.TaskID, qty string, date engine.Date, owner string) engine.ActivityLog {
	return engine.ActivityLog{
		ID:       id,
		WorkerID: engine.WorkerID(workerID),
		TaskID:   task,
		Quantity: dec(qty),
		Date:     date,
		Owner:    engine.GroupID(owner),
	}
}

func attendance(workerID string, year int, month time.Month, half engine.Half, days string, owner string) engine.Attendance {
	return engine.Attendance{
		WorkerID: engine.WorkerID(workerID),
		Year:     year,
		Month:    month,
		Half:     half,
		Days:     dec(days),
		Owner:    engine.GroupID(owner),
	}
}

func june2025First() engine.Period {
	return engine.HalfMonth(2025, time.June, engine.FirstHalf)
}

// jsonBytes gives a canonical form for comparing snapshots.
func jsonBytes(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

// clock is a settable time source shared by service and store.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, time.June, 20, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// =============================================================================
// FAILING SNAPSHOT STORE
// =============================================================================

var errDiskFull = errors.New("disk full")

// flakySnapshots fails CreateSnapshot for the listed kinds. With landFirst
// the write is applied before the failure is reported.
type flakySnapshots struct {
	engine.SnapshotStore

	mu        sync.Mutex
	failKinds map[engine.ReportKind]bool
	landFirst bool
	calls     map[engine.ReportKind]int
}

func newFlakySnapshots(inner engine.SnapshotStore, kinds ...engine.ReportKind) *flakySnapshots {
	f := &flakySnapshots{SnapshotStore: inner, failKinds: map[engine.ReportKind]bool{}, calls: map[engine.ReportKind]int{}}
	for _, k := range kinds {
		f.failKinds[k] = true
	}
	return f
}

func (f *flakySnapshots) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failKinds = map[engine.ReportKind]bool{}
}

func (f *flakySnapshots) CreateSnapshot(ctx context.Context, s engine.Snapshot) (engine.Snapshot, error) {
	f.mu.Lock()
	f.calls[s.Kind]++
	fail := f.failKinds[s.Kind]
	land := f.landFirst
	f.mu.Unlock()

	if !fail {
		return f.SnapshotStore.CreateSnapshot(ctx, s)
	}
	if land {
		if _, err := f.SnapshotStore.CreateSnapshot(ctx, s); err != nil {
			return engine.Snapshot{}, err
		}
	}
	return engine.Snapshot{}, errDiskFull
}

// failingRuns fails the next failures calls to SaveCascadeRun.
type failingRuns struct {
	engine.CascadeRunStore

	mu       sync.Mutex
	failures int
}

func (f *failingRuns) SaveCascadeRun(ctx context.Context, r engine.CascadeRun) error {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.CascadeRunStore.SaveCascadeRun(ctx, r)
}

// =============================================================================
// SERVICE FIXTURE
// =============================================================================

type fixture struct {
	svc   *engine.Service
	store *store.Memory
	clock *clock
}

func newFixture(t *testing.T, workers ...engine.Worker) *fixture {
	t.Helper()
	ctx := context.Background()
	c := newClock()

	mem := store.NewMemory()
	mem.Now = c.Now
	for _, w := range workers {
		require.NoError(t, mem.SaveWorker(ctx, w))
	}
	for _, task := range standardPrices() {
		require.NoError(t, mem.SaveTask(ctx, task))
	}

	svc := engine.NewService(mem, quietLogger())
	svc.Now = c.Now
	return &fixture{svc: svc, store: mem, clock: c}
}
