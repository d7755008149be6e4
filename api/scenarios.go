/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates a roster, the standard
	task catalog, activity logs and attendance, then generates the reports
	that demonstrate a specific feature.

AVAILABLE SCENARIOS:

	worked-example:     One worker, one half month, the reference figures
	season-cooperative: Two groups over two half months plus a season summary
	group-transfer:     A worker changes group mid-period

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Load the standard task catalog via factory
 3. Create workers
 4. Record activity and attendance
 5. Generate bi-monthly reports (each cascades its siblings)
 6. Optionally build rollups

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "season-cooperative"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - factory/catalog.go: catalog parsing
  - farm/catalog.go: the standard catalog
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/harvest-payroll/engine"
)

// =============================================================================
// SCENARIO REGISTRY
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "worked-example",
		Name:        "Worked Example",
		Description: "One worker, 100 crates at 5.00, 10% seniority, 10 days worked: net 712.93",
	},
	{
		ID:          "season-cooperative",
		Name:        "Season With Cooperative",
		Description: "Four workers in two groups over June 2025, both halves, rolled up into the 2025 season",
	},
	{
		ID:          "group-transfer",
		Name:        "Group Transfer",
		Description: "A worker moves group mid-month; entries logged under the old group stay out of the new group's report",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.Reset == nil {
		writeError(w, http.StatusNotImplemented, "Scenario loading is disabled", nil)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "worked-example":
		err = h.loadWorkedExampleScenario(ctx)
	case "season-cooperative":
		err = h.loadSeasonCooperativeScenario(ctx)
	case "group-transfer":
		err = h.loadGroupTransferScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Logger.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Reset == nil {
		writeError(w, http.StatusNotImplemented, "Reset is disabled", nil)
		return
	}
	if err := h.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const (
	groupNorth = engine.GroupID("g-north")
	groupSouth = engine.GroupID("g-south")
	groupCoop  = engine.GroupID("coop-atlas")

	taskCitrus = engine.TaskID(1)
	taskOlives = engine.TaskID(2)
	taskPrune  = engine.TaskID(3)
)

func (h *Handler) loadWorkedExampleScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	if err := h.seedWorkers(ctx, engine.Worker{
		ID: "w-benali", Name: "Ahmed Benali", CNSSNumber: "112233445",
		BankAccount: "011780000012345678901234", SeniorityPct: decimal.NewFromInt(10), GroupID: groupNorth,
	}); err != nil {
		return err
	}

	if _, err := h.Service.RecordActivity(ctx, []engine.ActivityLog{
		{WorkerID: "w-benali", TaskID: taskCitrus, Quantity: decimal.NewFromInt(60), Date: engine.NewDate(2025, time.June, 3)},
		{WorkerID: "w-benali", TaskID: taskCitrus, Quantity: decimal.NewFromInt(40), Date: engine.NewDate(2025, time.June, 9)},
	}); err != nil {
		return err
	}

	_, err := h.Service.GenerateBiMonthly(ctx, engine.GenerateInput{
		Descriptor: engine.PeriodDescriptor{Kind: engine.PeriodHalfMonth, Year: 2025, Month: time.June, Half: engine.FirstHalf},
		Attendance: []engine.Attendance{
			{WorkerID: "w-benali", Year: 2025, Month: time.June, Half: engine.FirstHalf, Days: decimal.NewFromInt(10)},
		},
	})
	return err
}

func (h *Handler) loadSeasonCooperativeScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	if err := h.seedWorkers(ctx,
		engine.Worker{ID: "w-amrani", Name: "Fatima Amrani", SeniorityPct: decimal.NewFromInt(5), GroupID: groupCoop},
		engine.Worker{ID: "w-idrissi", Name: "Youssef Idrissi", SeniorityPct: decimal.Zero, GroupID: groupCoop},
		engine.Worker{ID: "w-tazi", Name: "Khadija Tazi", SeniorityPct: decimal.NewFromInt(15), GroupID: groupNorth},
		engine.Worker{ID: "w-alaoui", Name: "Omar Alaoui", SeniorityPct: decimal.NewFromInt(10), GroupID: groupNorth},
	); err != nil {
		return err
	}

	qty := decimal.NewFromInt
	if _, err := h.Service.RecordActivity(ctx, []engine.ActivityLog{
		{WorkerID: "w-amrani", TaskID: taskCitrus, Quantity: qty(55), Date: engine.NewDate(2025, time.June, 4)},
		{WorkerID: "w-idrissi", TaskID: taskOlives, Quantity: qty(80), Date: engine.NewDate(2025, time.June, 5)},
		{WorkerID: "w-tazi", TaskID: taskPrune, Quantity: qty(300), Date: engine.NewDate(2025, time.June, 10)},
		{WorkerID: "w-alaoui", TaskID: taskCitrus, Quantity: qty(70), Date: engine.NewDate(2025, time.June, 12)},
		{WorkerID: "w-amrani", TaskID: taskCitrus, Quantity: qty(45), Date: engine.NewDate(2025, time.June, 18)},
		{WorkerID: "w-idrissi", TaskID: taskOlives, Quantity: qty(60), Date: engine.NewDate(2025, time.June, 20)},
		{WorkerID: "w-tazi", TaskID: taskPrune, Quantity: qty(250), Date: engine.NewDate(2025, time.June, 24)},
		{WorkerID: "w-alaoui", TaskID: taskCitrus, Quantity: qty(90), Date: engine.NewDate(2025, time.June, 27)},
	}); err != nil {
		return err
	}

	for _, half := range []engine.Half{engine.FirstHalf, engine.SecondHalf} {
		var attendance []engine.Attendance
		for _, id := range []engine.WorkerID{"w-amrani", "w-idrissi", "w-tazi", "w-alaoui"} {
			attendance = append(attendance, engine.Attendance{
				WorkerID: id, Year: 2025, Month: time.June, Half: half, Days: qty(12),
			})
		}
		if _, err := h.Service.GenerateBiMonthly(ctx, engine.GenerateInput{
			Descriptor: engine.PeriodDescriptor{Kind: engine.PeriodHalfMonth, Year: 2025, Month: time.June, Half: half},
			Attendance: attendance,
		}); err != nil {
			return err
		}
	}

	_, err := h.Service.SeasonSummary(ctx, 2025, "")
	return err
}

func (h *Handler) loadGroupTransferScenario(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	if err := h.seedWorkers(ctx,
		engine.Worker{ID: "w-chraibi", Name: "Said Chraibi", SeniorityPct: decimal.NewFromInt(5), GroupID: groupNorth},
		engine.Worker{ID: "w-bennani", Name: "Nadia Bennani", SeniorityPct: decimal.Zero, GroupID: groupSouth},
	); err != nil {
		return err
	}

	// Logged while w-chraibi still belonged to g-north.
	if _, err := h.Service.RecordActivity(ctx, []engine.ActivityLog{
		{WorkerID: "w-chraibi", TaskID: taskCitrus, Quantity: decimal.NewFromInt(50), Date: engine.NewDate(2025, time.July, 2)},
		{WorkerID: "w-bennani", TaskID: taskCitrus, Quantity: decimal.NewFromInt(65), Date: engine.NewDate(2025, time.July, 3)},
	}); err != nil {
		return err
	}

	// Transfer to g-south, then log again.
	if err := h.Service.Store.SaveWorker(ctx, engine.Worker{
		ID: "w-chraibi", Name: "Said Chraibi", SeniorityPct: decimal.NewFromInt(5), GroupID: groupSouth,
	}); err != nil {
		return err
	}
	if _, err := h.Service.RecordActivity(ctx, []engine.ActivityLog{
		{WorkerID: "w-chraibi", TaskID: taskCitrus, Quantity: decimal.NewFromInt(30), Date: engine.NewDate(2025, time.July, 10)},
	}); err != nil {
		return err
	}

	_, err := h.Service.GenerateBiMonthly(ctx, engine.GenerateInput{
		Descriptor: engine.PeriodDescriptor{Kind: engine.PeriodHalfMonth, Year: 2025, Month: time.July, Half: engine.FirstHalf},
		Owner:      groupSouth,
		Attendance: []engine.Attendance{
			{WorkerID: "w-chraibi", Year: 2025, Month: time.July, Half: engine.FirstHalf, Days: decimal.NewFromInt(9)},
			{WorkerID: "w-bennani", Year: 2025, Month: time.July, Half: engine.FirstHalf, Days: decimal.NewFromInt(11)},
		},
	})
	return err
}

func (h *Handler) seedCatalog(ctx context.Context) error {
	tasks, err := h.Catalog.Standard()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := h.Service.Store.SaveTask(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedWorkers(ctx context.Context, workers ...engine.Worker) error {
	for _, w := range workers {
		if err := h.Service.Store.SaveWorker(ctx, w); err != nil {
			return err
		}
	}
	return nil
}
