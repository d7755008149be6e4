package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-payroll/engine"
)

func TestListScenarios(t *testing.T) {
	router := NewRouter(setupTestHandler(t))

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ScenarioDTO](t, rec)
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.ElementsMatch(t, []string{"worked-example", "season-cooperative", "group-transfer"}, ids)
}

func TestLoadScenario_EachScenario(t *testing.T) {
	tests := []struct {
		id          string
		bimonthlies int
		summaries   int
	}{
		{"worked-example", 1, 0},
		{"season-cooperative", 2, 1},
		{"group-transfer", 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			router := NewRouter(setupTestHandler(t))

			rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": tt.id})

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			bimonthly := decodeBody[[]ReportSummaryDTO](t, do(t, router, http.MethodGet, "/api/reports?kind=bimonthly", nil))
			assert.Len(t, bimonthly, tt.bimonthlies)
			season := decodeBody[[]ReportSummaryDTO](t, do(t, router, http.MethodGet, "/api/reports?kind="+string(engine.KindSeasonSummary), nil))
			assert.Len(t, season, tt.summaries)

			current := decodeBody[ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios/current", nil))
			assert.Equal(t, tt.id, current.ID)
		})
	}
}

func TestLoadScenario_ReplacesPreviousData(t *testing.T) {
	// GIVEN: one scenario loaded
	router := NewRouter(setupTestHandler(t))
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "season-cooperative"}).Code)

	// WHEN: another one is loaded
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "worked-example"})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: only its roster remains
	workers := decodeBody[[]WorkerDTO](t, do(t, router, http.MethodGet, "/api/workers", nil))
	require.Len(t, workers, 1)
	assert.Equal(t, "w-benali", workers[0].ID)
}

func TestLoadScenario_Unknown(t *testing.T) {
	router := NewRouter(setupTestHandler(t))

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "winter"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDatabase(t *testing.T) {
	router := NewRouter(setupTestHandler(t))
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "worked-example"}).Code)

	rec := do(t, router, http.MethodPost, "/api/scenarios/reset", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]ReportSummaryDTO](t, do(t, router, http.MethodGet, "/api/reports", nil)))
	assert.Equal(t, "null\n", do(t, router, http.MethodGet, "/api/scenarios/current", nil).Body.String())
}

func TestScenarios_DisabledWithoutReset(t *testing.T) {
	h := setupTestHandler(t)
	h.Reset = nil
	router := NewRouter(h)

	assert.Equal(t, http.StatusNotImplemented,
		do(t, router, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "worked-example"}).Code)
	assert.Equal(t, http.StatusNotImplemented, do(t, router, http.MethodPost, "/api/scenarios/reset", nil).Code)
}
