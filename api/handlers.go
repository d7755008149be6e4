/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the engine Service via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the engine.

ENDPOINTS:
  Roster:
    GET    /api/workers                    List workers
    POST   /api/workers                    Create or replace a worker
    GET    /api/workers/{id}               Get worker

  Tasks:
    GET    /api/tasks                      Price table
    POST   /api/tasks                      Create or replace a task

  Raw inputs:
    POST   /api/activity                   Append a batch of log entries
    POST   /api/attendance                 Upsert a batch, in order

  Reports:
    POST   /api/reports/bimonthly          Aggregate a half month and cascade
    GET    /api/reports?kind=              List reports
    GET    /api/reports/{id}               Get report
    PUT    /api/reports/{id}/adjustments   Edit adjustments and recompute
    POST   /api/reports/rollups/season     Season summary
    POST   /api/reports/rollups/annual     Annual summary of selected reports

  Cascades:
    GET    /api/cascades/{id}              Cascade run status
    POST   /api/cascades/{id}/resume       Retry failed stages

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, non-editable fields
  - 404: Report, worker or cascade run not found
  - 409: Duplicate report id
  - 503: Cascade incomplete; the body still carries what was written
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-payroll/config"
	"github.com/warp/harvest-payroll/engine"
	"github.com/warp/harvest-payroll/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *engine.Service
	Catalog *factory.CatalogFactory
	Logger  logrus.FieldLogger

	// Reset clears the database before a scenario loads. Nil disables
	// scenario loading.
	Reset func(ctx context.Context) error

	validate *validator.Validate

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over svc.
func NewHandler(svc *engine.Service, logger logrus.FieldLogger) *Handler {
	return &Handler{
		Service:  svc,
		Catalog:  factory.NewCatalogFactory(),
		Logger:   logger,
		validate: validator.New(),
	}
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

// ListWorkers returns the roster.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Service.Store.ListWorkers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list workers", err)
		return
	}

	dtos := make([]WorkerDTO, len(workers))
	for i, wk := range workers {
		dtos[i] = toWorkerDTO(wk)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWorker returns a single worker.
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id := engine.WorkerID(chi.URLParam(r, "id"))

	wk, err := h.Service.Store.GetWorker(r.Context(), id)
	if errors.Is(err, engine.ErrWorkerNotFound) {
		writeError(w, http.StatusNotFound, "Worker not found", err)
		return
	}
	if err != nil {
		h.writeServiceError(w, "Failed to get worker", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(*wk))
}

// CreateWorker creates or replaces a worker.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SeniorityPct.IsNegative() {
		writeError(w, http.StatusBadRequest, "seniority_pct cannot be negative", nil)
		return
	}

	wk := engine.Worker{
		ID:           engine.WorkerID(req.ID),
		Name:         req.Name,
		BankAccount:  req.BankAccount,
		CIN:          req.CIN,
		CNSSNumber:   req.CNSSNumber,
		SeniorityPct: req.SeniorityPct,
		Dependents:   req.Dependents,
		GroupID:      engine.GroupID(req.GroupID),
	}
	if err := h.Service.Store.SaveWorker(r.Context(), wk); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save worker", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerDTO(wk))
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// ListTasks returns the price table.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Service.Store.ListTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}

	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTask creates or replaces a price table entry. Existing reports keep
// the prices they were aggregated with.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price cannot be negative", nil)
		return
	}

	t := engine.Task{
		ID:          engine.TaskID(req.ID),
		Price:       req.Price,
		Category:    req.Category,
		Description: req.Description,
	}
	if err := h.Service.Store.SaveTask(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save task", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskDTO(t))
}

// =============================================================================
// RAW INPUT HANDLERS
// =============================================================================

// RecordActivity appends a batch of log entries.
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var req RecordActivityRequest
	if !h.decode(w, r, &req) {
		return
	}

	logs := make([]engine.ActivityLog, len(req.Entries))
	for i, e := range req.Entries {
		logs[i] = engine.ActivityLog{
			ID:       e.ID,
			WorkerID: engine.WorkerID(e.WorkerID),
			TaskID:   engine.TaskID(e.TaskID),
			Quantity: e.Quantity,
			Date:     engine.Date(e.Date),
			Owner:    engine.GroupID(e.Owner),
		}
	}

	saved, err := h.Service.RecordActivity(r.Context(), logs)
	if err != nil {
		h.writeServiceError(w, "Failed to record activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// RecordAttendance upserts a batch of attendance entries in order.
func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req RecordAttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	entries := make([]engine.Attendance, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = e.toAttendance()
	}

	saved, err := h.Service.RecordAttendance(r.Context(), entries)
	if err != nil {
		h.writeServiceError(w, "Failed to record attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(saved))
	for i, a := range saved {
		dtos[i] = toAttendanceDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GenerateBiMonthly aggregates a half month, stores the report and cascades
// its siblings.
func (h *Handler) GenerateBiMonthly(w http.ResponseWriter, r *http.Request) {
	var req GenerateBiMonthlyRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := engine.GenerateInput{
		Descriptor: engine.PeriodDescriptor{
			Kind:  engine.PeriodHalfMonth,
			Year:  req.Year,
			Month: time.Month(req.Month),
			Half:  engine.Half(req.Half),
		},
		Owner:       engine.GroupID(req.Owner),
		Adjustments: toAdjustmentMap(req.Adjustments),
	}
	for _, id := range req.WorkerIDs {
		in.WorkerIDs = append(in.WorkerIDs, engine.WorkerID(id))
	}
	for _, a := range req.Attendance {
		in.Attendance = append(in.Attendance, a.toAttendance())
	}

	result, err := h.Service.GenerateBiMonthly(r.Context(), in)
	if result == nil {
		h.writeServiceError(w, "Failed to generate bi-monthly report", err)
		return
	}

	resp := GenerateResponse{
		Report:   toReportDTO(result.Report),
		Cascade:  toCascadeRunDTO(result.Cascade),
		Warnings: toWarningDTOs(result.Warnings),
	}
	if err != nil {
		h.Logger.WithField("report_id", result.Report.ID).WithError(err).Warn("cascade incomplete")
		resp.Error = err.Error()
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListReports returns stored reports, optionally filtered by kind.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	var f engine.SnapshotFilter
	if kind := r.URL.Query().Get("kind"); kind != "" {
		f.Kind = engine.ReportKind(kind)
		if !f.Kind.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown report kind %q", kind), nil)
			return
		}
	}

	reports, err := h.Service.ListReports(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reports", err)
		return
	}

	dtos := make([]ReportSummaryDTO, len(reports))
	for i, s := range reports {
		dtos[i] = toReportSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReport returns one report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := engine.ReportID(chi.URLParam(r, "id"))

	snap, err := h.Service.GetReport(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "Failed to get report", err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{Report: toReportDTO(*snap)})
}

// UpdateAdjustments edits adjustments and recomputes the report.
func (h *Handler) UpdateAdjustments(w http.ResponseWriter, r *http.Request) {
	id := engine.ReportID(chi.URLParam(r, "id"))

	var req UpdateAdjustmentsRequest
	if !h.decode(w, r, &req) {
		return
	}

	stored, err := h.Service.GetReport(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "Failed to update adjustments", err)
		return
	}

	snap, warnings, err := h.Service.UpdateAdjustments(r.Context(), id, toEditMap(req.Adjustments, *stored))
	if err != nil {
		h.writeServiceError(w, "Failed to update adjustments", err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{Report: toReportDTO(snap), Warnings: toWarningDTOs(warnings)})
}

// SeasonRollup builds the season summary.
func (h *Handler) SeasonRollup(w http.ResponseWriter, r *http.Request) {
	var req SeasonRollupRequest
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := h.Service.SeasonSummary(r.Context(), req.SeasonYear, engine.GroupID(req.Owner))
	if err != nil {
		h.writeServiceError(w, "Failed to build season summary", err)
		return
	}
	writeJSON(w, http.StatusCreated, ReportResponse{Report: toReportDTO(snap)})
}

// AnnualRollup builds an annual summary from the selected reports.
func (h *Handler) AnnualRollup(w http.ResponseWriter, r *http.Request) {
	var req AnnualRollupRequest
	if !h.decode(w, r, &req) {
		return
	}

	ids := make([]engine.ReportID, len(req.ReportIDs))
	for i, id := range req.ReportIDs {
		ids[i] = engine.ReportID(id)
	}

	snap, err := h.Service.AnnualSummary(r.Context(), ids, engine.GroupID(req.Owner))
	if err != nil {
		h.writeServiceError(w, "Failed to build annual summary", err)
		return
	}
	writeJSON(w, http.StatusCreated, ReportResponse{Report: toReportDTO(snap)})
}

// =============================================================================
// CASCADE HANDLERS
// =============================================================================

// GetCascade returns a cascade run's stage status.
func (h *Handler) GetCascade(w http.ResponseWriter, r *http.Request) {
	run, err := h.Service.Store.GetCascadeRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to get cascade", err)
		return
	}
	writeJSON(w, http.StatusOK, toCascadeRunDTO(run))
}

// ResumeCascade retries the failed stages of a cascade run.
func (h *Handler) ResumeCascade(w http.ResponseWriter, r *http.Request) {
	run, err := h.Service.ResumeCascade(r.Context(), chi.URLParam(r, "id"))
	if run == nil {
		h.writeServiceError(w, "Failed to resume cascade", err)
		return
	}
	if err != nil {
		writeJSON(w, statusFor(err), toCascadeRunDTO(run))
		return
	}
	writeJSON(w, http.StatusOK, toCascadeRunDTO(run))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "Validation failed",
				Fields: processValidationErrors(verrs),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func processValidationErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, ve := range verrs {
		out[ve.Namespace()] = ve.Tag()
	}
	return out
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case engine.IsClientError(err):
		return http.StatusBadRequest
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSnapshotExists):
		return http.StatusConflict
	case engine.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		config.LogError(h.Logger, "api", "writeServiceError", message, nil, err)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
