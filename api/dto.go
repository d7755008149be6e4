/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's stored model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Roster:      WorkerDTO, CreateWorkerRequest
  Tasks:       TaskDTO, CreateTaskRequest
  Inputs:      RecordActivityRequest, RecordAttendanceRequest
  Reports:     GenerateBiMonthlyRequest, UpdateAdjustmentsRequest,
               SeasonRollupRequest, AnnualRollupRequest, ReportDTO
  Cascades:    CascadeRunDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Struct tags are checked with go-playground/validator before a request
  reaches the engine. Money fields are decimals and are range-checked in
  the conversion helpers.

ROUNDING:
  Stored figures carry full precision. ReportDTO presents them rounded to
  two decimals; the stored snapshot is never rounded.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/snapshot.go: Snapshot, Line
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/harvest-payroll/engine"
)

// =============================================================================
// ROSTER & TASKS
// =============================================================================

type WorkerDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	BankAccount  string          `json:"bank_account,omitempty"`
	CIN          string          `json:"cin,omitempty"`
	CNSSNumber   string          `json:"cnss_number,omitempty"`
	SeniorityPct decimal.Decimal `json:"seniority_pct"`
	Dependents   int             `json:"dependents"`
	GroupID      string          `json:"group_id"`
}

type CreateWorkerRequest struct {
	ID           string          `json:"id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	BankAccount  string          `json:"bank_account"`
	CIN          string          `json:"cin"`
	CNSSNumber   string          `json:"cnss_number"`
	SeniorityPct decimal.Decimal `json:"seniority_pct"`
	Dependents   int             `json:"dependents" validate:"gte=0"`
	GroupID      string          `json:"group_id" validate:"required"`
}

type TaskDTO struct {
	ID          int             `json:"id"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

type CreateTaskRequest struct {
	ID          int             `json:"id" validate:"gte=0"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" validate:"required"`
	Description string          `json:"description" validate:"required"`
}

// =============================================================================
// RAW INPUTS
// =============================================================================

type ActivityEntryRequest struct {
	ID       string          `json:"id"`
	WorkerID string          `json:"worker_id" validate:"required"`
	TaskID   int             `json:"task_id" validate:"gte=0"`
	Quantity decimal.Decimal `json:"quantity"`
	Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
	Owner    string          `json:"owner"`
}

type RecordActivityRequest struct {
	Entries []ActivityEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

type AttendanceEntryRequest struct {
	WorkerID string          `json:"worker_id" validate:"required"`
	Year     int             `json:"year" validate:"required,gt=0"`
	Month    int             `json:"month" validate:"required,min=1,max=12"`
	Half     int             `json:"half" validate:"required,oneof=1 2"`
	Days     decimal.Decimal `json:"days"`
	Owner    string          `json:"owner"`
}

type AttendanceDTO struct {
	WorkerID  string          `json:"worker_id"`
	Year      int             `json:"year"`
	Month     int             `json:"month"`
	Half      int             `json:"half"`
	Days      decimal.Decimal `json:"days"`
	Owner     string          `json:"owner"`
	UpdatedAt string          `json:"updated_at"`
}

type RecordAttendanceRequest struct {
	Entries []AttendanceEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

// =============================================================================
// REPORTS
// =============================================================================

// AdjustmentsDTO carries edits. On generation a nil field leaves the value
// unset. On update a nil field keeps the stored value; send 0 to clear one.
type AdjustmentsDTO struct {
	Advance    *decimal.Decimal `json:"advance,omitempty"`
	HolidayPay *decimal.Decimal `json:"holiday_pay,omitempty"`
	IncomeTax  *decimal.Decimal `json:"income_tax,omitempty"`
}

type GenerateBiMonthlyRequest struct {
	Year        int                       `json:"year" validate:"required,gt=0"`
	Month       int                       `json:"month" validate:"required,min=1,max=12"`
	Half        int                       `json:"half" validate:"required,oneof=1 2"`
	WorkerIDs   []string                  `json:"worker_ids" validate:"dive,required"`
	Owner       string                    `json:"owner"`
	Attendance  []AttendanceEntryRequest  `json:"attendance" validate:"dive"`
	Adjustments map[string]AdjustmentsDTO `json:"adjustments"`
}

type UpdateAdjustmentsRequest struct {
	Adjustments map[string]AdjustmentsDTO `json:"adjustments" validate:"required,min=1"`
}

type SeasonRollupRequest struct {
	// SeasonYear is the calendar year the season starts in; 0 means the
	// current season.
	SeasonYear int    `json:"season_year" validate:"gte=0"`
	Owner      string `json:"owner"`
}

type AnnualRollupRequest struct {
	ReportIDs []string `json:"report_ids" validate:"required,min=1,dive,required"`
	Owner     string   `json:"owner"`
}

// ReportDTO is a snapshot with figures rounded for presentation.
type ReportDTO struct {
	ID           string                    `json:"id"`
	Kind         engine.ReportKind         `json:"kind"`
	Params       engine.ReportParams       `json:"params"`
	Lines        []engine.Line             `json:"lines"`
	Subtotals    map[string]engine.Figures `json:"subtotals,omitempty"`
	Totals       engine.Figures            `json:"totals"`
	AggregatedAt string                    `json:"aggregated_at"`
	CreatedAt    string                    `json:"created_at"`
	UpdatedAt    string                    `json:"updated_at"`
}

// ReportSummaryDTO is the list view of a report.
type ReportSummaryDTO struct {
	ID        string            `json:"id"`
	Kind      engine.ReportKind `json:"kind"`
	Period    engine.Period     `json:"period"`
	Lines     int               `json:"lines"`
	NetPay    decimal.Decimal   `json:"net_pay"`
	CreatedAt string            `json:"created_at"`
}

type WarningDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ReportResponse struct {
	Report   ReportDTO    `json:"report"`
	Warnings []WarningDTO `json:"warnings,omitempty"`
}

type GenerateResponse struct {
	Report   ReportDTO      `json:"report"`
	Cascade  *CascadeRunDTO `json:"cascade,omitempty"`
	Warnings []WarningDTO   `json:"warnings,omitempty"`

	// Error is set when the cascade did not complete.
	Error string `json:"error,omitempty"`
}

// =============================================================================
// CASCADES
// =============================================================================

type CascadeStageDTO struct {
	Kind     engine.ReportKind  `json:"kind"`
	ReportID string             `json:"report_id"`
	Status   engine.StageStatus `json:"status"`
	Error    string             `json:"error,omitempty"`
	Attempts int                `json:"attempts"`
}

type CascadeRunDTO struct {
	ID             string            `json:"id"`
	SourceReportID string            `json:"source_report_id"`
	Complete       bool              `json:"complete"`
	Stages         []CascadeStageDTO `json:"stages"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toWorkerDTO(w engine.Worker) WorkerDTO {
	return WorkerDTO{
		ID:           string(w.ID),
		Name:         w.Name,
		BankAccount:  w.BankAccount,
		CIN:          w.CIN,
		CNSSNumber:   w.CNSSNumber,
		SeniorityPct: w.SeniorityPct,
		Dependents:   w.Dependents,
		GroupID:      string(w.GroupID),
	}
}

func toTaskDTO(t engine.Task) TaskDTO {
	return TaskDTO{ID: int(t.ID), Price: t.Price, Category: t.Category, Description: t.Description}
}

func toAttendanceDTO(a engine.Attendance) AttendanceDTO {
	return AttendanceDTO{
		WorkerID:  string(a.WorkerID),
		Year:      a.Year,
		Month:     int(a.Month),
		Half:      int(a.Half),
		Days:      a.Days,
		Owner:     string(a.Owner),
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
	}
}

func (r AttendanceEntryRequest) toAttendance() engine.Attendance {
	return engine.Attendance{
		WorkerID: engine.WorkerID(r.WorkerID),
		Year:     r.Year,
		Month:    time.Month(r.Month),
		Half:     engine.Half(r.Half),
		Days:     r.Days,
		Owner:    engine.GroupID(r.Owner),
	}
}

func (a AdjustmentsDTO) toAdjustments() engine.Adjustments {
	var adj engine.Adjustments
	if a.Advance != nil {
		adj.Advance = *a.Advance
	}
	if a.HolidayPay != nil {
		hp := *a.HolidayPay
		adj.HolidayPay = &hp
	}
	if a.IncomeTax != nil {
		adj.IncomeTax = *a.IncomeTax
	}
	return adj
}

// mergeOnto overlays the fields present in a onto stored.
func (a AdjustmentsDTO) mergeOnto(stored engine.Adjustments) engine.Adjustments {
	out := stored
	if a.Advance != nil {
		out.Advance = *a.Advance
	}
	if a.HolidayPay != nil {
		hp := *a.HolidayPay
		out.HolidayPay = &hp
	}
	if a.IncomeTax != nil {
		out.IncomeTax = *a.IncomeTax
	}
	return out
}

// toEditMap merges each worker's edit onto the adjustments snap already
// holds for the fields its kind exposes.
func toEditMap(in map[string]AdjustmentsDTO, snap engine.Snapshot) map[engine.WorkerID]engine.Adjustments {
	policy, _ := engine.PolicyFor(snap.Kind)
	out := make(map[engine.WorkerID]engine.Adjustments, len(in))
	for id, a := range in {
		var stored engine.Adjustments
		if line, ok := snap.Line(engine.WorkerID(id)); ok {
			stored = line.Adjustments.Mask(policy.Editable)
		}
		out[engine.WorkerID(id)] = a.mergeOnto(stored)
	}
	return out
}

func toAdjustmentMap(in map[string]AdjustmentsDTO) map[engine.WorkerID]engine.Adjustments {
	if len(in) == 0 {
		return nil
	}
	out := make(map[engine.WorkerID]engine.Adjustments, len(in))
	for id, a := range in {
		out[engine.WorkerID(id)] = a.toAdjustments()
	}
	return out
}

func toReportDTO(s engine.Snapshot) ReportDTO {
	dto := ReportDTO{
		ID:           string(s.ID),
		Kind:         s.Kind,
		Params:       s.Params,
		Lines:        make([]engine.Line, len(s.Lines)),
		Totals:       s.Totals.Rounded(),
		AggregatedAt: s.AggregatedAt.Format(time.RFC3339),
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    s.UpdatedAt.Format(time.RFC3339),
	}
	for i, l := range s.Lines {
		l.Figures = l.Figures.Rounded()
		dto.Lines[i] = l
	}
	if len(s.Subtotals) > 0 {
		dto.Subtotals = make(map[string]engine.Figures, len(s.Subtotals))
		for k, f := range s.Subtotals {
			dto.Subtotals[k] = f.Rounded()
		}
	}
	return dto
}

func toReportSummaryDTO(s engine.Snapshot) ReportSummaryDTO {
	return ReportSummaryDTO{
		ID:        string(s.ID),
		Kind:      s.Kind,
		Period:    s.Params.Period,
		Lines:     len(s.Lines),
		NetPay:    s.Totals.NetPay.Round(2),
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

func toWarningDTOs(ws []engine.Warning) []WarningDTO {
	if len(ws) == 0 {
		return nil
	}
	out := make([]WarningDTO, len(ws))
	for i, w := range ws {
		out[i] = WarningDTO{Code: w.Code(), Message: w.Error()}
	}
	return out
}

func toCascadeRunDTO(r *engine.CascadeRun) *CascadeRunDTO {
	if r == nil {
		return nil
	}
	dto := &CascadeRunDTO{
		ID:             r.ID,
		SourceReportID: string(r.SourceReportID),
		Complete:       r.Complete(),
		Stages:         make([]CascadeStageDTO, len(r.Stages)),
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
	}
	for i, s := range r.Stages {
		dto.Stages[i] = CascadeStageDTO{
			Kind:     s.Kind,
			ReportID: string(s.ReportID),
			Status:   s.Status,
			Error:    s.Error,
			Attempts: s.Attempts,
		}
	}
	return dto
}
