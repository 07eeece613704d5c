/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:

	Defines the JSON structures for API communication. These types decouple
	the internal domain model from the external API contract, allowing:
	- Field renaming without breaking clients
	- API-specific validation
	- Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DECIMALS:

	Hour and minute amounts cross the wire as JSON numbers. They are
	computed with fixed-point arithmetic internally and already rounded to
	two decimals, so float serialization is lossless at this scale.

VALIDATION:

	Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/engine"
	"github.com/warp/recon-engine/recon"
)

// =============================================================================
// SESSION ROWS
// =============================================================================

// SessionRowDTO is one row of the denormalized session projection. Pointer
// fields render as null where the projection leaves them unset.
type SessionRowDTO struct {
	Day             string   `json:"day"`
	Worker          string   `json:"worker"`
	RowNumber       int      `json:"row_number"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	DurationMinutes float64  `json:"duration_minutes"`
	GapMinutes      *float64 `json:"gap_minutes"`
	CountST         *int     `json:"count_st"`
	CountSS         *int     `json:"count_ss"`
	CountAP         *int     `json:"count_ap"`
	CountCM         *int     `json:"count_cm"`
	SessionNumber   int      `json:"session_number"`
	SessionStart    *string  `json:"session_start"`
	SessionEnd      *string  `json:"session_end"`
	SessionHours    *float64 `json:"session_hours"`
	SessionRowCount *int     `json:"session_row_count"`
	HoursST         *float64 `json:"hours_st"`
	HoursSS         *float64 `json:"hours_ss"`
	HoursAP         *float64 `json:"hours_ap"`
	HoursCM         *float64 `json:"hours_cm"`
}

func toSessionRowDTO(r engine.SessionRow) SessionRowDTO {
	return SessionRowDTO{
		Day:             r.Day.String(),
		Worker:          string(r.Worker),
		RowNumber:       r.RowNumber,
		Start:           r.Start.String(),
		End:             r.End.String(),
		DurationMinutes: r.DurationMinutes.InexactFloat64(),
		GapMinutes:      decimalPtr(r.GapMinutes),
		CountST:         r.CountST,
		CountSS:         r.CountSS,
		CountAP:         r.CountAP,
		CountCM:         r.CountCM,
		SessionNumber:   r.SessionNumber,
		SessionStart:    clockPtr(r.SessionStart),
		SessionEnd:      clockPtr(r.SessionEnd),
		SessionHours:    decimalPtr(r.SessionHours),
		SessionRowCount: r.SessionRowCount,
		HoursST:         decimalPtr(r.HoursST),
		HoursSS:         decimalPtr(r.HoursSS),
		HoursAP:         decimalPtr(r.HoursAP),
		HoursCM:         decimalPtr(r.HoursCM),
	}
}

// =============================================================================
// PRODUCTION
// =============================================================================

// ProductionDTO is one production record in API responses.
type ProductionDTO struct {
	Day             string  `json:"day"`
	Worker          string  `json:"worker"`
	Activity        string  `json:"activity"`
	Location        string  `json:"location"`
	Units           int     `json:"units"`
	ExternalHours   float64 `json:"external_hours"`
	ManagerialHours float64 `json:"managerial_hours"`
	DisplayName     string  `json:"display_name,omitempty"`
}

func toProductionDTO(rec recon.ProductionRecord) ProductionDTO {
	return ProductionDTO{
		Day:             rec.Day.String(),
		Worker:          string(rec.Worker),
		Activity:        string(rec.Activity),
		Location:        rec.Location,
		Units:           rec.Units,
		ExternalHours:   rec.ExternalHours.InexactFloat64(),
		ManagerialHours: rec.ManagerialHours.InexactFloat64(),
		DisplayName:     rec.DisplayName,
	}
}

// UpsertProductionRequest carries unit-count activity records (picking,
// receiving, double check) into the store.
type UpsertProductionRequest struct {
	Records []ProductionInput `json:"records"`
}

// ProductionInput is one record in an upsert request.
type ProductionInput struct {
	Day      string `json:"day"`
	Worker   string `json:"worker"`
	Activity string `json:"activity"`
	Location string `json:"location"`
	Units    int    `json:"units"`
}

// =============================================================================
// IMPORT / RECONCILE
// =============================================================================

// ImportResultDTO summarizes a movement-log import.
type ImportResultDTO struct {
	RawRows     int `json:"raw_rows"`
	WorkerDays  int `json:"worker_days"`
	SessionRows int `json:"session_rows"`
	Records     int `json:"production_records"`
}

// ReconcileRequest asks for a reconciliation pass over a day range.
type ReconcileRequest struct {
	From          string `json:"from"`
	To            string `json:"to"`
	ClearExisting bool   `json:"clear_existing"`
}

// RunDTO is a reconciliation run in API responses.
type RunDTO struct {
	ID          string `json:"id"`
	Period      string `json:"period"`
	From        string `json:"from"`
	To          string `json:"to"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Keys        int    `json:"keys"`
	Matched     int    `json:"matched"`
	Missing     int    `json:"missing"`
	HourUpdates int    `json:"hour_updates"`
	Anomalies   int    `json:"anomalies"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

func toRunDTO(run recon.Run) RunDTO {
	dto := RunDTO{
		ID:          run.ID,
		Period:      recon.FormatPeriod(run.From, run.To),
		From:        run.From.String(),
		To:          run.To.String(),
		Status:      string(run.Status),
		Progress:    run.Progress,
		Keys:        run.Keys,
		Matched:     run.Matched,
		Missing:     run.Missing,
		HourUpdates: run.HourUpdates,
		Anomalies:   run.Anomalies,
		Error:       run.Error,
		StartedAt:   run.StartedAt.Format(time.RFC3339),
	}
	if !run.FinishedAt.IsZero() {
		dto.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// ANOMALIES
// =============================================================================

// AnomalyDTO is one classified anomaly in API responses.
type AnomalyDTO struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Day           string   `json:"day"`
	Worker        string   `json:"worker"`
	WorkerName    string   `json:"worker_name,omitempty"`
	Activity      string   `json:"activity,omitempty"`
	ExternalHours *float64 `json:"external_hours"`
	Detail        string   `json:"detail,omitempty"`
	Status        string   `json:"status"`
	Note          string   `json:"note,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

func toAnomalyDTO(a recon.Anomaly) AnomalyDTO {
	return AnomalyDTO{
		ID:            a.ID,
		Kind:          string(a.Kind),
		Day:           a.Day.String(),
		Worker:        string(a.Worker),
		WorkerName:    a.WorkerName,
		Activity:      string(a.Activity),
		ExternalHours: decimalPtr(a.ExternalHours),
		Detail:        a.Detail,
		Status:        string(a.Status),
		Note:          a.Note,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.Format(time.RFC3339),
	}
}

// UpdateAnomalyStatusRequest transitions one anomaly.
type UpdateAnomalyStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// HELPERS
// =============================================================================

func decimalPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func clockPtr(c *engine.ClockTime) *string {
	if c == nil {
		return nil
	}
	s := c.String()
	return &s
}
