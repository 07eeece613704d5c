/*
handlers.go - HTTP API handlers for the time reconciliation service

PURPOSE:

	Exposes the reconciliation engine via REST API. Handles HTTP
	request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:

	Imports:
	  POST   /api/movements/import       Import a movement-log CSV
	  POST   /api/production             Upsert unit-count activity records

	Queries:
	  GET    /api/sessions               Session rows by day range / worker
	  GET    /api/production             Production records by day range

	Reconciliation:
	  POST   /api/reconcile              Trigger an asynchronous pass
	  GET    /api/runs                   List runs, newest first
	  GET    /api/runs/{id}              One run with live progress

	Anomalies:
	  GET    /api/anomalies              Filtered listing
	  PUT    /api/anomalies/{id}/status  Status transition with note
	  DELETE /api/anomalies              Clear one day (optionally one kind)

ERROR HANDLING:

	Errors are returned as JSON with appropriate HTTP status:
	- 400: Validation errors, invalid input
	- 404: Resource not found
	- 409: Batch rolled back
	- 502: External time source unreachable
	- 500: Internal errors

SECURITY NOTE:

	No authentication middleware. The service is meant to sit behind the
	warehouse intranet proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - recon/pipeline.go: The flow these handlers drive
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/engine"
	"github.com/warp/recon-engine/ingest"
	"github.com/warp/recon-engine/recon"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    recon.TxStore
	Pipeline *recon.Pipeline

	// mu serializes reconciliation passes; overlapping passes over the
	// same period would race on anomaly clearing.
	mu        sync.Mutex
	reconBusy bool
}

// NewHandler creates a new handler.
func NewHandler(store recon.TxStore, pipeline *recon.Pipeline) *Handler {
	return &Handler{Store: store, Pipeline: pipeline}
}

// =============================================================================
// IMPORTS
// =============================================================================

// ImportMovements reads a movement-log CSV from the request body, runs
// session segmentation and allocation, and persists the results.
// Query param "day" (YYYY-MM-DD) is the fallback date for files without a
// date column; defaults to today.
func (h *Handler) ImportMovements(w http.ResponseWriter, r *http.Request) {
	fallback := engine.Today()
	if s := r.URL.Query().Get("day"); s != "" {
		d, err := engine.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid day (use YYYY-MM-DD)", err)
			return
		}
		fallback = d
	}

	events, err := ingest.ReadMovements(r.Body, fallback)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse movement log", err)
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "Movement log contains no usable rows", nil)
		return
	}

	result, err := h.Pipeline.ImportMovements(r.Context(), events, nil)
	if err != nil {
		writeError(w, importStatus(err), "Failed to import movements", err)
		return
	}

	writeJSON(w, http.StatusOK, ImportResultDTO{
		RawRows:     result.RawRows,
		WorkerDays:  result.WorkerDays,
		SessionRows: result.SessionRows,
		Records:     result.Records,
	})
}

// UpsertProduction writes unit-count activity records (picking, receiving,
// double check) coming from the warehouse management exports.
func (h *Handler) UpsertProduction(w http.ResponseWriter, r *http.Request) {
	var req UpsertProductionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "No records provided", nil)
		return
	}

	records := make([]recon.ProductionRecord, 0, len(req.Records))
	for i, in := range req.Records {
		day, err := engine.ParseDay(in.Day)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid day in record "+strconv.Itoa(i), err)
			return
		}
		if in.Worker == "" || in.Activity == "" {
			writeError(w, http.StatusBadRequest, "Missing worker or activity in record "+strconv.Itoa(i), nil)
			return
		}
		records = append(records, recon.ProductionRecord{
			Worker:          engine.WorkerCode(in.Worker),
			Activity:        recon.Activity(in.Activity),
			Day:             day,
			Location:        in.Location,
			Units:           in.Units,
			ManagerialHours: decimal.Zero,
		})
	}

	err := h.Store.WithTx(r.Context(), func(s recon.Store) error {
		return s.UpsertProduction(r.Context(), records)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to upsert production", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"records": len(records)})
}

// =============================================================================
// QUERIES
// =============================================================================

// ListSessionRows returns the session projection for a day range,
// optionally filtered by worker.
func (h *Handler) ListSessionRows(w http.ResponseWriter, r *http.Request) {
	from, to, ok := dayRange(w, r)
	if !ok {
		return
	}

	rows, err := h.Store.SessionRows(r.Context(), from, to,
		engine.WorkerCode(r.URL.Query().Get("worker")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list session rows", err)
		return
	}

	dtos := make([]SessionRowDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, toSessionRowDTO(row))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListProduction returns production records for a day range.
func (h *Handler) ListProduction(w http.ResponseWriter, r *http.Request) {
	from, to, ok := dayRange(w, r)
	if !ok {
		return
	}

	records, err := h.Store.ProductionByDays(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list production", err)
		return
	}

	dtos := make([]ProductionDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toProductionDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// TriggerReconcile starts an asynchronous reconciliation pass and returns
// the run ID immediately. Poll /api/runs/{id} for progress.
func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	if h.Pipeline.Source == nil {
		writeError(w, http.StatusConflict, "External time source not configured", nil)
		return
	}

	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := engine.ParseDay(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from day (use YYYY-MM-DD)", err)
		return
	}
	to, err := engine.ParseDay(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to day (use YYYY-MM-DD)", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "Period end precedes period start", nil)
		return
	}

	h.mu.Lock()
	if h.reconBusy {
		h.mu.Unlock()
		writeError(w, http.StatusConflict, "A reconciliation pass is already running", nil)
		return
	}
	h.reconBusy = true
	h.mu.Unlock()

	runID := uuid.NewString()
	pipeline := *h.Pipeline
	pipeline.ClearExisting = req.ClearExisting

	go func() {
		defer func() {
			h.mu.Lock()
			h.reconBusy = false
			h.mu.Unlock()
		}()
		// Detached from the request context: the pass outlives the trigger.
		if _, err := pipeline.ReconcileRun(context.Background(), runID, from, to, nil); err != nil {
			log.Printf("[API] Reconciliation run %s failed: %v", runID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"period": recon.FormatPeriod(from, to),
	})
}

// ListRuns returns reconciliation runs, newest first. Query param "limit"
// caps the count (default 50).
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns one run, including live progress while it is running.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.RunByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// =============================================================================
// ANOMALIES
// =============================================================================

// ListAnomalies returns anomalies matching the query filters: from, to,
// kind (repeatable), status, worker.
func (h *Handler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	var filter recon.AnomalyFilter
	q := r.URL.Query()

	if s := q.Get("from"); s != "" {
		d, err := engine.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from day", err)
			return
		}
		filter.From = &d
	}
	if s := q.Get("to"); s != "" {
		d, err := engine.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to day", err)
			return
		}
		filter.To = &d
	}
	for _, k := range q["kind"] {
		filter.Kinds = append(filter.Kinds, recon.AnomalyKind(k))
	}
	filter.Status = recon.AnomalyStatus(q.Get("status"))
	filter.Worker = engine.WorkerCode(q.Get("worker"))

	anomalies, err := h.Store.Anomalies(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list anomalies", err)
		return
	}

	dtos := make([]AnomalyDTO, 0, len(anomalies))
	for _, a := range anomalies {
		dtos = append(dtos, toAnomalyDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateAnomalyStatus transitions one anomaly to OPEN, VERIFIED or
// RESOLVED, optionally attaching an operator note.
func (h *Handler) UpdateAnomalyStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateAnomalyStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := chi.URLParam(r, "id")
	err := h.Store.UpdateAnomalyStatus(r.Context(), id, recon.AnomalyStatus(req.Status), req.Note)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, "Invalid status (use OPEN, VERIFIED or RESOLVED)", err)
		case errors.Is(err, engine.ErrNotFound):
			writeError(w, http.StatusNotFound, "Anomaly not found", nil)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to update anomaly", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// ClearAnomalies deletes anomalies for one day, optionally restricted to a
// kind. Meant for manual cleanup before re-running a period.
func (h *Handler) ClearAnomalies(w http.ResponseWriter, r *http.Request) {
	day, err := engine.ParseDay(r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing day", err)
		return
	}

	deleted, err := h.Store.ClearAnomaliesByDay(r.Context(), day,
		recon.AnomalyKind(r.URL.Query().Get("kind")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear anomalies", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// dayRange parses required from/to query params; writes the error response
// itself when they are missing or malformed.
func dayRange(w http.ResponseWriter, r *http.Request) (engine.Day, engine.Day, bool) {
	from, err := engine.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing from day (use YYYY-MM-DD)", err)
		return engine.Day{}, engine.Day{}, false
	}
	to, err := engine.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing to day (use YYYY-MM-DD)", err)
		return engine.Day{}, engine.Day{}, false
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "Period end precedes period start", nil)
		return engine.Day{}, engine.Day{}, false
	}
	return from, to, true
}

func importStatus(err error) int {
	switch {
	case engine.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrBatchRolledBack):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
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
