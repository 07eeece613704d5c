/*
store.go - Persistence interfaces for reconciliation outputs

PURPOSE:

	Defines the contract between the pipeline and the database. Three output
	families: session rows (engine projection), production records (with the
	external-hour upsert), anomalies. All writes the pipeline performs for a
	batch go through WithTx so a mid-batch failure rolls everything back.

UPSERT KEYS:

	session_rows:       (day, worker, row_number), replaced per worker-day
	production_records: (day, worker, activity, location)
	anomalies:          append-only by id; status transition is the only update

IMPLEMENTATIONS:
  - store/sqlite:       production SQLite store
  - engine/store:       in-memory store for tests/dev
*/
package recon

import (
	"context"

	"github.com/warp/recon-engine/engine"
)

// SessionRowStore persists the engine's denormalized projection.
type SessionRowStore interface {
	// ReplaceSessionRows deletes existing rows for every (worker, day)
	// present in rows, then inserts the new rows. Atomic.
	ReplaceSessionRows(ctx context.Context, rows []engine.SessionRow) error

	// SessionRows returns rows in [from, to], optionally filtered by worker,
	// ordered by day, worker, row number.
	SessionRows(ctx context.Context, from, to engine.Day, worker engine.WorkerCode) ([]engine.SessionRow, error)
}

// ProductionStore persists production records and external-hour updates.
type ProductionStore interface {
	// UpsertProduction writes records keyed by (day, worker, activity,
	// location), overwriting units and managerial hours.
	UpsertProduction(ctx context.Context, records []ProductionRecord) error

	// ApplyHourUpdates upserts external hours and display names onto
	// existing records. Returns the number of records touched.
	ApplyHourUpdates(ctx context.Context, updates []HourUpdate) (int, error)

	// ProductionByDays returns all records with day in [from, to].
	ProductionByDays(ctx context.Context, from, to engine.Day) ([]ProductionRecord, error)
}

// AnomalyStore persists classified anomalies.
type AnomalyStore interface {
	// AppendAnomalies inserts new anomalies. Insert-only.
	AppendAnomalies(ctx context.Context, anomalies []Anomaly) error

	// Anomalies lists anomalies matching the filter, newest day first.
	Anomalies(ctx context.Context, filter AnomalyFilter) ([]Anomaly, error)

	// UpdateAnomalyStatus transitions one anomaly. The only permitted
	// mutation after creation.
	UpdateAnomalyStatus(ctx context.Context, id string, status AnomalyStatus, note string) error

	// ClearAnomaliesByDay deletes anomalies detected on a day, optionally
	// restricted to one kind (empty = all kinds). Returns rows deleted.
	ClearAnomaliesByDay(ctx context.Context, day engine.Day, kind AnomalyKind) (int, error)
}

// RunStore records reconciliation runs for inspection.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	Runs(ctx context.Context, limit int) ([]Run, error)
	RunByID(ctx context.Context, id string) (Run, error)
}

// Store is everything the pipeline needs.
type Store interface {
	SessionRowStore
	ProductionStore
	AnomalyStore
	RunStore
}

// TxStore adds transactional batch writes.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction rolls back and prior state is restored.
	WithTx(ctx context.Context, fn func(Store) error) error
}
