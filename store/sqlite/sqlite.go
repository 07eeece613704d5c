/*
Package sqlite provides the SQLite-backed implementation of the recon
storage interfaces.

PURPOSE:

	Implements recon.TxStore (session rows, production records, anomalies,
	reconciliation runs) using SQLite. The same patterns apply to
	PostgreSQL - only minor SQL dialect differences.

KEY TABLES:

	session_rows:        denormalized per-event projection; replaced per
	                     worker-day; summary fields null except on the first
	                     row of a session / first category occurrence
	production_records:  one row per (day, worker, activity, location);
	                     external hours upserted by the reconciliation pass
	anomalies:           append-only; only status/note ever change
	reconciliation_runs: one row per pipeline pass

UPSERTS:

	Composite-key upserts via INSERT ... ON CONFLICT DO UPDATE, so re-running
	the allocator with unchanged inputs leaves the tables unchanged.

TRANSACTIONS:

	WithTx wraps a batch in BEGIN/COMMIT; any error rolls the whole batch
	back. The pipeline routes every write phase through it.

DECIMALS:

	Decimal columns are stored as TEXT to avoid float drift; parsed back
	with shopspring/decimal on scan.

WAL MODE:

	SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
	- Multiple readers don't block
	- Single writer at a time
	- Better crash recovery

USAGE:

	store, err := sqlite.New("./data/recon.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

SEE ALSO:
  - recon/store.go: Interface definitions
  - recon/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/engine"
	"github.com/warp/recon-engine/recon"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements recon.Store against any querier, so the same method
// set serves both direct access and transactional access.
type queries struct {
	q querier
}

// Store implements recon.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Denormalized session projection (one row per valid consolidated event)
	CREATE TABLE IF NOT EXISTS session_rows (
		day TEXT NOT NULL,
		worker_code TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration_minutes TEXT NOT NULL,
		gap_minutes TEXT,
		count_st INTEGER,
		count_ss INTEGER,
		count_ap INTEGER,
		count_cm INTEGER,
		session_number INTEGER NOT NULL,
		session_start TEXT,
		session_end TEXT,
		session_hours TEXT,
		session_row_count INTEGER,
		hours_st TEXT,
		hours_ss TEXT,
		hours_ap TEXT,
		hours_cm TEXT,
		PRIMARY KEY (day, worker_code, row_number)
	);

	CREATE INDEX IF NOT EXISTS idx_session_rows_worker
		ON session_rows(worker_code, day);

	-- Production records, one per (day, worker, activity, location)
	CREATE TABLE IF NOT EXISTS production_records (
		day TEXT NOT NULL,
		worker_code TEXT NOT NULL,
		activity TEXT NOT NULL,
		location_tag TEXT NOT NULL DEFAULT '',
		unit_count INTEGER NOT NULL DEFAULT 0,
		external_hours TEXT NOT NULL DEFAULT '0',
		managerial_hours TEXT NOT NULL DEFAULT '0',
		display_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (day, worker_code, activity, location_tag)
	);

	CREATE INDEX IF NOT EXISTS idx_production_day
		ON production_records(day);
	CREATE INDEX IF NOT EXISTS idx_production_worker_activity
		ON production_records(worker_code, activity, day);

	-- Anomalies (append-only; status transitions are the only updates)
	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		day TEXT NOT NULL,
		worker_code TEXT NOT NULL,
		worker_name TEXT NOT NULL DEFAULT '',
		activity TEXT NOT NULL DEFAULT '',
		external_hours TEXT,
		detail TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'OPEN',
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_anomalies_kind ON anomalies(kind);
	CREATE INDEX IF NOT EXISTS idx_anomalies_day ON anomalies(day);
	CREATE INDEX IF NOT EXISTS idx_anomalies_status ON anomalies(status);
	CREATE INDEX IF NOT EXISTS idx_anomalies_worker ON anomalies(worker_code);

	-- Reconciliation runs
	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		from_day TEXT NOT NULL,
		to_day TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		keys_total INTEGER NOT NULL DEFAULT 0,
		matched INTEGER NOT NULL DEFAULT 0,
		missing INTEGER NOT NULL DEFAULT 0,
		hour_updates INTEGER NOT NULL DEFAULT 0,
		anomalies INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started
		ON reconciliation_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a transaction; any error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(recon.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&queries{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// =============================================================================
// SESSION ROWS
// =============================================================================

// ReplaceSessionRows deletes every worker-day present in rows, then inserts
// the new projection. Callers needing atomicity run this under WithTx.
func (s *queries) ReplaceSessionRows(ctx context.Context, rows []engine.SessionRow) error {
	type workerDay struct {
		day    string
		worker engine.WorkerCode
	}
	cleared := map[workerDay]bool{}
	for _, r := range rows {
		k := workerDay{day: r.Day.String(), worker: r.Worker}
		if cleared[k] {
			continue
		}
		cleared[k] = true
		if _, err := s.q.ExecContext(ctx,
			`DELETE FROM session_rows WHERE day = ? AND worker_code = ?`,
			k.day, k.worker); err != nil {
			return err
		}
	}

	for _, r := range rows {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO session_rows
			(day, worker_code, row_number, start_time, end_time, duration_minutes,
			 gap_minutes, count_st, count_ss, count_ap, count_cm,
			 session_number, session_start, session_end, session_hours, session_row_count,
			 hours_st, hours_ss, hours_ap, hours_cm)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Day.String(), r.Worker, r.RowNumber,
			r.Start.String(), r.End.String(), r.DurationMinutes.String(),
			nullDecimal(r.GapMinutes), nullInt(r.CountST), nullInt(r.CountSS),
			nullInt(r.CountAP), nullInt(r.CountCM),
			r.SessionNumber, nullClock(r.SessionStart), nullClock(r.SessionEnd),
			nullDecimal(r.SessionHours), nullInt(r.SessionRowCount),
			nullDecimal(r.HoursST), nullDecimal(r.HoursSS),
			nullDecimal(r.HoursAP), nullDecimal(r.HoursCM),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SessionRows returns the projection for a day range, optionally filtered
// to a single worker, ordered by day, worker, then row number.
func (s *queries) SessionRows(ctx context.Context, from, to engine.Day, worker engine.WorkerCode) ([]engine.SessionRow, error) {
	query := `
		SELECT day, worker_code, row_number, start_time, end_time, duration_minutes,
		       gap_minutes, count_st, count_ss, count_ap, count_cm,
		       session_number, session_start, session_end, session_hours, session_row_count,
		       hours_st, hours_ss, hours_ap, hours_cm
		FROM session_rows
		WHERE day >= ? AND day <= ?`
	args := []any{from.String(), to.String()}
	if worker != "" {
		query += ` AND worker_code = ?`
		args = append(args, worker)
	}
	query += ` ORDER BY day, worker_code, row_number`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.SessionRow
	for rows.Next() {
		var (
			r                                  engine.SessionRow
			dayStr, startStr, endStr, durStr   string
			gap, sessHours, hST, hSS, hAP, hCM sql.NullString
			cST, cSS, cAP, cCM, sessRowCount   sql.NullInt64
			sessStart, sessEnd                 sql.NullString
		)
		if err := rows.Scan(&dayStr, &r.Worker, &r.RowNumber, &startStr, &endStr, &durStr,
			&gap, &cST, &cSS, &cAP, &cCM,
			&r.SessionNumber, &sessStart, &sessEnd, &sessHours, &sessRowCount,
			&hST, &hSS, &hAP, &hCM); err != nil {
			return nil, err
		}

		if r.Day, err = engine.ParseDay(dayStr); err != nil {
			return nil, err
		}
		if r.Start, err = engine.ParseClock(startStr); err != nil {
			return nil, err
		}
		if r.End, err = engine.ParseClock(endStr); err != nil {
			return nil, err
		}
		if r.DurationMinutes, err = decimal.NewFromString(durStr); err != nil {
			return nil, err
		}
		if r.GapMinutes, err = scanDecimal(gap); err != nil {
			return nil, err
		}
		r.CountST = scanInt(cST)
		r.CountSS = scanInt(cSS)
		r.CountAP = scanInt(cAP)
		r.CountCM = scanInt(cCM)
		if r.SessionStart, err = scanClock(sessStart); err != nil {
			return nil, err
		}
		if r.SessionEnd, err = scanClock(sessEnd); err != nil {
			return nil, err
		}
		if r.SessionHours, err = scanDecimal(sessHours); err != nil {
			return nil, err
		}
		r.SessionRowCount = scanInt(sessRowCount)
		if r.HoursST, err = scanDecimal(hST); err != nil {
			return nil, err
		}
		if r.HoursSS, err = scanDecimal(hSS); err != nil {
			return nil, err
		}
		if r.HoursAP, err = scanDecimal(hAP); err != nil {
			return nil, err
		}
		if r.HoursCM, err = scanDecimal(hCM); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// PRODUCTION RECORDS
// =============================================================================

// UpsertProduction inserts or refreshes production records. Managerial
// hours and unit counts always take the incoming value; external hours
// are left untouched so a re-import doesn't wipe reconciled data.
func (s *queries) UpsertProduction(ctx context.Context, records []recon.ProductionRecord) error {
	for _, rec := range records {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO production_records
			(day, worker_code, activity, location_tag, unit_count, managerial_hours, display_name)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(day, worker_code, activity, location_tag) DO UPDATE SET
				unit_count = excluded.unit_count,
				managerial_hours = excluded.managerial_hours,
				display_name = CASE WHEN excluded.display_name != ''
					THEN excluded.display_name
					ELSE production_records.display_name END`,
			rec.Day.String(), rec.Worker, rec.Activity, rec.Location,
			rec.Units, rec.ManagerialHours.String(), rec.DisplayName,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyHourUpdates writes reconciled external hours, keyed by
// (day, worker, activity, location). Returns the number of rows touched.
func (s *queries) ApplyHourUpdates(ctx context.Context, updates []recon.HourUpdate) (int, error) {
	touched := 0
	for _, u := range updates {
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO production_records
			(day, worker_code, activity, location_tag, external_hours, display_name)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(day, worker_code, activity, location_tag) DO UPDATE SET
				external_hours = excluded.external_hours,
				display_name = CASE WHEN excluded.display_name != ''
					THEN excluded.display_name
					ELSE production_records.display_name END`,
			u.Day.String(), u.Worker, u.Activity, u.Location,
			u.ExternalHours.String(), u.DisplayName,
		)
		if err != nil {
			return touched, err
		}
		if n, err := res.RowsAffected(); err == nil {
			touched += int(n)
		}
	}
	return touched, nil
}

// ProductionByDays returns every production record in the inclusive range.
func (s *queries) ProductionByDays(ctx context.Context, from, to engine.Day) ([]recon.ProductionRecord, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT day, worker_code, activity, location_tag, unit_count,
		       external_hours, managerial_hours, display_name
		FROM production_records
		WHERE day >= ? AND day <= ?
		ORDER BY day, worker_code, activity, location_tag`,
		from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recon.ProductionRecord
	for rows.Next() {
		var (
			rec            recon.ProductionRecord
			dayStr         string
			extStr, mgrStr string
		)
		if err := rows.Scan(&dayStr, &rec.Worker, &rec.Activity, &rec.Location,
			&rec.Units, &extStr, &mgrStr, &rec.DisplayName); err != nil {
			return nil, err
		}
		if rec.Day, err = engine.ParseDay(dayStr); err != nil {
			return nil, err
		}
		if rec.ExternalHours, err = decimal.NewFromString(extStr); err != nil {
			return nil, err
		}
		if rec.ManagerialHours, err = decimal.NewFromString(mgrStr); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// ANOMALIES
// =============================================================================

func (s *queries) AppendAnomalies(ctx context.Context, anomalies []recon.Anomaly) error {
	for _, a := range anomalies {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO anomalies
			(id, kind, day, worker_code, worker_name, activity, external_hours,
			 detail, status, note, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Kind, a.Day.String(), a.Worker, a.WorkerName, a.Activity,
			nullDecimal(a.ExternalHours), a.Detail, a.Status, a.Note,
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *queries) Anomalies(ctx context.Context, filter recon.AnomalyFilter) ([]recon.Anomaly, error) {
	query := `
		SELECT id, kind, day, worker_code, worker_name, activity, external_hours,
		       detail, status, note, created_at, updated_at
		FROM anomalies`
	var conds []string
	var args []any
	if filter.From != nil {
		conds = append(conds, "day >= ?")
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		conds = append(conds, "day <= ?")
		args = append(args, filter.To.String())
	}
	if len(filter.Kinds) > 0 {
		conds = append(conds, "kind IN (?"+strings.Repeat(", ?", len(filter.Kinds)-1)+")")
		for _, k := range filter.Kinds {
			args = append(args, k)
		}
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Worker != "" {
		conds = append(conds, "worker_code = ?")
		args = append(args, filter.Worker)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY day DESC, id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recon.Anomaly
	for rows.Next() {
		var (
			a                        recon.Anomaly
			dayStr, created, updated string
			ext                      sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Kind, &dayStr, &a.Worker, &a.WorkerName,
			&a.Activity, &ext, &a.Detail, &a.Status, &a.Note, &created, &updated); err != nil {
			return nil, err
		}
		if a.Day, err = engine.ParseDay(dayStr); err != nil {
			return nil, err
		}
		if a.ExternalHours, err = scanDecimal(ext); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, created)
		a.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *queries) UpdateAnomalyStatus(ctx context.Context, id string, status recon.AnomalyStatus, note string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", engine.ErrInvalidStatus, status)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var res sql.Result
	var err error
	if note != "" {
		res, err = s.q.ExecContext(ctx,
			`UPDATE anomalies SET status = ?, note = ?, updated_at = ? WHERE id = ?`,
			status, note, now, id)
	} else {
		res, err = s.q.ExecContext(ctx,
			`UPDATE anomalies SET status = ?, updated_at = ? WHERE id = ?`,
			status, now, id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: anomaly %s", engine.ErrNotFound, id)
	}
	return nil
}

func (s *queries) ClearAnomaliesByDay(ctx context.Context, day engine.Day, kind recon.AnomalyKind) (int, error) {
	var res sql.Result
	var err error
	if kind != "" {
		res, err = s.q.ExecContext(ctx,
			`DELETE FROM anomalies WHERE day = ? AND kind = ?`, day.String(), kind)
	} else {
		res, err = s.q.ExecContext(ctx,
			`DELETE FROM anomalies WHERE day = ?`, day.String())
	}
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func (s *queries) SaveRun(ctx context.Context, run recon.Run) error {
	finished := any(nil)
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO reconciliation_runs
		(id, from_day, to_day, status, progress, keys_total, matched, missing,
		 hour_updates, anomalies, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			keys_total = excluded.keys_total,
			matched = excluded.matched,
			missing = excluded.missing,
			hour_updates = excluded.hour_updates,
			anomalies = excluded.anomalies,
			error = excluded.error,
			finished_at = excluded.finished_at`,
		run.ID, run.From.String(), run.To.String(), run.Status, run.Progress,
		run.Keys, run.Matched, run.Missing, run.HourUpdates, run.Anomalies,
		run.Error, run.StartedAt.UTC().Format(time.RFC3339), finished,
	)
	return err
}

func (s *queries) Runs(ctx context.Context, limit int) ([]recon.Run, error) {
	query := `
		SELECT id, from_day, to_day, status, progress, keys_total, matched,
		       missing, hour_updates, anomalies, error, started_at, finished_at
		FROM reconciliation_runs
		ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recon.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *queries) RunByID(ctx context.Context, id string) (recon.Run, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, from_day, to_day, status, progress, keys_total, matched,
		       missing, hour_updates, anomalies, error, started_at, finished_at
		FROM reconciliation_runs WHERE id = ?`, id)
	if err != nil {
		return recon.Run{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return recon.Run{}, err
		}
		return recon.Run{}, fmt.Errorf("%w: run %s", engine.ErrNotFound, id)
	}
	return scanRun(rows)
}

func scanRun(rows *sql.Rows) (recon.Run, error) {
	var (
		run                       recon.Run
		fromStr, toStr, startedAt string
		finishedAt                sql.NullString
	)
	if err := rows.Scan(&run.ID, &fromStr, &toStr, &run.Status, &run.Progress,
		&run.Keys, &run.Matched, &run.Missing, &run.HourUpdates, &run.Anomalies,
		&run.Error, &startedAt, &finishedAt); err != nil {
		return recon.Run{}, err
	}
	var err error
	if run.From, err = engine.ParseDay(fromStr); err != nil {
		return recon.Run{}, err
	}
	if run.To, err = engine.ParseDay(toStr); err != nil {
		return recon.Run{}, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if finishedAt.Valid && finishedAt.String != "" {
		run.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt.String)
	}
	return run, nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullClock(c *engine.ClockTime) any {
	if c == nil {
		return nil
	}
	return c.String()
}

func scanDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func scanClock(s sql.NullString) (*engine.ClockTime, error) {
	if !s.Valid {
		return nil, nil
	}
	c, err := engine.ParseClock(s.String)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
