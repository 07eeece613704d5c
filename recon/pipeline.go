/*
pipeline.go - The end-to-end reconciliation pass

STAGES:

	Import:    normalize -> sessions -> allocation -> persist (one transaction)
	Reconcile: load production -> resolve external durations (day-batched,
	           under timeout) -> allocate location hours -> classify ->
	           persist updates + anomalies (one transaction)

PROGRESS:

	Callers receive a monotonically increasing 0-100 percentage. The pipeline
	may run on a background worker; the caller must not mutate the same
	worker-days concurrently.

CONSISTENCY:

	External reads within one pass are treated as a snapshot. If the external
	source changes between resolution and allocation the classification may be
	stale until the next pass; accepted by design. Any failure in the write
	phase rolls back the whole batch's writes.
*/
package recon

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/warp/recon-engine/engine"
)

// Progress receives batch completion percentages. Implementations must be
// cheap; the pipeline calls them inline.
type Progress func(percent int)

// Pipeline wires the engine, the external source and the store into one
// reconciliation flow.
type Pipeline struct {
	Store  TxStore
	Source DurationSource

	// QueryTimeout bounds every external-source query. Zero means 30s.
	QueryTimeout time.Duration

	// ClearExisting deletes prior anomalies for each day of the period
	// before appending the new batch, in the same transaction.
	ClearExisting bool
}

// ImportResult summarizes one movement-import batch.
type ImportResult struct {
	WorkerDays  int
	SessionRows int
	Records     int
	RawRows     int
}

type workerDay struct {
	Worker engine.WorkerCode
	Day    engine.Day
}

// ImportMovements runs the engine over a raw movement batch and persists
// session rows and forklift production records atomically.
func (p *Pipeline) ImportMovements(ctx context.Context, raw []engine.MovementEvent, progress Progress) (*ImportResult, error) {
	report := monotonic(progress)
	report(0)

	groups := map[workerDay][]engine.MovementEvent{}
	var order []workerDay
	for _, ev := range raw {
		wd := workerDay{Worker: ev.Worker, Day: ev.Day}
		if _, ok := groups[wd]; !ok {
			order = append(order, wd)
		}
		groups[wd] = append(groups[wd], ev)
	}
	sort.Slice(order, func(i, j int) bool {
		if !order[i].Day.Equal(order[j].Day) {
			return order[i].Day.Before(order[j].Day)
		}
		return order[i].Worker < order[j].Worker
	})

	var rows []engine.SessionRow
	var records []ProductionRecord
	for i, wd := range order {
		result, err := engine.ProcessDay(wd.Worker, wd.Day, groups[wd])
		if err != nil {
			return nil, err
		}
		rows = append(rows, result.Rows...)
		for _, alloc := range result.Allocations {
			records = append(records, ProductionRecord{
				Worker:          alloc.Worker,
				Activity:        ActivityForklift,
				Day:             alloc.Day,
				Location:        string(alloc.Category),
				Units:           alloc.ValidCount,
				ManagerialHours: alloc.AllocatedHours,
			})
		}
		// Engine work is the first 60%; persistence the rest.
		report((i + 1) * 60 / len(order))
	}

	err := p.Store.WithTx(ctx, func(s Store) error {
		if err := s.ReplaceSessionRows(ctx, rows); err != nil {
			return err
		}
		report(80)
		return s.UpsertProduction(ctx, records)
	})
	if err != nil {
		return nil, &engine.BatchWriteError{Attempted: len(rows) + len(records), Cause: err}
	}
	report(100)

	log.Printf("[Pipeline] Imported %d worker-days: %d session rows, %d records",
		len(order), len(rows), len(records))
	return &ImportResult{
		WorkerDays:  len(order),
		SessionRows: len(rows),
		Records:     len(records),
		RawRows:     len(raw),
	}, nil
}

// Reconcile matches local production in [from, to] against the external
// source, allocates location hours and appends classified anomalies. The
// returned Run is also persisted.
func (p *Pipeline) Reconcile(ctx context.Context, from, to engine.Day, progress Progress) (*Run, error) {
	return p.ReconcileRun(ctx, uuid.NewString(), from, to, progress)
}

// ReconcileRun is Reconcile with a caller-chosen run ID, so asynchronous
// callers can hand the ID out before the pass finishes.
func (p *Pipeline) ReconcileRun(ctx context.Context, id string, from, to engine.Day, progress Progress) (*Run, error) {
	run := Run{
		ID:        id,
		From:      from,
		To:        to,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := p.Store.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	// Milestones are persisted so pollers watching the run see progress.
	report := monotonic(func(pct int) {
		run.Progress = pct
		if run.Status == RunRunning {
			if err := p.Store.SaveRun(ctx, run); err != nil {
				log.Printf("[Pipeline] Failed to persist run progress: %v", err)
			}
		}
		if progress != nil {
			progress(pct)
		}
	})
	fail := func(err error) (*Run, error) {
		run.Status = RunFailed
		run.Error = err.Error()
		run.FinishedAt = time.Now().UTC()
		if saveErr := p.Store.SaveRun(ctx, run); saveErr != nil {
			log.Printf("[Pipeline] Failed to record run failure: %v", saveErr)
		}
		return &run, err
	}

	records, err := p.Store.ProductionByDays(ctx, from, to)
	if err != nil {
		return fail(err)
	}
	report(10)

	// Distinct reconciliation keys plus local display names for missing-key
	// anomalies.
	seen := map[Key]bool{}
	var keys []Key
	names := map[Key]string{}
	for _, rec := range records {
		k, ok := rec.Key()
		if !ok {
			continue
		}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
		if rec.DisplayName != "" {
			if _, ok := names[k]; !ok {
				names[k] = rec.DisplayName
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
	run.Keys = len(keys)

	timeout := p.QueryTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	resolution, err := Resolve(queryCtx, p.Source, keys)
	cancel()
	if err != nil {
		return fail(err)
	}
	run.Matched = len(resolution.Matched)
	run.Missing = len(resolution.Missing)
	report(50)

	updates := AllocateLocations(resolution, records)
	run.HourUpdates = len(updates)
	report(60)

	// Classification must see the freshly allocated hours, not the stored
	// ones.
	classified := Classify(ClassifierInput{
		Queried:    keys,
		Resolution: resolution,
		Production: withUpdatedHours(records, updates),
		LocalNames: names,
	})
	run.Anomalies = len(classified)
	report(70)

	err = p.Store.WithTx(ctx, func(s Store) error {
		if p.ClearExisting {
			for day := from; !day.After(to); day = day.AddDays(1) {
				if _, err := s.ClearAnomaliesByDay(ctx, day, ""); err != nil {
					return err
				}
			}
		}
		if _, err := s.ApplyHourUpdates(ctx, updates); err != nil {
			return err
		}
		return s.AppendAnomalies(ctx, classified)
	})
	if err != nil {
		return fail(&engine.BatchWriteError{Attempted: len(updates) + len(classified), Cause: err})
	}
	report(90)

	run.Status = RunCompleted
	run.Progress = 100
	run.FinishedAt = time.Now().UTC()
	if err := p.Store.SaveRun(ctx, run); err != nil {
		return &run, err
	}
	report(100)

	log.Printf("[Pipeline] Reconciled %s..%s: %d keys, %d matched, %d missing, %d updates, %d anomalies",
		from, to, run.Keys, run.Matched, run.Missing, run.HourUpdates, run.Anomalies)
	return &run, nil
}

// withUpdatedHours overlays freshly allocated external hours onto the
// loaded records for classification.
func withUpdatedHours(records []ProductionRecord, updates []HourUpdate) []ProductionRecord {
	type slot struct {
		Worker   engine.WorkerCode
		Activity Activity
		Day      string
		Location string
	}
	index := make(map[slot]HourUpdate, len(updates))
	for _, u := range updates {
		index[slot{u.Worker, u.Activity, u.Day.String(), u.Location}] = u
	}

	out := make([]ProductionRecord, len(records))
	for i, rec := range records {
		out[i] = rec
		if u, ok := index[slot{rec.Worker, rec.Activity, rec.Day.String(), rec.Location}]; ok {
			out[i].ExternalHours = u.ExternalHours
			out[i].DisplayName = u.DisplayName
		}
	}
	return out
}

// monotonic guards a Progress callback so reported percentages never
// decrease and stay within 0-100.
func monotonic(p Progress) Progress {
	last := -1
	return func(percent int) {
		if p == nil {
			return
		}
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		if percent <= last {
			return
		}
		last = percent
		p(percent)
	}
}

// FormatPeriod renders a run period for logs and API payloads.
func FormatPeriod(from, to engine.Day) string {
	return fmt.Sprintf("%s..%s", from, to)
}
