// Package store provides an in-memory recon.TxStore for tests and dev.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/recon-engine/engine"
	"github.com/warp/recon-engine/recon"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type workerDay struct {
	Day    string
	Worker engine.WorkerCode
}

type prodKey struct {
	Day      string
	Worker   engine.WorkerCode
	Activity recon.Activity
	Location string
}

type Memory struct {
	mu          sync.RWMutex
	sessionRows map[workerDay][]engine.SessionRow
	production  map[prodKey]recon.ProductionRecord
	anomalies   []recon.Anomaly
	runs        map[string]recon.Run
}

func NewMemory() *Memory {
	return &Memory{
		sessionRows: make(map[workerDay][]engine.SessionRow),
		production:  make(map[prodKey]recon.ProductionRecord),
		runs:        make(map[string]recon.Run),
	}
}

// ReplaceSessionRows deletes then reinserts every touched worker-day.
func (m *Memory) ReplaceSessionRows(_ context.Context, rows []engine.SessionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rows {
		delete(m.sessionRows, workerDay{Day: r.Day.String(), Worker: r.Worker})
	}
	for _, r := range rows {
		wd := workerDay{Day: r.Day.String(), Worker: r.Worker}
		m.sessionRows[wd] = append(m.sessionRows[wd], r)
	}
	return nil
}

func (m *Memory) SessionRows(_ context.Context, from, to engine.Day, worker engine.WorkerCode) ([]engine.SessionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.SessionRow
	for _, rows := range m.sessionRows {
		for _, r := range rows {
			if r.Day.Before(from) || r.Day.After(to) {
				continue
			}
			if worker != "" && r.Worker != worker {
				continue
			}
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		if out[i].Worker != out[j].Worker {
			return out[i].Worker < out[j].Worker
		}
		return out[i].RowNumber < out[j].RowNumber
	})
	return out, nil
}

func (m *Memory) UpsertProduction(_ context.Context, records []recon.ProductionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		k := prodKey{Day: rec.Day.String(), Worker: rec.Worker, Activity: rec.Activity, Location: rec.Location}
		if existing, ok := m.production[k]; ok {
			// Keep previously allocated external hours on re-import.
			rec.ExternalHours = existing.ExternalHours
			if rec.DisplayName == "" {
				rec.DisplayName = existing.DisplayName
			}
		}
		m.production[k] = rec
	}
	return nil
}

func (m *Memory) ApplyHourUpdates(_ context.Context, updates []recon.HourUpdate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := 0
	for _, u := range updates {
		k := prodKey{Day: u.Day.String(), Worker: u.Worker, Activity: u.Activity, Location: u.Location}
		rec, ok := m.production[k]
		if !ok {
			rec = recon.ProductionRecord{Worker: u.Worker, Activity: u.Activity, Day: u.Day, Location: u.Location}
		}
		rec.ExternalHours = u.ExternalHours
		rec.DisplayName = u.DisplayName
		m.production[k] = rec
		touched++
	}
	return touched, nil
}

func (m *Memory) ProductionByDays(_ context.Context, from, to engine.Day) ([]recon.ProductionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []recon.ProductionRecord
	for _, rec := range m.production {
		if rec.Day.Before(from) || rec.Day.After(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Day.Equal(b.Day) {
			return a.Day.Before(b.Day)
		}
		if a.Worker != b.Worker {
			return a.Worker < b.Worker
		}
		if a.Activity != b.Activity {
			return a.Activity < b.Activity
		}
		return a.Location < b.Location
	})
	return out, nil
}

func (m *Memory) AppendAnomalies(_ context.Context, anomalies []recon.Anomaly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies = append(m.anomalies, anomalies...)
	return nil
}

func (m *Memory) Anomalies(_ context.Context, filter recon.AnomalyFilter) ([]recon.Anomaly, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kindSet := map[recon.AnomalyKind]bool{}
	for _, k := range filter.Kinds {
		kindSet[k] = true
	}

	var out []recon.Anomaly
	for _, a := range m.anomalies {
		if filter.From != nil && a.Day.Before(*filter.From) {
			continue
		}
		if filter.To != nil && a.Day.After(*filter.To) {
			continue
		}
		if len(kindSet) > 0 && !kindSet[a.Kind] {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Worker != "" && a.Worker != filter.Worker {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.After(out[j].Day)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateAnomalyStatus(_ context.Context, id string, status recon.AnomalyStatus, note string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", engine.ErrInvalidStatus, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.anomalies {
		if m.anomalies[i].ID == id {
			m.anomalies[i].Status = status
			if note != "" {
				m.anomalies[i].Note = note
			}
			return nil
		}
	}
	return fmt.Errorf("%w: anomaly %s", engine.ErrNotFound, id)
}

func (m *Memory) ClearAnomaliesByDay(_ context.Context, day engine.Day, kind recon.AnomalyKind) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.anomalies[:0]
	deleted := 0
	for _, a := range m.anomalies {
		if a.Day.Equal(day) && (kind == "" || a.Kind == kind) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	m.anomalies = kept
	return deleted, nil
}

func (m *Memory) SaveRun(_ context.Context, run recon.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) Runs(_ context.Context, limit int) ([]recon.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]recon.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) RunByID(_ context.Context, id string) (recon.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.runs[id]; ok {
		return r, nil
	}
	return recon.Run{}, fmt.Errorf("%w: run %s", engine.ErrNotFound, id)
}

// WithTx runs fn against a snapshot and adopts it on success; on error the
// snapshot is discarded, restoring prior state.
func (m *Memory) WithTx(_ context.Context, fn func(recon.Store) error) error {
	snapshot := m.clone()
	if err := fn(snapshot); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionRows = snapshot.sessionRows
	m.production = snapshot.production
	m.anomalies = snapshot.anomalies
	m.runs = snapshot.runs
	return nil
}

func (m *Memory) clone() *Memory {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := NewMemory()
	for k, rows := range m.sessionRows {
		c.sessionRows[k] = append([]engine.SessionRow(nil), rows...)
	}
	for k, rec := range m.production {
		c.production[k] = rec
	}
	c.anomalies = append([]recon.Anomaly(nil), m.anomalies...)
	for k, r := range m.runs {
		c.runs[k] = r
	}
	return c
}
