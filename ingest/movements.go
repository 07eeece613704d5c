/*
Package ingest reads forklift movement logs exported as CSV.

PURPOSE:

	Converts the warehouse management export into engine.MovementEvent values
	ready for session segmentation. The export is messy by nature:
	- the header row floats somewhere in the first few lines
	- worker codes appear once as a section header and apply to the rows below
	- a date cell starts a new section and resets the current worker
	- "TOTALE" summary rows are interleaved with data
	- times arrive as HH:MM[:SS], as Excel day fractions, or as HH.MM floats

ROW RULES:
  - rows missing a start or end time are logged and skipped
  - rows with an error note are kept (they shape sessions) but flagged
  - every data row is one movement; transport numbers are identifiers,
    never quantities

SEE ALSO:
  - engine/allocate.go: ProcessDay consumes the events produced here
*/
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/warp/recon-engine/engine"
)

const headerScanRows = 10

// columnMap locates the relevant columns after header detection.
type columnMap struct {
	date     int
	worker   int
	category int
	start    int
	end      int
	errNote  int
}

// ReadMovements parses a movement-log CSV. fallbackDay is used for rows in
// files that carry no date column. Returned events are grouped by input
// order; callers hand them to engine.ProcessDay per worker-day.
func ReadMovements(r io.Reader, fallbackDay engine.Day) ([]engine.MovementEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading movement log: %w", err)
	}

	headerIdx, cols, err := findHeader(records)
	if err != nil {
		return nil, err
	}

	var (
		events      []engine.MovementEvent
		currentCode engine.WorkerCode
		currentDay  = fallbackDay
		skipped     int
	)

	for _, rec := range records[headerIdx+1:] {
		worker := cell(rec, cols.worker)
		category := cell(rec, cols.category)

		if strings.EqualFold(worker, "TOTALE") || strings.EqualFold(category, "TOTALE") {
			continue
		}

		// A date cell opens a new section; the worker code resets until the
		// next section header.
		if cols.date >= 0 {
			if d, ok := parseDate(cell(rec, cols.date)); ok {
				currentDay = d
				currentCode = ""
			}
		}

		// Section header: worker code with no movement of its own.
		if worker != "" {
			currentCode = engine.WorkerCode(strings.ToUpper(worker))
			continue
		}
		if currentCode == "" || category == "" {
			continue
		}

		start, okStart := parseTime(cell(rec, cols.start))
		end, okEnd := parseTime(cell(rec, cols.end))
		if !okStart || !okEnd {
			skipped++
			log.Printf("[Ingest] skipping row for %s on %s: unparseable time (start=%q end=%q)",
				currentCode, currentDay, cell(rec, cols.start), cell(rec, cols.end))
			continue
		}

		events = append(events, engine.MovementEvent{
			Worker:    currentCode,
			Day:       currentDay,
			Category:  engine.Category(strings.ToUpper(category)),
			Start:     start,
			End:       end,
			ErrorNote: cell(rec, cols.errNote),
		})
	}

	if skipped > 0 {
		log.Printf("[Ingest] parsed %d movements, skipped %d rows with missing times", len(events), skipped)
	}
	return events, nil
}

// findHeader scans the first rows for one that names the time columns (or,
// failing that, the worker and category columns) and maps column indexes.
func findHeader(records [][]string) (int, columnMap, error) {
	limit := len(records)
	if limit > headerScanRows {
		limit = headerScanRows
	}

	for idx := 0; idx < limit; idx++ {
		joined := strings.ToLower(strings.Join(records[idx], " "))
		hasTime := strings.Contains(joined, "ora") &&
			(strings.Contains(joined, "inizio") || strings.Contains(joined, "fine"))
		hasWorker := strings.Contains(joined, "preparatore") ||
			(strings.Contains(joined, "data") && strings.Contains(joined, "tipo"))
		if !hasTime && !hasWorker {
			continue
		}

		cols := columnMap{date: -1, worker: -1, category: -1, start: -1, end: -1, errNote: -1}
		for i, name := range records[idx] {
			n := strings.ToLower(strings.TrimSpace(name))
			switch {
			case n == "data":
				cols.date = i
			case strings.Contains(n, "preparatore"):
				cols.worker = i
			case n == "tipo":
				cols.category = i
			case strings.Contains(n, "ora") && strings.Contains(n, "inizio"):
				cols.start = i
			case strings.Contains(n, "ora") && strings.Contains(n, "fine"):
				cols.end = i
			case strings.Contains(n, "errore"):
				cols.errNote = i
			}
		}
		if cols.worker < 0 || cols.category < 0 {
			return 0, columnMap{}, fmt.Errorf("movement log header at row %d missing worker/category columns", idx+1)
		}
		if cols.start < 0 || cols.end < 0 {
			return 0, columnMap{}, fmt.Errorf("movement log header at row %d missing time columns", idx+1)
		}
		return idx, cols, nil
	}
	return 0, columnMap{}, fmt.Errorf("no header row found in first %d rows of movement log", limit)
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

// parseTime accepts HH:MM[:SS], Excel day fractions (0.5 = 12:00:00), and
// the HH.MM float convention some exports use (7.53 = 07:53).
func parseTime(s string) (engine.ClockTime, bool) {
	if s == "" {
		return engine.ClockTime{}, false
	}

	if strings.Contains(s, ":") {
		c, err := engine.ParseClock(s)
		if err != nil {
			return engine.ClockTime{}, false
		}
		return c, true
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return engine.ClockTime{}, false
	}

	if f >= 0 && f < 1 {
		total := int(f * 24 * 3600)
		return engine.ClockTime{
			Hour:   (total / 3600) % 24,
			Minute: (total % 3600) / 60,
			Second: total % 60,
		}, true
	}

	hours := int(f)
	minutes := int(math.Round((f - float64(hours)) * 100))
	if hours < 0 || hours >= 24 || minutes < 0 || minutes >= 60 {
		return engine.ClockTime{}, false
	}
	return engine.ClockTime{Hour: hours, Minute: minutes}, true
}

// parseDate accepts yyyymmdd and yyyy-mm-dd.
func parseDate(s string) (engine.Day, bool) {
	if s == "" {
		return engine.Day{}, false
	}
	d, err := engine.ParseDay(s)
	if err != nil {
		return engine.Day{}, false
	}
	return d, true
}
