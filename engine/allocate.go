/*
allocate.go - Two-level proportional time allocation

PURPOSE:

	Distributes a worker-day's total session time across movement categories
	and emits the denormalized SessionRow projection.

DAY LEVEL:

	total_day_hours = sum of session spans. Sessions are derived from ALL
	events, error-flagged ones included: a faulted movement still occupied
	worked time and must not distort session boundaries.

CATEGORY LEVEL:

	valid_count[cat] uses only non-flagged events, weighted by consolidation
	count, across the whole day (not per session).
	allocated_hours[cat] = total_day_hours * valid_count[cat] / total_valid.
	Zero total valid count means the worker-day produces no allocation.

ROUNDING:

	Shares are rounded to 2 decimals; the rounding remainder against the
	rounded day total is folded into the category with the largest count so
	the allocations conserve the day total exactly.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProcessDay runs the full engine for one worker-day: consolidation,
// session clustering, allocation and the row projection. The raw events
// must all belong to the same (worker, day).
func ProcessDay(worker WorkerCode, day Day, raw []MovementEvent) (*DayResult, error) {
	for _, ev := range raw {
		if !ev.Category.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, ev.Category)
		}
		if ev.Worker != worker || !ev.Day.Equal(day) {
			return nil, fmt.Errorf("%w: got (%s, %s), want (%s, %s)",
				ErrMixedWorkerDay, ev.Worker, ev.Day, worker, day)
		}
	}

	events := Normalize(raw)
	sessions := BuildSessions(events)
	return Allocate(worker, day, sessions), nil
}

// Allocate computes category allocations and session rows from already
// clustered sessions.
func Allocate(worker WorkerCode, day Day, sessions []Session) *DayResult {
	result := &DayResult{
		Worker:     worker,
		Day:        day,
		Sessions:   sessions,
		TotalHours: decimal.Zero,
	}

	counts := map[Category]int{}
	totalCount := 0
	for _, sess := range sessions {
		result.TotalHours = result.TotalHours.Add(sess.DurationHours())
		for _, ev := range sess.Events {
			if ev.Flagged() {
				continue
			}
			counts[ev.Category] += ev.Count
			totalCount += ev.Count
		}
	}

	// No valid movements: boundaries existed but nothing to allocate to.
	if totalCount == 0 {
		return result
	}

	allocated := allocateShares(worker, day, result.TotalHours, counts, totalCount)
	result.Allocations = allocated

	hoursByCategory := make(map[Category]decimal.Decimal, len(allocated))
	for _, a := range allocated {
		hoursByCategory[a.Category] = a.AllocatedHours
	}
	result.Rows = projectRows(day, worker, sessions, hoursByCategory)
	return result
}

// allocateShares splits totalHours proportionally to counts, in canonical
// category order, with largest-remainder correction.
func allocateShares(worker WorkerCode, day Day, totalHours decimal.Decimal, counts map[Category]int, totalCount int) []CategoryAllocation {
	totalDec := decimal.NewFromInt(int64(totalCount))
	roundedTotal := totalHours.Round(2)

	var out []CategoryAllocation
	sum := decimal.Zero
	largest := -1
	for _, cat := range Categories {
		n, ok := counts[cat]
		if !ok {
			continue
		}
		share := totalHours.Mul(decimal.NewFromInt(int64(n))).Div(totalDec).Round(2)
		sum = sum.Add(share)
		out = append(out, CategoryAllocation{
			Worker:         worker,
			Day:            day,
			Category:       cat,
			ValidCount:     n,
			AllocatedHours: share,
		})
		if largest < 0 || n > counts[out[largest].Category] {
			largest = len(out) - 1
		}
	}

	// Fold the rounding drift into the largest category; first in canonical
	// order wins ties.
	if drift := roundedTotal.Sub(sum); !drift.IsZero() && largest >= 0 {
		out[largest].AllocatedHours = out[largest].AllocatedHours.Add(drift)
	}
	return out
}

// projectRows emits one SessionRow per valid consolidated event, in session
// then row order. Session summary fields land on the first projected row of
// each session; category hours on the first projected row of each category
// in the day.
func projectRows(day Day, worker WorkerCode, sessions []Session, hours map[Category]decimal.Decimal) []SessionRow {
	var rows []SessionRow
	rowNumber := 0
	lastSession := 0
	seenCategory := map[Category]bool{}
	prevEndSec := 0

	for _, sess := range sessions {
		sessStart := sess.Start()
		sessEnd := sess.End()
		sessHours := sess.DurationHours().Round(2)
		sessRowCount := len(sess.Events)

		for _, ev := range sess.Events {
			if ev.Flagged() {
				continue
			}
			rowNumber++

			startSec := ev.Start.SecondsOfDay()
			endSec := ev.End.SecondsOfDay()
			if endSec < startSec {
				endSec += secondsPerDay
			}

			row := SessionRow{
				Day:             day,
				Worker:          worker,
				RowNumber:       rowNumber,
				Start:           ev.Start,
				End:             ev.End,
				DurationMinutes: MinutesFromSeconds(endSec - startSec).Round(2),
				SessionNumber:   sess.Number,
			}

			// Gap to the immediately preceding projected row's end; nil on
			// the first row of a session, clamped at zero otherwise.
			if sess.Number == lastSession {
				gapSec := startSec - prevEndSec
				if gapSec < 0 {
					gapSec = 0
				}
				gap := MinutesFromSeconds(gapSec).Round(2)
				row.GapMinutes = &gap
			}
			prevEndSec = endSec

			count := ev.Count
			switch ev.Category {
			case CategoryST:
				row.CountST = &count
			case CategorySS:
				row.CountSS = &count
			case CategoryAP:
				row.CountAP = &count
			case CategoryCM:
				row.CountCM = &count
			}

			if sess.Number != lastSession {
				lastSession = sess.Number
				start, end, h, n := sessStart, sessEnd, sessHours, sessRowCount
				row.SessionStart = &start
				row.SessionEnd = &end
				row.SessionHours = &h
				row.SessionRowCount = &n
			}

			if !seenCategory[ev.Category] {
				seenCategory[ev.Category] = true
				h := hours[ev.Category]
				switch ev.Category {
				case CategoryST:
					row.HoursST = &h
				case CategorySS:
					row.HoursSS = &h
				case CategoryAP:
					row.HoursAP = &h
				case CategoryCM:
					row.HoursCM = &h
				}
			}

			rows = append(rows, row)
		}
	}
	return rows
}
