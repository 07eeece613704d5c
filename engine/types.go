/*
Package engine implements the production-time core: event consolidation,
session segmentation and proportional category allocation.

PURPOSE:

	Raw timestamped movement events for one worker on one day go in; work
	sessions, per-category allocated hours and the denormalized session-row
	projection come out. Everything is an immutable value record: each stage
	is a pure function of its inputs.

KEY CONCEPTS IN THIS FILE (types.go):
  - MovementEvent:      one raw movement row (worker, day, category, span)
  - ConsolidatedEvent:  exact-duplicate rows merged with a count
  - Session:            a maximal run of events with inter-event gaps <= 15min
  - CategoryAllocation: a worker-day's total time split across categories
  - SessionRow:         the persisted per-event projection

DESIGN PRINCIPLES:
 1. Immutability: events are never mutated after normalization
 2. Precision: decimal.Decimal for all hour/minute arithmetic
 3. Determinism: stable ordering everywhere, explicit tie-breaks

SEE ALSO:
  - session.go:  gap clustering
  - allocate.go: proportional allocation and the row projection
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// WorkerCode identifies a worker in the local production system. Codes are
// matched case-insensitively against the external time source.
type WorkerCode string

// Category is a movement-type tag used to split allocated time.
type Category string

const (
	CategoryST Category = "ST"
	CategorySS Category = "SS"
	CategoryAP Category = "AP"
	CategoryCM Category = "CM"
)

// Categories lists all movement categories in canonical order. Allocation
// output and remainder correction follow this order.
var Categories = []Category{CategoryST, CategorySS, CategoryAP, CategoryCM}

func (c Category) Valid() bool {
	switch c {
	case CategoryST, CategorySS, CategoryAP, CategoryCM:
		return true
	}
	return false
}

// =============================================================================
// MOVEMENT EVENT - One raw row from a movement log
// =============================================================================

// MovementEvent is a single raw movement. ErrorNote, when non-empty, marks
// the movement as faulted: it still shapes session boundaries but is
// excluded from category counts and from the session-row projection.
type MovementEvent struct {
	Worker   WorkerCode
	Day      Day
	Category Category
	Start    ClockTime
	End      ClockTime

	// ErrorNote carries the error annotation from the source log.
	// Empty means the movement counts toward its category.
	ErrorNote string
}

// Flagged reports whether the event carries an error annotation.
func (e MovementEvent) Flagged() bool { return e.ErrorNote != "" }

// SpanSeconds returns the event's own duration in seconds, correcting for
// midnight rollover when the end precedes the start.
func (e MovementEvent) SpanSeconds() int { return SpanSeconds(e.Start, e.End) }

// =============================================================================
// CONSOLIDATED EVENT - Exact duplicates merged
// =============================================================================

// ConsolidatedEvent is a MovementEvent plus the number of raw rows that
// shared its exact (day, worker, start, end, category, error) tuple.
// Invariant: the sum of Count over the consolidated events of a key equals
// the number of raw rows for that key.
type ConsolidatedEvent struct {
	MovementEvent
	Count int
}

// =============================================================================
// SESSION - Gap-clustered run of events for one worker-day
// =============================================================================

// Session is an ordered run of consolidated events whose inter-event gaps
// never exceed the session gap threshold. Sessions partition a worker-day.
type Session struct {
	Number int // 1-based within the worker-day
	Events []ConsolidatedEvent
}

// Start is the start time of the first event.
func (s Session) Start() ClockTime { return s.Events[0].Start }

// End is the end time of the last event, matching the persisted session
// span. An earlier overlapping event may run past it; the gap clustering
// tracks that separately.
func (s Session) End() ClockTime { return s.Events[len(s.Events)-1].End }

// DurationSeconds is End-Start with midnight correction.
func (s Session) DurationSeconds() int { return SpanSeconds(s.Start(), s.End()) }

// DurationHours returns the session span in decimal hours.
func (s Session) DurationHours() decimal.Decimal {
	return HoursFromSeconds(s.DurationSeconds())
}

// =============================================================================
// ALLOCATION OUTPUT
// =============================================================================

// CategoryAllocation is the share of a worker-day's total session time
// attributed to one movement category, proportional to valid movement
// counts. AllocatedHours is rounded to 2 decimals with the day's rounding
// remainder folded into the largest category.
type CategoryAllocation struct {
	Worker         WorkerCode
	Day            Day
	Category       Category
	ValidCount     int
	AllocatedHours decimal.Decimal
}

// SessionRow is the denormalized per-event projection persisted for
// reporting. Session summary fields are populated only on the first row of
// each session; per-category allocated hours only on the first row of that
// category for the day. Aggregation must read the first-row-only fields,
// never sum across all rows.
type SessionRow struct {
	Day       Day
	Worker    WorkerCode
	RowNumber int // 1-based across the whole worker-day

	Start           ClockTime
	End             ClockTime
	DurationMinutes decimal.Decimal

	// GapMinutes is the clamped distance from the previous row's end.
	// Nil on the first row of a session.
	GapMinutes *decimal.Decimal

	// Movement count in the column matching the row's category; the other
	// three stay nil.
	CountST *int
	CountSS *int
	CountAP *int
	CountCM *int

	SessionNumber int

	// First-row-of-session fields.
	SessionStart    *ClockTime
	SessionEnd      *ClockTime
	SessionHours    *decimal.Decimal
	SessionRowCount *int

	// First-occurrence-of-category fields.
	HoursST *decimal.Decimal
	HoursSS *decimal.Decimal
	HoursAP *decimal.Decimal
	HoursCM *decimal.Decimal
}

// DayResult bundles everything the engine derives for one worker-day.
type DayResult struct {
	Worker      WorkerCode
	Day         Day
	Sessions    []Session
	TotalHours  decimal.Decimal // sum of session spans, unrounded
	Allocations []CategoryAllocation
	Rows        []SessionRow
}
