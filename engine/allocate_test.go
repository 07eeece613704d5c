package engine_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/engine"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func processDay(t *testing.T, raw ...engine.MovementEvent) *engine.DayResult {
	t.Helper()
	result, err := engine.ProcessDay("W01", day(), raw)
	if err != nil {
		t.Fatalf("ProcessDay failed: %v", err)
	}
	return result
}

func allocationFor(t *testing.T, result *engine.DayResult, cat engine.Category) engine.CategoryAllocation {
	t.Helper()
	for _, a := range result.Allocations {
		if a.Category == cat {
			return a
		}
	}
	t.Fatalf("no allocation for category %s", cat)
	return engine.CategoryAllocation{}
}

// =============================================================================
// PROPORTIONAL ALLOCATION
// =============================================================================

func TestAllocateProportionalByCount(t *testing.T) {
	// GIVEN a 28-minute day with two ST movements and one AP movement
	result := processDay(t,
		movement(engine.CategoryST, clock(6, 0), clock(6, 10)),
		movement(engine.CategoryST, clock(6, 12), clock(6, 22)),
		movement(engine.CategoryAP, clock(6, 24), clock(6, 28)),
	)

	// THEN the session runs 06:00-06:28
	if !result.TotalHours.Equal(dec("28").Div(dec("60"))) {
		t.Errorf("expected 28min day total, got %s hours", result.TotalHours)
	}

	// AND shares split 2/3 vs 1/3 of the day total, rounded to 2 decimals
	st := allocationFor(t, result, engine.CategoryST)
	ap := allocationFor(t, result, engine.CategoryAP)
	if st.ValidCount != 2 || ap.ValidCount != 1 {
		t.Errorf("unexpected counts: ST=%d AP=%d", st.ValidCount, ap.ValidCount)
	}
	if !st.AllocatedHours.Equal(dec("0.31")) {
		t.Errorf("expected ST 0.31h, got %s", st.AllocatedHours)
	}
	if !ap.AllocatedHours.Equal(dec("0.16")) {
		t.Errorf("expected AP 0.16h, got %s", ap.AllocatedHours)
	}
}

func TestAllocateConservesDayTotal(t *testing.T) {
	// GIVEN three categories with equal counts over exactly one hour, where
	// independent rounding would lose a cent (3 x 0.33 = 0.99)
	result := processDay(t,
		movement(engine.CategoryST, clock(6, 0), clock(6, 20)),
		movement(engine.CategorySS, clock(6, 20), clock(6, 40)),
		movement(engine.CategoryAP, clock(6, 40), clock(7, 0)),
	)

	// THEN the remainder is folded in and the shares sum to the day total
	sum := decimal.Zero
	for _, a := range result.Allocations {
		sum = sum.Add(a.AllocatedHours)
	}
	if !sum.Equal(dec("1")) {
		t.Errorf("expected allocations to sum to 1.00, got %s", sum)
	}
	// First category in canonical order absorbs the tie-broken remainder
	if st := allocationFor(t, result, engine.CategoryST); !st.AllocatedHours.Equal(dec("0.34")) {
		t.Errorf("expected ST 0.34h after correction, got %s", st.AllocatedHours)
	}
}

func TestAllocateWeighsConsolidatedCounts(t *testing.T) {
	// GIVEN a duplicated ST row (count 2) and a single AP row
	result := processDay(t,
		movement(engine.CategoryST, clock(6, 0), clock(6, 10)),
		movement(engine.CategoryST, clock(6, 0), clock(6, 10)),
		movement(engine.CategoryAP, clock(6, 12), clock(6, 30)),
	)

	// THEN the duplicate weighs double in the split
	st := allocationFor(t, result, engine.CategoryST)
	if st.ValidCount != 2 {
		t.Errorf("expected consolidated count 2, got %d", st.ValidCount)
	}
	// 30min day, ST share = 0.5 * 2/3
	if !st.AllocatedHours.Equal(dec("0.33")) {
		t.Errorf("expected ST 0.33h, got %s", st.AllocatedHours)
	}
}

func TestAllocateFlaggedEventsExtendTotalOnly(t *testing.T) {
	// GIVEN a valid movement and a flagged one stretching the session
	result := processDay(t,
		movement(engine.CategoryST, clock(6, 0), clock(6, 10)),
		flaggedMovement(engine.CategoryCM, clock(6, 12), clock(6, 40), "fault"),
	)

	// THEN the flagged event lengthens the day total
	if !result.TotalHours.Equal(dec("40").Div(dec("60"))) {
		t.Errorf("expected 40min day total, got %s hours", result.TotalHours)
	}

	// AND all hours go to the only valid category
	if len(result.Allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(result.Allocations))
	}
	st := result.Allocations[0]
	if st.Category != engine.CategoryST || !st.AllocatedHours.Equal(dec("0.67")) {
		t.Errorf("expected ST 0.67h, got %s %s", st.Category, st.AllocatedHours)
	}
}

func TestAllocateAllFlagged(t *testing.T) {
	// GIVEN a day where every movement is flagged
	result := processDay(t,
		flaggedMovement(engine.CategoryST, clock(6, 0), clock(6, 30), "fault"),
	)

	// THEN the day total is kept but nothing is allocated or projected
	if result.TotalHours.IsZero() {
		t.Error("expected non-zero day total")
	}
	if len(result.Allocations) != 0 {
		t.Errorf("expected no allocations, got %d", len(result.Allocations))
	}
	if len(result.Rows) != 0 {
		t.Errorf("expected no rows, got %d", len(result.Rows))
	}
}

// =============================================================================
// ROW PROJECTION
// =============================================================================

func TestProjectionFirstRowOnlyFields(t *testing.T) {
	// GIVEN two sessions of two and one valid movements
	result := processDay(t,
		movement(engine.CategoryST, clock(6, 0), clock(6, 10)),
		movement(engine.CategoryAP, clock(6, 15), clock(6, 25)),
		movement(engine.CategoryST, clock(7, 0), clock(7, 20)),
	)

	rows := result.Rows
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	// THEN row numbering is continuous across sessions
	for i, row := range rows {
		if row.RowNumber != i+1 {
			t.Errorf("row %d: expected number %d, got %d", i, i+1, row.RowNumber)
		}
	}

	// Session summary only on the first row of each session
	first := rows[0]
	if first.SessionStart == nil || first.SessionHours == nil || first.SessionRowCount == nil {
		t.Fatal("expected session summary on first row")
	}
	if first.SessionStart.String() != "06:00:00" || first.SessionEnd.String() != "06:25:00" {
		t.Errorf("unexpected session span: %s -> %s", first.SessionStart, first.SessionEnd)
	}
	if *first.SessionRowCount != 2 {
		t.Errorf("expected session row count 2, got %d", *first.SessionRowCount)
	}
	if rows[1].SessionStart != nil || rows[1].SessionHours != nil {
		t.Error("expected no session summary on second row")
	}
	if rows[2].SessionStart == nil {
		t.Error("expected session summary on first row of second session")
	}
	if rows[2].SessionNumber != 2 {
		t.Errorf("expected session number 2, got %d", rows[2].SessionNumber)
	}

	// Gap is nil on the first row of each session, set within a session
	if first.GapMinutes != nil || rows[2].GapMinutes != nil {
		t.Error("expected nil gap on session-opening rows")
	}
	if rows[1].GapMinutes == nil || !rows[1].GapMinutes.Equal(dec("5")) {
		t.Errorf("expected 5min gap on second row, got %v", rows[1].GapMinutes)
	}

	// Category hours only on the first occurrence of each category
	if first.HoursST == nil {
		t.Error("expected ST hours on first ST row")
	}
	if rows[1].HoursAP == nil {
		t.Error("expected AP hours on first AP row")
	}
	if rows[2].HoursST != nil {
		t.Error("expected no ST hours on second ST row")
	}

	// Count column matches the row's category, others stay nil
	if first.CountST == nil || *first.CountST != 1 {
		t.Errorf("expected CountST 1, got %v", first.CountST)
	}
	if first.CountAP != nil || first.CountSS != nil || first.CountCM != nil {
		t.Error("expected other count columns nil")
	}
}

func TestProjectionSkipsFlaggedButCountsThem(t *testing.T) {
	// GIVEN a session with a flagged movement between two valid ones
	result := processDay(t,
		movement(engine.CategoryST, clock(6, 0), clock(6, 10)),
		flaggedMovement(engine.CategoryCM, clock(6, 12), clock(6, 20), "fault"),
		movement(engine.CategoryAP, clock(6, 25), clock(6, 35)),
	)

	rows := result.Rows
	// THEN flagged movements produce no row
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// BUT they still count toward the session row count
	if *rows[0].SessionRowCount != 3 {
		t.Errorf("expected session row count 3 (flagged included), got %d", *rows[0].SessionRowCount)
	}
	// AND the gap on the next projected row measures from the previous
	// PROJECTED row's end, not the flagged one's
	if rows[1].GapMinutes == nil || !rows[1].GapMinutes.Equal(dec("15")) {
		t.Errorf("expected 15min gap from previous projected row, got %v", rows[1].GapMinutes)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestProcessDayRejectsUnknownCategory(t *testing.T) {
	raw := []engine.MovementEvent{movement("XX", clock(6, 0), clock(6, 10))}
	_, err := engine.ProcessDay("W01", day(), raw)
	if !errors.Is(err, engine.ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestProcessDayRejectsMixedWorker(t *testing.T) {
	ev := movement(engine.CategoryST, clock(6, 0), clock(6, 10))
	ev.Worker = "W02"
	_, err := engine.ProcessDay("W01", day(), []engine.MovementEvent{ev})
	if !errors.Is(err, engine.ErrMixedWorkerDay) {
		t.Errorf("expected ErrMixedWorkerDay, got %v", err)
	}
}
