package engine

// =============================================================================
// EVENT NORMALIZER - Exact-duplicate consolidation
// =============================================================================

// Movement logs repeat a row once per transport even when the scanner
// recorded the same span; those rows are one counted event for session and
// allocation purposes. Consolidation happens BEFORE session clustering.

type eventKey struct {
	Worker   WorkerCode
	Day      string
	Start    ClockTime
	End      ClockTime
	Category Category
	Error    string
}

// Normalize merges raw events with identical (day, worker, start, end,
// category, error) into single ConsolidatedEvents, summing counts. Order of
// first occurrence is preserved, so equal start times keep their original
// relative order through session building. No event is dropped.
func Normalize(raw []MovementEvent) []ConsolidatedEvent {
	index := make(map[eventKey]int, len(raw))
	out := make([]ConsolidatedEvent, 0, len(raw))

	for _, ev := range raw {
		k := eventKey{
			Worker:   ev.Worker,
			Day:      ev.Day.String(),
			Start:    ev.Start,
			End:      ev.End,
			Category: ev.Category,
			Error:    ev.ErrorNote,
		}
		if i, ok := index[k]; ok {
			out[i].Count++
			continue
		}
		index[k] = len(out)
		out = append(out, ConsolidatedEvent{MovementEvent: ev, Count: 1})
	}
	return out
}

// RawCount returns the number of raw rows a consolidated batch represents.
func RawCount(events []ConsolidatedEvent) int {
	total := 0
	for _, ev := range events {
		total += ev.Count
	}
	return total
}
