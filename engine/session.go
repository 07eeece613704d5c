/*
session.go - Gap-threshold session clustering

PURPOSE:

	Groups a worker-day's consolidated events into work sessions. Two
	consecutive events belong to the same session when the gap between the
	running session end and the next start is at most 15 minutes; a larger
	gap closes the session and opens a new one.

MIDNIGHT ROLLOVER:

	An event whose end precedes its start crossed midnight; its end gets +24h
	before any duration or gap arithmetic. A single overnight event is valid.

RUNNING END vs SESSION END:

	Gap decisions compare against the MAXIMUM end seen so far in the session
	(events may overlap). The persisted session span, however, runs from the
	first event's start to the LAST event's end.
*/
package engine

import "sort"

// SessionGapSeconds is the clustering threshold: a gap strictly greater
// than 15 minutes starts a new session.
const SessionGapSeconds = 15 * 60

// BuildSessions clusters one worker-day's events into ordered sessions,
// numbered from 1. Events are sorted by start time; equal starts keep their
// input order. Every event lands in exactly one session.
func BuildSessions(events []ConsolidatedEvent) []Session {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]ConsolidatedEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var sessions []Session
	var current []ConsolidatedEvent
	runningEnd := 0 // seconds since midnight, rollover-corrected

	endSeconds := func(ev ConsolidatedEvent) int {
		end := ev.End.SecondsOfDay()
		if end < ev.Start.SecondsOfDay() {
			end += secondsPerDay
		}
		return end
	}

	for _, ev := range sorted {
		if len(current) == 0 {
			current = []ConsolidatedEvent{ev}
			runningEnd = endSeconds(ev)
			continue
		}

		gap := ev.Start.SecondsOfDay() - runningEnd
		if gap > SessionGapSeconds {
			sessions = append(sessions, Session{Number: len(sessions) + 1, Events: current})
			current = []ConsolidatedEvent{ev}
			runningEnd = endSeconds(ev)
			continue
		}

		current = append(current, ev)
		if e := endSeconds(ev); e > runningEnd {
			runningEnd = e
		}
	}
	if len(current) > 0 {
		sessions = append(sessions, Session{Number: len(sessions) + 1, Events: current})
	}
	return sessions
}
