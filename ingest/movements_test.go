package ingest

import (
	"strings"
	"testing"

	"github.com/warp/recon-engine/engine"
)

const sampleLog = `Report Carrellisti,,,,,,
Stabilimento Nord,,,,,,
Data,Preparatore,Tipo,N°trasporto,Ora inizio,Ora fine,Errore
20260302,,,,,,
,W01,,,,,
,,ST,T-1001,06:10,06:25,
,,ST,T-1002,06:30:00,06:45:00,
,,AP,T-1003,06:50,07:05,ubicazione errata
,TOTALE,,,,,
,W02,,,,,
,,CM,T-2001,0.5,0.510417,
,,SS,T-2002,7.53,8.02,
,,ST,T-2003,,08:30,
`

func TestReadMovements(t *testing.T) {
	// GIVEN a movement log with a floating header, section headers, a TOTALE
	// row, mixed time formats, and one row missing its start time
	fallback := engine.NewDay(2026, 3, 1)

	// WHEN the log is parsed
	events, err := ReadMovements(strings.NewReader(sampleLog), fallback)
	if err != nil {
		t.Fatalf("ReadMovements failed: %v", err)
	}

	// THEN the five complete rows survive and the incomplete one is skipped
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}

	first := events[0]
	if first.Worker != "W01" {
		t.Errorf("expected worker W01, got %s", first.Worker)
	}
	if first.Day.String() != "2026-03-02" {
		t.Errorf("expected date from file section, got %s", first.Day)
	}
	if first.Category != engine.CategoryST {
		t.Errorf("expected category ST, got %s", first.Category)
	}
	if first.Start.String() != "06:10:00" || first.End.String() != "06:25:00" {
		t.Errorf("unexpected times: %s -> %s", first.Start, first.End)
	}

	// Error note carried through, event flagged
	flagged := events[2]
	if flagged.ErrorNote != "ubicazione errata" {
		t.Errorf("expected error note, got %q", flagged.ErrorNote)
	}
	if !flagged.Flagged() {
		t.Error("expected event with error note to be flagged")
	}

	// Excel day fraction: 0.5 = 12:00:00
	excel := events[3]
	if excel.Worker != "W02" {
		t.Errorf("expected worker W02 after section change, got %s", excel.Worker)
	}
	if excel.Start.String() != "12:00:00" {
		t.Errorf("expected Excel fraction 0.5 to parse as 12:00:00, got %s", excel.Start)
	}

	// HH.MM float convention: 7.53 = 07:53
	hhmm := events[4]
	if hhmm.Start.String() != "07:53:00" || hhmm.End.String() != "08:02:00" {
		t.Errorf("unexpected HH.MM times: %s -> %s", hhmm.Start, hhmm.End)
	}
}

func TestReadMovementsFallbackDay(t *testing.T) {
	// GIVEN a log with no date column
	log := `Preparatore,Tipo,Ora inizio,Ora fine
W01,,,
,ST,06:00,06:20
`
	fallback := engine.NewDay(2026, 3, 9)

	// WHEN parsed
	events, err := ReadMovements(strings.NewReader(log), fallback)
	if err != nil {
		t.Fatalf("ReadMovements failed: %v", err)
	}

	// THEN the fallback day is applied
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].Day.Equal(fallback) {
		t.Errorf("expected fallback day %s, got %s", fallback, events[0].Day)
	}
}

func TestReadMovementsNoHeader(t *testing.T) {
	// GIVEN a file with no recognizable header
	log := "a,b,c\n1,2,3\n"

	// WHEN parsed THEN it fails
	if _, err := ReadMovements(strings.NewReader(log), engine.Today()); err == nil {
		t.Fatal("expected error for missing header")
	}
}
