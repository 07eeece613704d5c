package timsource

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/engine"
	"github.com/warp/recon-engine/recon"
)

func newTimDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE workers (id INTEGER PRIMARY KEY, full_name TEXT NOT NULL);
		CREATE TABLE worker_codes (
			worker_id INTEGER NOT NULL,
			code TEXT NOT NULL,
			valid_from TEXT NOT NULL,
			valid_to TEXT
		);
		CREATE TABLE activities (id INTEGER PRIMARY KEY, description TEXT NOT NULL);
		CREATE TABLE activity_durations (
			worker_id INTEGER NOT NULL,
			activity_id INTEGER NOT NULL,
			day TEXT NOT NULL,
			duration_minutes REAL NOT NULL
		);
	`)
	require.NoError(t, err)
	return db
}

func TestResolveDaySumsDurations(t *testing.T) {
	db := newTimDB(t)
	_, err := db.Exec(`
		INSERT INTO workers VALUES (1, 'Rossi Mario'), (2, 'Bianchi Anna');
		INSERT INTO worker_codes VALUES
			(1, 'w01', '2026-01-01', NULL),
			(2, 'W02', '2026-01-01', '2026-02-01');
		INSERT INTO activities VALUES (10, 'FORKLIFT'), (11, 'PICKING');
		INSERT INTO activity_durations VALUES
			(1, 10, '2026-03-02', 45),
			(1, 10, '2026-03-02', 30),
			(1, 11, '2026-03-02', 60),
			(2, 10, '2026-03-02', 90);
	`)
	require.NoError(t, err)

	src := New(db)
	day, err := engine.ParseDay("2026-03-02")
	require.NoError(t, err)

	got, err := src.ResolveDay(context.Background(), day,
		[]engine.WorkerCode{"W01", "W02"}, []string{"FORKLIFT", "PICKING"})
	require.NoError(t, err)

	// Two duration rows collapse into one sum; matching ignores code case.
	fk := got[recon.NewKey("W01", "FORKLIFT", day)]
	assert.True(t, fk.Minutes.Equal(decimal.NewFromInt(75)), "got %s", fk.Minutes)
	assert.Equal(t, "Rossi Mario", fk.DisplayName)

	pk := got[recon.NewKey("W01", "PICKING", day)]
	assert.True(t, pk.Minutes.Equal(decimal.NewFromInt(60)))

	// W02's code expired before the queried day.
	_, ok := got[recon.NewKey("W02", "FORKLIFT", day)]
	assert.False(t, ok)
}

func TestResolveDayRespectsActivityFilter(t *testing.T) {
	db := newTimDB(t)
	_, err := db.Exec(`
		INSERT INTO workers VALUES (1, 'Rossi Mario');
		INSERT INTO worker_codes VALUES (1, 'w01', '2026-01-01', NULL);
		INSERT INTO activities VALUES (10, 'FORKLIFT'), (12, 'CLEANING');
		INSERT INTO activity_durations VALUES
			(1, 10, '2026-03-02', 30),
			(1, 12, '2026-03-02', 300);
	`)
	require.NoError(t, err)

	src := New(db)
	day, err := engine.ParseDay("2026-03-02")
	require.NoError(t, err)

	got, err := src.ResolveDay(context.Background(), day,
		[]engine.WorkerCode{"W01"}, []string{"FORKLIFT"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestResolveDayEmptyInputs(t *testing.T) {
	src := New(newTimDB(t))
	day, err := engine.ParseDay("2026-03-02")
	require.NoError(t, err)

	got, err := src.ResolveDay(context.Background(), day, nil, []string{"FORKLIFT"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
