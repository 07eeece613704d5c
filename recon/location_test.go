package recon_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/engine"
	"github.com/warp/recon-engine/recon"
)

func testDay() engine.Day {
	return engine.NewDay(2026, 3, 2)
}

func prodRecord(worker string, activity recon.Activity, location string, units int) recon.ProductionRecord {
	return recon.ProductionRecord{
		Worker:   engine.WorkerCode(worker),
		Activity: activity,
		Day:      testDay(),
		Location: location,
		Units:    units,
	}
}

func matchedResolution(keys map[recon.Key]decimal.Decimal) *recon.Resolution {
	res := &recon.Resolution{Matched: map[recon.Key]recon.ExternalDuration{}}
	for k, minutes := range keys {
		res.Matched[k] = recon.ExternalDuration{Minutes: minutes, DisplayName: "Worker Name"}
	}
	return res
}

func TestAllocateLocationsProportionalToUnits(t *testing.T) {
	key := recon.NewKey("W01", "PICKING", testDay())
	res := matchedResolution(map[recon.Key]decimal.Decimal{
		key: decimal.NewFromInt(120),
	})
	records := []recon.ProductionRecord{
		prodRecord("W01", recon.ActivityPicking, "A1", 30),
		prodRecord("W01", recon.ActivityPicking, "B2", 70),
	}

	updates := recon.AllocateLocations(res, records)
	require.Len(t, updates, 2)

	// 120 minutes split 30/70: round(120*30/100/60, 2) and the complement
	assert.Equal(t, "A1", updates[0].Location)
	assert.True(t, updates[0].ExternalHours.Equal(decimal.RequireFromString("0.6")),
		"got %s", updates[0].ExternalHours)
	assert.Equal(t, "B2", updates[1].Location)
	assert.True(t, updates[1].ExternalHours.Equal(decimal.RequireFromString("1.4")),
		"got %s", updates[1].ExternalHours)
	assert.Equal(t, "Worker Name", updates[0].DisplayName)
}

func TestAllocateLocationsSingleLocationGetsAll(t *testing.T) {
	key := recon.NewKey("W01", "FORKLIFT", testDay())
	res := matchedResolution(map[recon.Key]decimal.Decimal{
		key: decimal.NewFromInt(90),
	})
	records := []recon.ProductionRecord{
		prodRecord("W01", recon.ActivityForklift, "ST", 12),
	}

	updates := recon.AllocateLocations(res, records)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].ExternalHours.Equal(decimal.RequireFromString("1.5")))
}

func TestAllocateLocationsZeroUnits(t *testing.T) {
	key := recon.NewKey("W01", "PICKING", testDay())
	res := matchedResolution(map[recon.Key]decimal.Decimal{
		key: decimal.NewFromInt(60),
	})
	records := []recon.ProductionRecord{
		prodRecord("W01", recon.ActivityPicking, "A1", 0),
		prodRecord("W01", recon.ActivityPicking, "B2", 0),
	}

	// Zero total units cannot be proportioned; hours go to zero rather
	// than dividing by zero.
	updates := recon.AllocateLocations(res, records)
	require.Len(t, updates, 2)
	for _, u := range updates {
		assert.True(t, u.ExternalHours.IsZero(), "location %s got %s", u.Location, u.ExternalHours)
	}
}

func TestAllocateLocationsSkipsUnmatched(t *testing.T) {
	res := &recon.Resolution{
		Matched: map[recon.Key]recon.ExternalDuration{},
		Missing: []recon.Key{recon.NewKey("W01", "PICKING", testDay())},
	}
	records := []recon.ProductionRecord{
		prodRecord("W01", recon.ActivityPicking, "A1", 10),
	}

	assert.Empty(t, recon.AllocateLocations(res, records))
}

func TestAllocateLocationsIdempotent(t *testing.T) {
	key := recon.NewKey("W01", "PICKING", testDay())
	res := matchedResolution(map[recon.Key]decimal.Decimal{
		key: decimal.NewFromInt(100),
	})
	records := []recon.ProductionRecord{
		prodRecord("W01", recon.ActivityPicking, "A1", 3),
		prodRecord("W01", recon.ActivityPicking, "B2", 7),
	}

	first := recon.AllocateLocations(res, records)
	second := recon.AllocateLocations(res, records)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].ExternalHours.Equal(second[i].ExternalHours))
		assert.Equal(t, first[i].Location, second[i].Location)
	}
}
