package recon

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LOCATION HOUR ALLOCATOR
// =============================================================================

// AllocateLocations spreads each matched key's external duration across that
// key's local production records, proportionally to unit counts:
//
//	external_hours = round(minutes * units / total_units / 60, 2)
//
// A key with zero total units gets 0 on every location (no division). The
// output is deterministic for unchanged inputs and is applied as an upsert
// keyed by (worker, activity, day, location), so re-running is idempotent.
// Records with identical location tags are treated as separate shipments and
// each receives its own share.
func AllocateLocations(res *Resolution, records []ProductionRecord) []HourUpdate {
	byKey := map[Key][]ProductionRecord{}
	var order []Key
	for _, rec := range records {
		k, ok := rec.Key()
		if !ok {
			continue
		}
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], rec)
	}
	sort.Slice(order, func(i, j int) bool { return lessKey(order[i], order[j]) })

	var updates []HourUpdate
	for _, k := range order {
		ext, ok := res.Matched[k]
		if !ok {
			continue
		}

		recs := byKey[k]
		totalUnits := 0
		for _, rec := range recs {
			totalUnits += rec.Units
		}

		for _, rec := range recs {
			hours := decimal.Zero
			if totalUnits > 0 {
				hours = ext.Minutes.
					Mul(decimal.NewFromInt(int64(rec.Units))).
					Div(decimal.NewFromInt(int64(totalUnits))).
					Div(decimal.NewFromInt(60)).
					Round(2)
			}
			updates = append(updates, HourUpdate{
				Worker:        rec.Worker,
				Activity:      rec.Activity,
				Day:           rec.Day,
				Location:      rec.Location,
				DisplayName:   ext.DisplayName,
				ExternalHours: hours,
			})
		}
	}
	return updates
}
