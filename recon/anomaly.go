/*
anomaly.go - Threshold-based anomaly classification

TAXONOMY:

	CODE_NOT_MATCHED          queried key absent from the external source
	HOURS_WITHOUT_PRODUCTION  external duration > 0, no local production
	                          (premium-eligible activities only)
	PRODUCTION_WITHOUT_HOURS  managerial hours > 0, external total 0 or null
	DIFF_60_120               60 <= |managerial-external| < 120 minutes
	DIFF_GT_120               |managerial-external| >= 120 minutes

EXCLUSIVITY:

	A key reported missing gets CODE_NOT_MATCHED and nothing else; the
	production-without-hours check skips it explicitly.

Anomalies are append-only: the classifier creates them OPEN and never
touches them again. Duplicate suppression across reruns is the caller's
concern (clear the period first, or accept duplicates).
*/
package recon

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/engine"
)

var (
	diffWarnMinutes = decimal.NewFromInt(60)
	diffCritMinutes = decimal.NewFromInt(120)
)

// ClassifierInput carries everything one classification pass observes.
// Production must reflect the location-hour allocation that just ran.
type ClassifierInput struct {
	Queried    []Key
	Resolution *Resolution
	Production []ProductionRecord

	// LocalNames supplies display names for keys the external source could
	// not name (used on CODE_NOT_MATCHED).
	LocalNames map[Key]string

	// Premium restricts the hours-without-production check; nil means
	// PremiumActivities.
	Premium []string
}

// Classify runs the full taxonomy over one reconciliation batch and returns
// the anomalies to append, in deterministic order.
func Classify(in ClassifierInput) []Anomaly {
	premium := in.Premium
	if premium == nil {
		premium = PremiumActivities
	}
	premiumSet := map[string]bool{}
	for _, p := range premium {
		premiumSet[p] = true
	}

	now := time.Now().UTC()
	var out []Anomaly

	// ---- CODE_NOT_MATCHED: one per missing key, dated to the production day.
	for _, k := range in.Resolution.Missing {
		out = append(out, newAnomaly(now, AnomalyCodeNotMatched, k, in.LocalNames[k], nil,
			fmt.Sprintf("Day: %s - worker code not found in external source", k.Day)))
	}

	// Group local production by key.
	type aggregate struct {
		external   decimal.Decimal
		managerial decimal.Decimal
		locations  map[string]bool
	}
	produced := map[Key]*aggregate{}
	for _, rec := range in.Production {
		k, ok := rec.Key()
		if !ok {
			continue
		}
		agg := produced[k]
		if agg == nil {
			agg = &aggregate{locations: map[string]bool{}}
			produced[k] = agg
		}
		agg.external = agg.external.Add(rec.ExternalHours)
		agg.managerial = agg.managerial.Add(rec.ManagerialHours)
		agg.locations[rec.Location] = true
	}

	// ---- HOURS_WITHOUT_PRODUCTION: matched premium keys with duration but
	// no local record.
	matched := make([]Key, 0, len(in.Resolution.Matched))
	for k := range in.Resolution.Matched {
		matched = append(matched, k)
	}
	sort.Slice(matched, func(i, j int) bool { return lessKey(matched[i], matched[j]) })

	for _, k := range matched {
		if !premiumSet[k.Activity] {
			continue
		}
		ext := in.Resolution.Matched[k]
		if !ext.Minutes.IsPositive() {
			continue
		}
		if _, ok := produced[k]; ok {
			continue
		}
		hours := engine.MinutesToHours(ext.Minutes).Round(2)
		out = append(out, newAnomaly(now, AnomalyHoursWithoutProduction, k, ext.DisplayName, &hours,
			fmt.Sprintf("Day: %s - %s minutes (%s h) recorded externally but no local production",
				k.Day, ext.Minutes.StringFixed(0), hours.StringFixed(2))))
	}

	// ---- Aggregate checks over local production.
	producedKeys := make([]Key, 0, len(produced))
	for k := range produced {
		producedKeys = append(producedKeys, k)
	}
	sort.Slice(producedKeys, func(i, j int) bool { return lessKey(producedKeys[i], producedKeys[j]) })

	for _, k := range producedKeys {
		agg := produced[k]
		name := ""
		if ext, ok := in.Resolution.Matched[k]; ok {
			name = ext.DisplayName
		}
		tags := sortedTags(agg.locations)

		if !agg.external.IsPositive() {
			// PRODUCTION_WITHOUT_HOURS, unless the key already got
			// CODE_NOT_MATCHED.
			if in.Resolution.IsMissing(k) {
				continue
			}
			if agg.managerial.IsPositive() {
				zero := decimal.Zero
				out = append(out, newAnomaly(now, AnomalyProductionWithoutHours, k, name, &zero,
					fmt.Sprintf("Day: %s - external: 0.00h, managerial: %sh - locations: %s",
						k.Day, agg.managerial.StringFixed(2), tags)))
			}
			continue
		}

		diff := agg.managerial.Sub(agg.external).Mul(decimal.NewFromInt(60))
		abs := diff.Abs()
		var kind AnomalyKind
		switch {
		case abs.GreaterThanOrEqual(diffCritMinutes):
			kind = AnomalyDiffOver120
		case abs.GreaterThanOrEqual(diffWarnMinutes):
			kind = AnomalyDiff60To120
		default:
			continue
		}

		ext := agg.external
		out = append(out, newAnomaly(now, kind, k, name, &ext,
			fmt.Sprintf("Day: %s - external: %sh, managerial: %sh - difference: %s min - locations: %s",
				k.Day, agg.external.StringFixed(2), agg.managerial.StringFixed(2),
				signedMinutes(diff), tags)))
	}

	return out
}

func newAnomaly(now time.Time, kind AnomalyKind, k Key, name string, hours *decimal.Decimal, detail string) Anomaly {
	day, _ := engine.ParseDay(k.Day)
	return Anomaly{
		ID:            uuid.NewString(),
		Kind:          kind,
		Day:           day,
		Worker:        k.Worker,
		WorkerName:    name,
		Activity:      k.Activity,
		ExternalHours: hours,
		Detail:        detail,
		Status:        StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func sortedTags(set map[string]bool) string {
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return strings.Join(tags, ", ")
}

func signedMinutes(d decimal.Decimal) string {
	s := d.StringFixed(0)
	if !d.IsNegative() {
		s = "+" + s
	}
	return s
}
