/*
resolver.go - Day-batched resolution against the external time source

CONTRACT:

	Resolution issues ONE query per distinct day, never one per key. The
	query count is bounded by the number of days in the period regardless of
	how many (worker, activity, day) triples are being matched. A key is
	matched only when the day falls inside the worker code's validity window
	in the external source; everything else is reported as missing.
*/
package recon

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/recon-engine/engine"
)

// DurationSource is the external time source. ResolveDay returns duration
// sums for one day, restricted to the given worker codes (lowercased by the
// implementation) and external activity names, honoring validity windows.
type DurationSource interface {
	ResolveDay(ctx context.Context, day engine.Day, workers []engine.WorkerCode, activities []string) (map[Key]ExternalDuration, error)
}

// Resolution is the outcome of resolving a key set.
type Resolution struct {
	Matched map[Key]ExternalDuration
	Missing []Key
}

// IsMissing reports whether the key was queried but not matched.
func (r *Resolution) IsMissing(k Key) bool {
	_, ok := r.Matched[k]
	return !ok
}

// Resolve matches a set of keys against the external source, batching by
// distinct day. Failure of any day's query fails the whole resolution.
func Resolve(ctx context.Context, src DurationSource, keys []Key) (*Resolution, error) {
	byDay := map[string][]Key{}
	for _, k := range keys {
		byDay[k.Day] = append(byDay[k.Day], k)
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	res := &Resolution{Matched: make(map[Key]ExternalDuration, len(keys))}

	for _, dayStr := range days {
		day, err := engine.ParseDay(dayStr)
		if err != nil {
			return nil, err
		}

		workers := map[engine.WorkerCode]bool{}
		activities := map[string]bool{}
		for _, k := range byDay[dayStr] {
			workers[k.Worker] = true
			activities[k.Activity] = true
		}

		found, err := src.ResolveDay(ctx, day, sortedWorkers(workers), sortedNames(activities))
		if err != nil {
			return nil, fmt.Errorf("%w: day %s: %v", engine.ErrExternalSource, dayStr, err)
		}
		for k, d := range found {
			res.Matched[k] = d
		}
	}

	for _, dayStr := range days {
		for _, k := range byDay[dayStr] {
			if _, ok := res.Matched[k]; !ok {
				res.Missing = append(res.Missing, k)
			}
		}
	}
	sort.Slice(res.Missing, func(i, j int) bool { return lessKey(res.Missing[i], res.Missing[j]) })

	return res, nil
}

func sortedWorkers(set map[engine.WorkerCode]bool) []engine.WorkerCode {
	out := make([]engine.WorkerCode, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func lessKey(a, b Key) bool {
	if a.Day != b.Day {
		return a.Day < b.Day
	}
	if a.Worker != b.Worker {
		return a.Worker < b.Worker
	}
	return a.Activity < b.Activity
}
