/*
Package recon reconciles locally computed production time against the
external authoritative time-tracking source.

PURPOSE:

	After the engine has segmented sessions and allocated category hours,
	this package resolves external durations per (worker, activity, day),
	spreads them across work locations proportionally to unit counts, and
	classifies mismatches into a fixed anomaly taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Activity / external activity names: local tags mapped to the names the
    external source uses
  - Key:                matching key (worker, external activity, day)
  - ExternalDuration:   resolved minutes + worker display name
  - ProductionRecord:   one local production row per location
  - Anomaly:            typed mismatch, append-only, operator-transitioned

SEE ALSO:
  - resolver.go: day-batched external resolution
  - location.go: proportional location-hour allocation
  - anomaly.go:  classification rules
  - pipeline.go: the end-to-end reconciliation pass
*/
package recon

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/engine"
)

// =============================================================================
// ACTIVITIES
// =============================================================================

// Activity is a local activity tag attached to production records.
type Activity string

const (
	ActivityForklift    Activity = "FORKLIFT"
	ActivityPicking     Activity = "PICKING"
	ActivityReceiving   Activity = "RECEIVING"
	ActivityDoubleCheck Activity = "DOUBLE_CHECK"
)

// ExternalActivityNames maps local activity tags to the activity
// descriptions used by the external time source. Only mapped activities
// participate in reconciliation.
var ExternalActivityNames = map[Activity]string{
	ActivityForklift:    "FORKLIFT",
	ActivityPicking:     "PICKING",
	ActivityReceiving:   "WAREHOUSE RECEIVING",
	ActivityDoubleCheck: "DOUBLE CHECK",
}

// PremiumActivities are the external activity names eligible for the
// hours-without-production check.
var PremiumActivities = []string{
	"FORKLIFT", "PICKING", "WAREHOUSE RECEIVING", "DOUBLE CHECK",
}

// =============================================================================
// MATCHING KEY
// =============================================================================

// Key identifies one unit of reconciliation: a worker's external activity on
// one day. Worker codes are uppercased so matching is case-insensitive.
type Key struct {
	Worker   engine.WorkerCode
	Activity string // external activity name
	Day      string // engine.Day.String(); comparable map key
}

func NewKey(worker engine.WorkerCode, externalActivity string, day engine.Day) Key {
	return Key{
		Worker:   engine.WorkerCode(strings.ToUpper(string(worker))),
		Activity: externalActivity,
		Day:      day.String(),
	}
}

// ExternalDuration is the resolved external total for one Key.
type ExternalDuration struct {
	Minutes     decimal.Decimal
	DisplayName string
}

// =============================================================================
// PRODUCTION RECORD
// =============================================================================

// ProductionRecord is one local production row. Location distinguishes
// multiple rows sharing the same (worker, activity, day); for forklift
// work the movement category serves as the location tag.
type ProductionRecord struct {
	Worker   engine.WorkerCode
	Activity Activity
	Day      engine.Day
	Location string

	Units           int
	ExternalHours   decimal.Decimal // written by the location allocator
	ManagerialHours decimal.Decimal // engine-computed allocation
	DisplayName     string
}

// Key returns the record's reconciliation key, or false when the activity
// has no external mapping.
func (r ProductionRecord) Key() (Key, bool) {
	name, ok := ExternalActivityNames[r.Activity]
	if !ok {
		return Key{}, false
	}
	return NewKey(r.Worker, name, r.Day), true
}

// HourUpdate is one location's share of an external duration, ready for an
// upsert keyed by (worker, activity, day, location).
type HourUpdate struct {
	Worker        engine.WorkerCode
	Activity      Activity
	Day           engine.Day
	Location      string
	DisplayName   string
	ExternalHours decimal.Decimal
}

// =============================================================================
// ANOMALIES
// =============================================================================

type AnomalyKind string

const (
	AnomalyCodeNotMatched         AnomalyKind = "CODE_NOT_MATCHED"
	AnomalyHoursWithoutProduction AnomalyKind = "HOURS_WITHOUT_PRODUCTION"
	AnomalyProductionWithoutHours AnomalyKind = "PRODUCTION_WITHOUT_HOURS"
	AnomalyDiff60To120            AnomalyKind = "DIFF_60_120"
	AnomalyDiffOver120            AnomalyKind = "DIFF_GT_120"
)

type AnomalyStatus string

const (
	StatusOpen     AnomalyStatus = "OPEN"
	StatusVerified AnomalyStatus = "VERIFIED"
	StatusResolved AnomalyStatus = "RESOLVED"
)

func (s AnomalyStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusVerified, StatusResolved:
		return true
	}
	return false
}

// Anomaly records one classified mismatch. Created only by the classifier;
// after creation only the status and note change, via operator action.
type Anomaly struct {
	ID         string
	Kind       AnomalyKind
	Day        engine.Day
	Worker     engine.WorkerCode
	WorkerName string
	Activity   string // external activity name

	// ExternalHours is set for kinds that observed an external total.
	ExternalHours *decimal.Decimal

	Detail string
	Status AnomalyStatus
	Note   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnomalyFilter narrows anomaly listings.
type AnomalyFilter struct {
	From   *engine.Day
	To     *engine.Day
	Kinds  []AnomalyKind
	Status AnomalyStatus // empty = all
	Worker engine.WorkerCode
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// Run is the persisted record of one reconciliation pass.
type Run struct {
	ID       string
	From     engine.Day
	To       engine.Day
	Status   RunStatus
	Progress int // 0-100

	Keys        int
	Matched     int
	Missing     int
	HourUpdates int
	Anomalies   int

	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}
