/*
Package timsource resolves external activity durations from the managerial
time-tracking database (TIM).

PURPOSE:

	Implements recon.DurationSource over database/sql. One query per day
	returns summed durations for every requested worker code and activity
	description, honoring worker-code validity windows.

SCHEMA ASSUMED (external, read-only):

	worker_codes(worker_id, code, valid_from, valid_to)
	workers(id, full_name)
	activities(id, description)
	activity_durations(worker_id, activity_id, day, duration_minutes)

VALIDITY WINDOW:

	A code matches a day only when valid_from <= day <= COALESCE(valid_to,
	'9999-12-31'). Codes are compared lowercase on both sides, so matching is
	case-insensitive.

SEE ALSO:
  - recon/resolver.go: day-batched Resolve loop driving this source
*/
package timsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/recon-engine/engine"
	"github.com/warp/recon-engine/recon"
)

// SQLSource reads duration sums from a SQL time-tracking database.
type SQLSource struct {
	DB *sql.DB
}

func New(db *sql.DB) *SQLSource {
	return &SQLSource{DB: db}
}

// ResolveDay returns summed minutes per (worker, activity) for one day.
// Workers whose codes are not valid on the day produce no row and are
// therefore reported missing by the resolver.
func (s *SQLSource) ResolveDay(ctx context.Context, day engine.Day, workers []engine.WorkerCode, activities []string) (map[recon.Key]recon.ExternalDuration, error) {
	if len(workers) == 0 || len(activities) == 0 {
		return map[recon.Key]recon.ExternalDuration{}, nil
	}

	dayStr := day.String()
	args := []any{dayStr, dayStr}
	var workerPh []string
	for _, w := range workers {
		workerPh = append(workerPh, "?")
		args = append(args, strings.ToLower(string(w)))
	}
	var actPh []string
	for _, a := range activities {
		actPh = append(actPh, "?")
		args = append(args, a)
	}

	query := fmt.Sprintf(`
		SELECT wc.code, a.description, w.full_name,
		       COALESCE(SUM(ad.duration_minutes), 0)
		FROM worker_codes wc
		JOIN workers w ON w.id = wc.worker_id
		JOIN activity_durations ad ON ad.worker_id = wc.worker_id AND ad.day = ?
		JOIN activities a ON a.id = ad.activity_id
		WHERE wc.valid_from <= ad.day
		  AND ? <= COALESCE(wc.valid_to, '9999-12-31')
		  AND LOWER(wc.code) IN (%s)
		  AND a.description IN (%s)
		GROUP BY wc.code, a.description, w.full_name`,
		strings.Join(workerPh, ", "), strings.Join(actPh, ", "))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("time source query for %s: %w", dayStr, err)
	}
	defer rows.Close()

	out := map[recon.Key]recon.ExternalDuration{}
	for rows.Next() {
		var (
			code, activity, name string
			minutes              float64
		)
		if err := rows.Scan(&code, &activity, &name, &minutes); err != nil {
			return nil, err
		}
		key := recon.NewKey(engine.WorkerCode(code), activity, day)
		dur := out[key]
		dur.Minutes = dur.Minutes.Add(decimal.NewFromFloat(minutes))
		dur.DisplayName = name
		out[key] = dur
	}
	return out, rows.Err()
}
