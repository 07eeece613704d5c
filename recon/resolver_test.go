package recon_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/engine"
	"github.com/warp/recon-engine/recon"
)

// recordingSource counts queries per day and serves a fixed result set.
type recordingSource struct {
	results map[recon.Key]recon.ExternalDuration
	days    []string
	err     error
}

func (r *recordingSource) ResolveDay(ctx context.Context, day engine.Day, workers []engine.WorkerCode, activities []string) (map[recon.Key]recon.ExternalDuration, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.days = append(r.days, day.String())
	out := map[recon.Key]recon.ExternalDuration{}
	for k, d := range r.results {
		if k.Day == day.String() {
			out[k] = d
		}
	}
	return out, nil
}

func TestResolveBatchesByDay(t *testing.T) {
	day1 := engine.NewDay(2026, 3, 2)
	day2 := engine.NewDay(2026, 3, 3)

	k1 := recon.NewKey("W01", "PICKING", day1)
	k2 := recon.NewKey("W02", "FORKLIFT", day1)
	k3 := recon.NewKey("W01", "PICKING", day2)

	src := &recordingSource{results: map[recon.Key]recon.ExternalDuration{
		k1: {Minutes: decimal.NewFromInt(60)},
		k3: {Minutes: decimal.NewFromInt(30)},
	}}

	res, err := recon.Resolve(context.Background(), src, []recon.Key{k1, k2, k3})
	require.NoError(t, err)

	// One query per distinct day, in day order, regardless of key count.
	assert.Equal(t, []string{"2026-03-02", "2026-03-03"}, src.days)

	assert.Len(t, res.Matched, 2)
	require.Len(t, res.Missing, 1)
	assert.Equal(t, k2, res.Missing[0])
	assert.True(t, res.IsMissing(k2))
	assert.False(t, res.IsMissing(k1))
}

func TestResolveWrapsSourceErrors(t *testing.T) {
	src := &recordingSource{err: errors.New("connection refused")}
	key := recon.NewKey("W01", "PICKING", engine.NewDay(2026, 3, 2))

	_, err := recon.Resolve(context.Background(), src, []recon.Key{key})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrExternalSource)
}

func TestResolveEmptyKeys(t *testing.T) {
	src := &recordingSource{}
	res, err := recon.Resolve(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Matched)
	assert.Empty(t, res.Missing)
	assert.Empty(t, src.days)
}
