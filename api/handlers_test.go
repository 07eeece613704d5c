package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/engine"
	"github.com/warp/recon-engine/recon"
	"github.com/warp/recon-engine/recon/store"
)

// stubSource resolves every requested key to a fixed duration.
type stubSource struct {
	minutes decimal.Decimal
}

func (s *stubSource) ResolveDay(ctx context.Context, day engine.Day, workers []engine.WorkerCode, activities []string) (map[recon.Key]recon.ExternalDuration, error) {
	out := map[recon.Key]recon.ExternalDuration{}
	for _, w := range workers {
		for _, a := range activities {
			out[recon.NewKey(w, a, day)] = recon.ExternalDuration{
				Minutes:     s.minutes,
				DisplayName: "Stub Worker",
			}
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, src recon.DurationSource) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	h := NewHandler(mem, &recon.Pipeline{Store: mem, Source: src})
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, mem
}

const movementCSV = `Data,Preparatore,Tipo,Ora inizio,Ora fine,Errore
20260302,,,,,
,W01,,,,
,,ST,06:00,06:10,
,,ST,06:12,06:22,
,,AP,06:24,06:28,
`

func TestImportMovementsEndpoint(t *testing.T) {
	srv, mem := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/movements/import?day=2026-03-02",
		"text/csv", strings.NewReader(movementCSV))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result ImportResultDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 3, result.RawRows)
	assert.Equal(t, 1, result.WorkerDays)
	assert.Equal(t, 3, result.SessionRows)

	day, _ := engine.ParseDay("2026-03-02")
	rows, err := mem.SessionRows(context.Background(), day, day, "W01")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestImportMovementsRejectsGarbage(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/movements/import", "text/csv",
		strings.NewReader("not,a,movement\nlog,at,all\n"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProductionRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	body, _ := json.Marshal(UpsertProductionRequest{Records: []ProductionInput{
		{Day: "2026-03-02", Worker: "W01", Activity: "PICKING", Location: "A1", Units: 40},
		{Day: "2026-03-02", Worker: "W01", Activity: "PICKING", Location: "B2", Units: 60},
	}})
	resp, err := http.Post(srv.URL+"/api/production", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/production?from=2026-03-02&to=2026-03-02")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []ProductionDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)
	assert.Equal(t, "A1", records[0].Location)
	assert.Equal(t, 40, records[0].Units)
}

func TestProductionValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	body, _ := json.Marshal(UpsertProductionRequest{Records: []ProductionInput{
		{Day: "bogus", Worker: "W01", Activity: "PICKING", Units: 1},
	}})
	resp, err := http.Post(srv.URL+"/api/production", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconcileEndToEnd(t *testing.T) {
	srv, mem := newTestServer(t, &stubSource{minutes: decimal.NewFromInt(120)})
	ctx := context.Background()
	day, _ := engine.ParseDay("2026-03-02")

	require.NoError(t, mem.UpsertProduction(ctx, []recon.ProductionRecord{
		{Worker: "W01", Activity: recon.ActivityPicking, Day: day, Location: "A1", Units: 30},
		{Worker: "W01", Activity: recon.ActivityPicking, Day: day, Location: "B2", Units: 70},
	}))

	body, _ := json.Marshal(ReconcileRequest{From: "2026-03-02", To: "2026-03-02"})
	resp, err := http.Post(srv.URL+"/api/reconcile", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	runID := accepted["run_id"]
	require.NotEmpty(t, runID)

	// The pass runs asynchronously; poll until it completes.
	var run recon.Run
	require.Eventually(t, func() bool {
		r, err := mem.RunByID(ctx, runID)
		if err != nil {
			return false
		}
		run = r
		return run.Status == recon.RunCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, run.Keys)
	assert.Equal(t, 1, run.Matched)
	assert.Equal(t, 2, run.HourUpdates)

	// 120 min split 30/70 across locations.
	records, err := mem.ProductionByDays(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].ExternalHours.Equal(decimal.RequireFromString("0.6")),
		"got %s", records[0].ExternalHours)
	assert.True(t, records[1].ExternalHours.Equal(decimal.RequireFromString("1.4")),
		"got %s", records[1].ExternalHours)
}

func TestReconcileWithoutSource(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	body, _ := json.Marshal(ReconcileRequest{From: "2026-03-02", To: "2026-03-02"})
	resp, err := http.Post(srv.URL+"/api/reconcile", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAnomalyEndpoints(t *testing.T) {
	srv, mem := newTestServer(t, nil)
	ctx := context.Background()
	day, _ := engine.ParseDay("2026-03-02")

	require.NoError(t, mem.AppendAnomalies(ctx, []recon.Anomaly{{
		ID:        "a-1",
		Kind:      recon.AnomalyCodeNotMatched,
		Day:       day,
		Worker:    "W01",
		Status:    recon.StatusOpen,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}}))

	resp, err := http.Get(srv.URL + "/api/anomalies?status=OPEN")
	require.NoError(t, err)
	var list []AnomalyDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, "CODE_NOT_MATCHED", list[0].Kind)

	// Status transition
	body, _ := json.Marshal(UpdateAnomalyStatusRequest{Status: "VERIFIED", Note: "checked"})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/anomalies/a-1/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Invalid status
	body, _ = json.Marshal(UpdateAnomalyStatusRequest{Status: "NONSENSE"})
	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/api/anomalies/a-1/status", bytes.NewReader(body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Clear by day
	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/anomalies?day=2026-03-02", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cleared map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cleared))
	assert.Equal(t, 1, cleared["deleted"])
}

func TestSessionRowsRequiresRange(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
