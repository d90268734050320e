package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/queue.report/internal/db"
	"github.com/banshee-data/queue.report/internal/occupancy"
	"github.com/banshee-data/queue.report/internal/queue"
	"github.com/banshee-data/queue.report/internal/report"
	"github.com/banshee-data/queue.report/internal/timeutil"
)

const shop = "shop"

var now = time.Date(2024, 6, 3, 12, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, store report.Store) *Server {
	t.Helper()
	return NewServer(&report.Service{
		Store:      store,
		LocationID: shop,
		Location:   time.UTC,
		Thresholds: queue.DefaultThresholds(),
		Clock:      timeutil.NewMockClock(now),
	}, nil)
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func seed(t *testing.T, d *db.DB) {
	t.Helper()
	ctx := context.Background()
	for i, c := range []int{1, 4, 6, 7, 6, 2} {
		require.NoError(t, d.InsertSample(ctx, occupancy.Sample{
			LocationID: shop, Time: now.Add(time.Duration(i-6) * time.Minute), Count: c,
		}))
	}
	start := now.Add(-26 * time.Hour)
	id, err := d.CreateEvent(ctx, shop, start, 7, 3, 3)
	require.NoError(t, err)
	require.NoError(t, d.CloseEvent(ctx, id, start.Add(25*time.Minute), queue.ReasonDrained))
}

type envelope struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data"`
	Error        string          `json:"error"`
	EstimateNote string          `json:"estimate_note"`
}

func do(t *testing.T, h http.Handler, method, target string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w.Code, env
}

func TestRoutesServeReports(t *testing.T) {
	d := newTestDB(t)
	seed(t, d)
	mux := newTestServer(t, d).ServeMux()

	for _, target := range []string{
		"/api/health",
		"/api/status/latest",
		"/api/status/history?limit=10",
		"/api/stats/count",
		"/api/stats/daily?days=7",
		"/api/stats/hourly?date=2024-06-03",
		"/api/stats/weekly-hourly",
		"/api/queue/current",
		"/api/queue/daily?days=3",
		"/api/queue/history",
		"/api/queue/stacks",
		"/api/queue/heatmap?days=2",
		"/api/dashboard/current",
	} {
		code, env := do(t, mux, http.MethodGet, target)
		if assert.Equal(t, http.StatusOK, code, target) {
			assert.True(t, env.Success, target)
			assert.Empty(t, env.Error, target)
		}
	}
}

func TestLatestAndQueueHistoryPayloads(t *testing.T) {
	d := newTestDB(t)
	seed(t, d)
	mux := newTestServer(t, d).ServeMux()

	_, env := do(t, mux, http.MethodGet, "/api/status/latest")
	var latest report.Latest
	require.NoError(t, json.Unmarshal(env.Data, &latest))
	assert.True(t, latest.Recorded)
	assert.Equal(t, 2, latest.Count)
	assert.Equal(t, occupancy.SlightlyBusy, latest.Status)

	_, env = do(t, mux, http.MethodGet, "/api/queue/history?limit=5")
	var hist []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, 25.0, hist[0]["duration_minutes"])
	assert.Equal(t, 2.0, hist[0]["refills"])
	assert.Equal(t, "drained", hist[0]["close_reason"])

	assert.Equal(t, queue.EstimateNote, env.EstimateNote)

	_, env = do(t, mux, http.MethodGet, "/api/stats/count")
	assert.JSONEq(t, `{"records":6}`, string(env.Data))
	assert.Empty(t, env.EstimateNote)
}

func TestBadParametersReturn400(t *testing.T) {
	mux := newTestServer(t, newTestDB(t)).ServeMux()
	for _, target := range []string{
		"/api/stats/daily?days=0",
		"/api/stats/daily?days=abc",
		"/api/stats/hourly?date=03-06-2024",
		"/api/queue/daily?days=91",
		"/api/queue/history?limit=0",
		"/api/status/history?limit=1001",
		"/api/queue/heatmap?days=-1",
		"/api/dashboard/current?days=1000",
	} {
		code, env := do(t, mux, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, code, target)
		assert.False(t, env.Success, target)
		assert.NotEmpty(t, env.Error, target)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestServer(t, newTestDB(t)).ServeMux()
	code, env := do(t, mux, http.MethodPost, "/api/queue/current")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.False(t, env.Success)
}

type failingStore struct{ report.Store }

var errStoreDown = errors.New("store down")

func (failingStore) LatestSample(context.Context, string) (*occupancy.Sample, error) {
	return nil, errStoreDown
}

func (failingStore) ClosedEventsSince(context.Context, string, time.Time) ([]queue.Event, error) {
	return nil, errStoreDown
}

func TestStoreFailureReturns500(t *testing.T) {
	mux := newTestServer(t, failingStore{}).ServeMux()
	for _, target := range []string{"/api/status/latest", "/api/queue/daily", "/api/queue/current"} {
		code, env := do(t, mux, http.MethodGet, target)
		assert.Equal(t, http.StatusInternalServerError, code, target)
		assert.NotContains(t, env.Error, "store down", target)
	}
}

func TestEventsRouteOnlyWithHandler(t *testing.T) {
	mux := newTestServer(t, newTestDB(t)).ServeMux()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Contains(t, statusCodeColor(http.StatusTeapot), "418")
	assert.Contains(t, statusCodeColor(http.StatusOK), "200")
}

func TestHeatmapChartRendersHTML(t *testing.T) {
	d := newTestDB(t)
	seed(t, d)
	s := newTestServer(t, d)

	w := httptest.NewRecorder()
	s.handleHeatmapChart(w, httptest.NewRequest(http.MethodGet, "/debug/heatmap?days=3", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(w.Body.String(), "echarts"))

	w = httptest.NewRecorder()
	s.handleHeatmapChart(w, httptest.NewRequest(http.MethodGet, "/debug/heatmap?days=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOccupancyPlotRendersPNG(t *testing.T) {
	d := newTestDB(t)
	seed(t, d)
	s := newTestServer(t, d)

	w := httptest.NewRecorder()
	s.handleOccupancyPlot(w, httptest.NewRequest(http.MethodGet, "/debug/occupancy.png", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}
