package httpadapter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/gas-leak-monitor/internal/adapter/httpadapter"
	"github.com/couchcryptid/gas-leak-monitor/internal/aggregate"
	"github.com/couchcryptid/gas-leak-monitor/internal/detector"
	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
	"github.com/couchcryptid/gas-leak-monitor/internal/monitor"
	"github.com/couchcryptid/gas-leak-monitor/internal/observability"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*monitor.Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.November, 4, 9, 0, 0, 0, time.UTC))
	n := 0
	svc := monitor.New(detector.DefaultPolicy, discardLogger(), observability.NewMetricsForTesting(),
		monitor.WithClock(clock),
		monitor.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("alert-%d", n)
		}),
	)
	return svc, clock
}

func newTestServer(t *testing.T, readyErr error) (*httpadapter.Server, *monitor.Service, *clockwork.FakeClock) {
	t.Helper()
	svc, clock := newTestService(t)
	srv := httpadapter.NewServer(":0", svc, &mockReadiness{err: readyErr}, nil, discardLogger())
	return srv, svc, clock
}

func do(t *testing.T, srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

const eindhovenReadings = `[
	{"zone_id":"Strijp","flow_rate":1240,"pressure":4.21,"total_consumption":52340},
	{"zone_id":"Tongelre","flow_rate":1150,"pressure":3.2,"total_consumption":58920},
	{"zone_id":"Gestel","flow_rate":1065,"pressure":2.9,"total_consumption":50780}
]`

func TestHealthzReturns200(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv, _, _ := newTestServer(t, fmt.Errorf("not ready yet"))
	rec := do(t, srv, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestIngestAndReadReadings(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/v1/readings", eindhovenReadings)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[map[string]int](t, rec)["accepted"])

	rec = do(t, srv, http.MethodPost, "/api/v1/readings", `{"zone_id":"Woensel","flow_rate":1385,"pressure":4.34}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/readings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	readings := decode[[]domain.Reading](t, rec)
	require.Len(t, readings, 4)
	assert.Equal(t, "Gestel", readings[0].ZoneID)

	rec = do(t, srv, http.MethodGet, "/api/v1/readings/Tongelre", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tongelre := decode[domain.Reading](t, rec)
	assert.False(t, tongelre.IsNormal)

	rec = do(t, srv, http.MethodGet, "/api/v1/readings/Meerhoven", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestRejectsInvalidBatch(t *testing.T) {
	srv, svc, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"zone_id":`},
		{"empty array", `[]`},
		{"missing pressure", `{"zone_id":"Strijp","flow_rate":10}`},
		{"negative flow in batch", `[{"zone_id":"Strijp","flow_rate":10,"pressure":4},{"zone_id":"Gestel","flow_rate":-1,"pressure":4}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/v1/readings", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, svc.GetAllCurrentUsage())
}

func TestScanResolveLifecycle(t *testing.T) {
	srv, _, clock := newTestServer(t, nil)
	require.Equal(t, http.StatusAccepted, do(t, srv, http.MethodPost, "/api/v1/readings", eindhovenReadings).Code)

	rec := do(t, srv, http.MethodPost, "/api/v1/scan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	scan := decode[map[string]any](t, rec)
	assert.Equal(t, true, scan["created"])
	assert.InDelta(t, 2.0, scan["active_alerts"], 1e-9)

	rec = do(t, srv, http.MethodGet, "/api/v1/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[[]domain.Alert](t, rec)
	require.Len(t, active, 2)
	assert.Equal(t, "Gestel", active[0].ZoneID)
	assert.Equal(t, domain.SeverityCritical, active[0].Severity)
	assert.Equal(t, "Tongelre", active[1].ZoneID)

	rec = do(t, srv, http.MethodGet, "/api/v1/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, aggregate.StatusCritical, decode[aggregate.Summary](t, rec).OverallStatus)

	clock.Advance(time.Hour)
	rec = do(t, srv, http.MethodPost, "/api/v1/alerts/"+active[0].ID+"/resolve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[domain.Alert](t, rec)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)

	rec = do(t, srv, http.MethodPost, "/api/v1/alerts/"+active[0].ID+"/resolve", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/alerts/missing/resolve", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/alerts/"+active[1].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tongelre", decode[domain.Alert](t, rec).ZoneID)

	// Gestel is still low, so a new scan raises a second Gestel alert.
	clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/v1/scan", "").Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/alerts?status=all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]domain.Alert](t, rec)
	require.Len(t, all, 3)
	assert.Equal(t, "Gestel", all[0].ZoneID)
	assert.False(t, all[0].IsResolved)
	assert.True(t, all[0].DetectedAt.After(all[2].DetectedAt))
}

func TestListAlertsUnknownStatus(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/v1/alerts?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingMonitor struct {
	httpadapter.Monitor
}

func (failingMonitor) CheckForLeaks(context.Context) (bool, error) {
	return false, fmt.Errorf("journal: %w", context.DeadlineExceeded)
}

func TestScanFailureReportsUnavailable(t *testing.T) {
	srv := httpadapter.NewServer(":0", failingMonitor{}, &mockReadiness{}, nil, discardLogger())
	rec := do(t, srv, http.MethodPost, "/api/v1/scan", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "data unavailable", decode[map[string]string](t, rec)["error"])
}

func TestLiveFeedRoute(t *testing.T) {
	svc, _ := newTestService(t)
	live := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httpadapter.NewServer(":0", svc, &mockReadiness{}, live, discardLogger())

	assert.Equal(t, http.StatusTeapot, do(t, srv, http.MethodGet, "/ws/alerts", "").Code)
}
