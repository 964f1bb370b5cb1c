package metrics

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/webprobe/internal/probe"
	"github.com/ibeckermayer/webprobe/internal/store"
)

func report(id string, header probe.Outcome) *probe.Report {
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	return &probe.Report{
		ID:         id,
		URL:        "http://localhost:8000/web/index.html",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Checks: []probe.CheckResult{
			{Name: "Header", Selector: "header", Outcome: header},
			{Name: "Message input", Selector: "#message-input", Outcome: probe.Passed},
		},
	}
}

func TestObserve(t *testing.T) {
	m := New()
	assert.Nil(t, m.Latest())

	m.Observe(report("run-1", probe.Passed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lastSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkVisible.WithLabelValues("Header")))

	r := report("run-2", probe.Failed)
	m.Observe(r)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.lastSuccess))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.checkVisible.WithLabelValues("Header")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkFailures.WithLabelValues("Header")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("failed")))
	assert.Equal(t, float64(r.FinishedAt.Unix()), testutil.ToFloat64(m.lastRun))
	assert.Same(t, r, m.Latest())
}

func TestObserveSkippedChecks(t *testing.T) {
	m := New()
	r := report("run-1", probe.Skipped)
	r.Checks[1].Outcome = probe.Skipped
	r.Error = "navigate: target unreachable"

	m.Observe(r)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.checkVisible.WithLabelValues("Message input")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.checkFailures), "skipped checks are not failures")
}

func newTestServer(t *testing.T, withHistory bool) (*Server, *Metrics, *store.Store) {
	t.Helper()
	m := New()
	logger, _ := logtest.NewNullLogger()

	var h *store.Store
	if withHistory {
		var err error
		h, err = store.New(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { h.Close() })
	}
	return NewServer(m, h, logger), m, h
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter(t *testing.T) {
	s, m, h := newTestServer(t, true)
	router := s.Router()

	rec := get(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/latest").Code)

	r := report("run-1", probe.Failed)
	m.Observe(r)
	require.NoError(t, h.SaveReport(r))

	rec = get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `webprobe_runs_total{status="failed"} 1`)
	assert.Contains(t, rec.Body.String(), `webprobe_check_visible{check="Header"} 0`)

	rec = get(t, router, "/api/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest probe.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, "run-1", latest.ID)

	rec = get(t, router, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, probe.StatusFailed, runs[0].Status)

	rec = get(t, router, "/api/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome": "failed"`)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/nope").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/runs?limit=-1").Code)
}

func TestRouterWithoutHistory(t *testing.T) {
	s, _, _ := newTestServer(t, false)
	router := s.Router()

	rec := get(t, router, "/api/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "history is disabled")
}

func TestServeShutsDownWithContext(t *testing.T) {
	s, _, _ := newTestServer(t, false)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(string(body)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
