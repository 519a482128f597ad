package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObservePage("success", time.Second)
	m.AddRecords(3)
	m.IncRetries()
	m.IncError("TIMEOUT")
	m.IncSessions()
	m.Snapshot(10)
	m.IncAPI("200")
	m.IncAsset("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil handler status = %d", rec.Code)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObservePage("success", 2*time.Second)
	m.ObservePage("success", time.Second)
	m.ObservePage("failed", time.Second)
	m.AddRecords(100)
	m.IncError("NOT_FOUND")
	m.Snapshot(42)
	m.Snapshot(50)

	if got := testutil.ToFloat64(m.PagesTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("pages success = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsTotal); got != 100 {
		t.Errorf("records = %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("NOT_FOUND")); got != 1 {
		t.Errorf("errors = %v", got)
	}
	if got := testutil.ToFloat64(m.SnapshotsTotal); got != 2 {
		t.Errorf("snapshots = %v", got)
	}
	if got := testutil.ToFloat64(m.Accumulated); got != 50 {
		t.Errorf("accumulated = %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.IncSessions()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "marketscrape_sessions_opened_total 1") {
		t.Errorf("sessions counter missing from exposition:\n%s", body)
	}
}
