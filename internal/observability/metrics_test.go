package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("ok")
	m.ObservePage("http", false, time.Second)
	m.ObserveImage("fetched")
	if snap, err := m.Snapshot(); err != nil || snap != nil {
		t.Errorf("nil snapshot = %v, %v", snap, err)
	}
}

func TestSnapshotSumsLabels(t *testing.T) {
	m := NewMetrics(testLogger())
	m.ObserveAttempt("ok")
	m.ObserveAttempt("ok")
	m.ObserveAttempt("soft_block")
	m.ObserveImage("cached")

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got := snap["cosmerank_fetch_attempts_total"]; got != 3 {
		t.Errorf("attempts = %v, want 3", got)
	}
	if got := snap["cosmerank_images_total"]; got != 1 {
		t.Errorf("images = %v, want 1", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := NewMetrics(testLogger())
	m.ObserveRecord("grouped")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `cosmerank_records_total{kind="grouped"} 1`) {
		t.Errorf("exposition missing records counter:\n%s", body)
	}
}
