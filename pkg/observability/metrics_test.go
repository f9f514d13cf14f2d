package observability

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounters(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncDatagram()
			m.IncSegment()
		}()
	}
	wg.Wait()
	m.IncJobStarted()
	m.IncJobStarted()
	m.DecJobActive()
	m.AddRetransmitted(2)
	m.AddSent(3, 3000)

	snap := m.GetMetrics()
	want := map[string]int64{
		"datagrams_received":     50,
		"segments_recorded":      50,
		"jobs_started":           2,
		"jobs_active":            1,
		"segments_retransmitted": 2,
		"packets_sent":           3,
		"bytes_sent":             3000,
	}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("%s = %d, want %d", k, snap[k], v)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncDatagram()
	m.ObserveRetransmit(time.Millisecond)
	if len(m.GetMetrics()) != 0 {
		t.Error("nil Metrics returned counters")
	}
}

func TestLatencyWindowWraps(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < latencyWindow+10; i++ {
		m.ObserveRetransmit(time.Duration(i))
	}
	snap := m.LatencySnapshot()
	if len(snap) != latencyWindow {
		t.Fatalf("window size = %d, want %d", len(snap), latencyWindow)
	}
	for _, d := range snap[:10] {
		if d < latencyWindow {
			t.Fatalf("oldest entries not overwritten: found %d", d)
		}
	}
}

func TestPrometheusHandler(t *testing.T) {
	m := NewMetrics()
	m.IncMalformed()
	m.ObserveRetransmit(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.PrometheusHandler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"switchio_datagrams_malformed_total 1",
		"# TYPE switchio_jobs_active gauge",
		"switchio_retransmit_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
