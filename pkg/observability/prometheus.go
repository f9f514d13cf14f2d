package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

type series struct {
	key, name, kind, help string
}

var exported = []series{
	{"datagrams_received", "switchio_datagrams_received_total", "counter", "Datagrams read by the receive worker."},
	{"datagrams_malformed", "switchio_datagrams_malformed_total", "counter", "Datagrams dropped because they failed to decode."},
	{"datagrams_stale", "switchio_datagrams_stale_total", "counter", "Datagrams for jobs not tracked by this node."},
	{"segments_duplicate", "switchio_segments_duplicate_total", "counter", "Segments received more than once."},
	{"segments_recorded", "switchio_segments_recorded_total", "counter", "Distinct segments recorded from either channel."},
	{"segments_retransmitted", "switchio_segments_retransmitted_total", "counter", "Segments recorded through the control plane."},
	{"packets_sent", "switchio_packets_sent_total", "counter", "Datagrams written by the sender."},
	{"bytes_sent", "switchio_bytes_sent_total", "counter", "Bytes written by the sender."},
	{"jobs_started", "switchio_jobs_started_total", "counter", "Receive jobs begun."},
	{"jobs_completed", "switchio_jobs_completed_total", "counter", "Receive jobs that collected every segment."},
	{"jobs_active", "switchio_jobs_active", "gauge", "Jobs currently held in the session registry."},
	{"control_calls", "switchio_control_calls_total", "counter", "Control-plane calls handled."},
	{"control_errors", "switchio_control_errors_total", "counter", "Control-plane calls that returned an error."},
}

// PrometheusHandler returns an http.HandlerFunc that exports metrics in
// Prometheus text exposition format.
func (m *Metrics) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		m.WritePrometheus(w)
	}
}

// WritePrometheus writes every series to w.
func (m *Metrics) WritePrometheus(w io.Writer) {
	snap := m.GetMetrics()
	for _, s := range exported {
		fmt.Fprintf(w, "# HELP %s %s\n", s.name, s.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", s.name, s.kind)
		fmt.Fprintf(w, "%s %d\n\n", s.name, snap[s.key])
	}

	latencies := m.LatencySnapshot()
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		fmt.Fprintf(w, "# HELP switchio_retransmit_duration_seconds Check-and-retransmit round trip percentiles.\n")
		fmt.Fprintf(w, "# TYPE switchio_retransmit_duration_seconds summary\n")
		fmt.Fprintf(w, "switchio_retransmit_duration_seconds{quantile=\"0.5\"} %f\n", percentile(latencies, 0.5))
		fmt.Fprintf(w, "switchio_retransmit_duration_seconds{quantile=\"0.95\"} %f\n", percentile(latencies, 0.95))
		fmt.Fprintf(w, "switchio_retransmit_duration_seconds{quantile=\"0.99\"} %f\n", percentile(latencies, 0.99))
		fmt.Fprintf(w, "switchio_retransmit_duration_seconds_count %d\n\n", len(latencies))
	}
}

// percentile returns the p-th percentile value from sorted durations.
func percentile(sorted []time.Duration, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx].Seconds()
}
