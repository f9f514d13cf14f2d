package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/switchml/switchio/pkg/directory"
	"github.com/switchml/switchio/pkg/job"
	"github.com/switchml/switchio/pkg/node"
	"github.com/switchml/switchio/pkg/observability"
)

type fakeNode struct {
	mu   sync.Mutex
	jobs map[job.Key]*job.Job
}

func newFakeNode() *fakeNode {
	return &fakeNode{jobs: make(map[job.Key]*job.Job)}
}

func (f *fakeNode) Identity() node.Identity {
	return node.Identity{NodeID: 2, IP: "127.0.0.1", RxPort: 9000, TxPort: 9001, RPCAddr: "127.0.0.1:50051"}
}

func (f *fakeNode) Jobs() []job.Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []job.Progress
	for _, j := range f.jobs {
		out = append(out, j.Progress())
	}
	return out
}

func (f *fakeNode) ReceiveAsyncFrom(src uint16, jobID uint32, total, workers int) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := job.Key{JobID: jobID, NodeID: src}
	if _, ok := f.jobs[key]; ok {
		return nil, node.ErrJobExists
	}
	j, err := job.New(key, total, workers)
	if err != nil {
		return nil, err
	}
	f.jobs[key] = j
	return j, nil
}

func (f *fakeNode) ReleaseFrom(src uint16, jobID uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := job.Key{JobID: jobID, NodeID: src}
	if _, ok := f.jobs[key]; !ok {
		return false
	}
	delete(f.jobs, key)
	return true
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	return rec
}

func TestJobLifecycle(t *testing.T) {
	s := NewServer(newFakeNode(), observability.NewMetrics(), nil, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/jobs", `{"job_id": 7, "source_node_id": 1, "total": 10}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body %s", rec.Code, rec.Body)
	}
	var p job.Progress
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Key.JobID != 7 || p.Total != 10 || p.Workers != 1 {
		t.Errorf("progress = %+v", p)
	}

	if rec := do(t, s, http.MethodPost, "/api/v1/jobs", `{"job_id": 7, "source_node_id": 1, "total": 10}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate POST status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/jobs", `{"job_id": 8, "source_node_id": 1, "total": 0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("zero total POST status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/jobs", `{"job_id": 8, "source_node_id": 1, "total": 17179869184}`); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized total POST status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/jobs", `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON POST status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/jobs", "")
	var jobs []job.Progress
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil || len(jobs) != 1 {
		t.Fatalf("GET jobs = %s (%v)", rec.Body, err)
	}

	if rec := do(t, s, http.MethodDelete, "/api/v1/jobs/1/7", ""); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/v1/jobs/1/7", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/v1/jobs/70000/7", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("DELETE bad node id status = %d", rec.Code)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	m := observability.NewMetrics()
	m.IncStale()
	s := NewServer(newFakeNode(), m, nil, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/stats", "")
	var stats map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats["datagrams_stale"] != 1 {
		t.Errorf("stats = %v", stats)
	}

	rec = do(t, s, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "switchio_datagrams_stale_total 1") {
		t.Errorf("metrics body = %s", rec.Body)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/node", "")
	var id node.Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &id); err != nil || id.NodeID != 2 {
		t.Errorf("node = %s (%v)", rec.Body, err)
	}

	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, "/api/v1/stats", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT stats status = %d", rec.Code)
	}
}

func TestPeers(t *testing.T) {
	s := NewServer(newFakeNode(), observability.NewMetrics(), nil, nil)
	if rec := do(t, s, http.MethodGet, "/api/v1/peers", ""); rec.Code != http.StatusNotFound {
		t.Errorf("peers without directory status = %d", rec.Code)
	}

	dir := directory.NewMemoryDirectory()
	dir.Register(context.Background(), directory.Entry{NodeID: 4, IP: "10.0.0.4", RxPort: 9000, RPCAddr: "10.0.0.4:50051"})
	s = NewServer(newFakeNode(), observability.NewMetrics(), dir, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/peers", "")
	var peers []directory.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &peers); err != nil || len(peers) != 1 || peers[0].NodeID != 4 {
		t.Errorf("peers = %s (%v)", rec.Body, err)
	}
}
