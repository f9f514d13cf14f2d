package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/switchml/switchio/pkg/job"
)

func nodeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]job.Progress{{
			Key: job.Key{JobID: 7, NodeID: 2}, Total: 10, Received: 8, Workers: 1, LossRatio: 0.2,
		}})
	})
	mux.HandleFunc("/api/v1/stats", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]int64{"segments_recorded": 8})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := nodeAPI(t)
	msg := New(srv.URL + "/").fetch()()
	d, ok := msg.(dataMsg)
	if !ok {
		t.Fatalf("fetch returned %T (%v), want dataMsg", msg, msg)
	}
	if len(d.jobs) != 1 || d.jobs[0].Key != (job.Key{JobID: 7, NodeID: 2}) {
		t.Errorf("jobs = %+v", d.jobs)
	}
	if d.counters["segments_recorded"] != 8 {
		t.Errorf("counters = %v", d.counters)
	}
}

func TestFetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, ok := New(srv.URL).fetch()().(errMsg); !ok {
		t.Error("fetch against 404 did not return errMsg")
	}
}

func TestUpdateAndView(t *testing.T) {
	var m tea.Model = New("http://node")
	if got := m.View(); got != "Loading…" {
		t.Errorf("View before size = %q", got)
	}
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m, _ = m.Update(dataMsg{
		jobs:     []job.Progress{{Key: job.Key{JobID: 7, NodeID: 2}, Total: 10, Received: 8, Workers: 1, LossRatio: 0.2}},
		counters: map[string]int64{"jobs_active": 1},
	})

	view := m.View()
	for _, want := range []string{"Jobs", "2/7", "8/10", "20.0%"} {
		if !strings.Contains(view, want) {
			t.Errorf("jobs view missing %q:\n%s", want, view)
		}
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if view := m.View(); !strings.Contains(view, "jobs_active") {
		t.Errorf("counters view missing jobs_active:\n%s", view)
	}

	m, _ = m.Update(errMsg(http.ErrHandlerTimeout))
	if view := m.View(); !strings.Contains(view, "Error:") {
		t.Errorf("error not shown:\n%s", view)
	}
}

func TestQuit(t *testing.T) {
	_, cmd := New("http://node").Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ab", 4); got != "ab" {
		t.Errorf("truncate = %q", got)
	}
}
