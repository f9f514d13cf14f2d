package output

import (
	"strings"
	"testing"
)

type peerRow struct {
	NodeID  uint16 `table:"NODE"`
	RPCAddr string `table:"RPC"`
	secret  string
	Skipped string `table:"-"`
}

func TestTableSliceUsesTags(t *testing.T) {
	out := NewFormatter("table").Format([]peerRow{
		{NodeID: 2, RPCAddr: "10.0.0.2:50051", secret: "x", Skipped: "hidden"},
		{NodeID: 3, RPCAddr: "10.0.0.3:50051"},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "NODE") || !strings.Contains(lines[0], "RPC") {
		t.Errorf("header = %q", lines[0])
	}
	if strings.Contains(out, "hidden") || strings.Contains(out, "SKIPPED") {
		t.Errorf("skipped column rendered:\n%s", out)
	}
	if !strings.Contains(lines[1], "10.0.0.2:50051") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestTableEmptySlice(t *testing.T) {
	if got := NewFormatter("").Format([]peerRow{}); got != "No resources found.\n" {
		t.Errorf("got %q", got)
	}
}

func TestTableMapSorted(t *testing.T) {
	out := TableFormatter{}.Format(map[string]int64{"b_total": 2, "a_total": 1})
	if strings.Index(out, "a_total") > strings.Index(out, "b_total") {
		t.Errorf("keys not sorted:\n%s", out)
	}
}

func TestTableStruct(t *testing.T) {
	out := TableFormatter{}.Format(&peerRow{NodeID: 9, RPCAddr: "x:1"})
	if !strings.Contains(out, "NODE:") || !strings.Contains(out, "9") {
		t.Errorf("got:\n%s", out)
	}
}

func TestJSONAndYAML(t *testing.T) {
	data := map[string]int{"jobs_active": 1}
	if got := NewFormatter("JSON").Format(data); !strings.Contains(got, `"jobs_active": 1`) {
		t.Errorf("json = %q", got)
	}
	if got := NewFormatter("yaml").Format(data); got != "jobs_active: 1\n" {
		t.Errorf("yaml = %q", got)
	}
}
