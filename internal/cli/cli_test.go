package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/switchml/switchio/pkg/node"
)

// resetFlags clears flag variables left over from earlier executions of the
// shared root command.
func resetFlags() {
	cfgFile, outputFormat, logLevel = "", "", ""
	peersWatch = false
	sendSkip = nil
	sendBypass = false
	sendSegments, sendTimeout = 1, 30*time.Second
	recvSegments, recvWorkers, recvTimeout = 1, 1, 0
	dashboardServer = ""
}

func executeCommand(ctx context.Context, args ...string) (string, error) {
	resetFlags()
	buf := new(bytes.Buffer)
	root := RootCmd()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	// Subcommands keep the context of their first execution otherwise.
	for _, c := range root.Commands() {
		c.SetContext(ctx)
	}
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const quietLog = "log:\n  level: error\n  format: console\n"

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(context.Background(), "version", "--config", writeConfig(t, quietLog))
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{"switchio version", "switchio.control.v1.SwitchIO", "256 x FLOAT32"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPeersCommand(t *testing.T) {
	path := writeConfig(t, quietLog+`
peers:
  - node_id: 3
    ip: 10.0.0.3
    rx_port: 9000
    rpc_addr: 10.0.0.3:50051
  - node_id: 2
    ip: 10.0.0.2
    rx_port: 9000
    rpc_addr: 10.0.0.2:50051
`)
	out, err := executeCommand(context.Background(), "peers", "--config", path)
	if err != nil {
		t.Fatalf("peers: %v", err)
	}
	if !strings.Contains(out, "NODE") || strings.Index(out, "10.0.0.2:9000") > strings.Index(out, "10.0.0.3:9000") {
		t.Errorf("unexpected table:\n%s", out)
	}

	out, err = executeCommand(context.Background(), "peers", "--config", path, "-o", "json")
	if err != nil {
		t.Fatalf("peers -o json: %v", err)
	}
	var rows []PeerRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 2 || rows[0].NodeID != 2 || rows[1].RPC != "10.0.0.3:50051" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestPeersWatchNeedsEtcd(t *testing.T) {
	_, err := executeCommand(context.Background(), "peers", "--watch", "--config", writeConfig(t, quietLog))
	if err == nil || !strings.Contains(err.Error(), "etcd") {
		t.Errorf("got %v, want etcd error", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	_, err := executeCommand(context.Background(), "version", "--config", writeConfig(t, "log:\n  level: loud\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("got %v, want invalid config error", err)
	}
}

func startReceiver(t *testing.T) *node.Local {
	t.Helper()
	n, err := node.NewLocal(node.Identity{NodeID: 2, IP: "127.0.0.1", RPCAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return n
}

func senderConfig(t *testing.T, receiver node.Identity) string {
	return writeConfig(t, fmt.Sprintf(`%snode:
  id: 5
  ip: 127.0.0.1
peers:
  - node_id: %d
    ip: 127.0.0.1
    rx_port: %d
    rpc_addr: %s
`, quietLog, receiver.NodeID, receiver.RxPort, receiver.RPCAddr))
}

func TestSendRecoversSkippedSegments(t *testing.T) {
	rx := startReceiver(t)
	j, err := rx.ReceiveAsyncFrom(5, 9, 4, 1)
	if err != nil {
		t.Fatalf("ReceiveAsyncFrom: %v", err)
	}

	out, err := executeCommand(context.Background(), "send",
		"--config", senderConfig(t, rx.Identity()),
		"--to", "2", "--job", "9", "--segments", "4", "--value", "10", "--skip", "1,2", "-o", "json")
	if err != nil {
		t.Fatalf("send: %v\n%s", err, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := j.Wait(ctx); err != nil {
		t.Fatalf("job not complete after send: %v (received %d)", err, j.Received())
	}
	segs := j.Segments()
	for i, s := range segs {
		if s[0] != float32(10+i) {
			t.Errorf("segment %d = %v, want %d", i, s[0], 10+i)
		}
	}

	var res SendResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.JobID != 9 || res.Peer != 2 || res.Segments != 4 || res.Skipped != 2 || res.PacketsOut != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestSendUntrackedJob(t *testing.T) {
	rx := startReceiver(t)
	_, err := executeCommand(context.Background(), "send",
		"--config", senderConfig(t, rx.Identity()),
		"--to", "2", "--job", "77", "--segments", "2")
	if !errors.Is(err, node.ErrPeerJobUnknown) {
		t.Errorf("got %v, want ErrPeerJobUnknown", err)
	}
}

func TestSendRejectsBadSkip(t *testing.T) {
	_, err := executeCommand(context.Background(), "send", "--config", writeConfig(t, quietLog),
		"--to", "2", "--job", "1", "--segments", "2", "--skip", "2")
	if err == nil || !strings.Contains(err.Error(), "--skip") {
		t.Errorf("got %v, want --skip error", err)
	}
}

func ephemeralNodeConfig(t *testing.T, extra string) string {
	return writeConfig(t, quietLog+`node:
  id: 2
  ip: 127.0.0.1
  rx_port: 0
  tx_port: 0
  rpc_addr: 127.0.0.1:0
`+extra)
}

func TestRecvReportsPartialOnTimeout(t *testing.T) {
	out, err := executeCommand(context.Background(), "recv", "--config", ephemeralNodeConfig(t, ""),
		"--from", "5", "--job", "1", "--segments", "2", "--timeout", "100ms", "-o", "json")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
	var res RecvResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Received != 0 || res.Expected != 2 || res.LossRatio != 1 || res.Complete {
		t.Errorf("result = %+v", res)
	}
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out, err := executeCommand(ctx, "serve", "--config", ephemeralNodeConfig(t, "http:\n  addr: 127.0.0.1:0\n"))
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !strings.Contains(out, "node 2 serving") || !strings.Contains(out, "http api on 127.0.0.1:") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCompletionCommand(t *testing.T) {
	out, err := executeCommand(context.Background(), "completion", "bash")
	if err != nil {
		t.Fatalf("completion bash: %v", err)
	}
	if !strings.Contains(out, "switchio") {
		t.Errorf("bash completion does not mention switchio:\n%.200s", out)
	}
	if _, err := executeCommand(context.Background(), "completion", "tcsh"); err == nil {
		t.Error("completion tcsh: want error")
	}
}
