package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.IP != "127.0.0.1" || cfg.Directory.Type != DirectoryStatic || cfg.OutputFormat != "table" {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
node:
  id: 3
  group: 2
  ip: 10.0.0.3
  iface: eth1
  rx_port: 7000
  tx_port: 7001
  rpc_addr: 10.0.0.3:6000
  speed_mbps: 1000
  pacing: true
  shutdown_timeout: 2s
peers:
  - node_id: 4
    ip: 10.0.0.4
    rx_port: 7000
    tx_port: 7001
    rpc_addr: 10.0.0.4:6000
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Node.ShutdownTimeout != 2*time.Second || !cfg.Node.Pacing {
		t.Errorf("node = %+v", cfg.Node)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0].RPCAddr != "10.0.0.4:6000" {
		t.Errorf("peers = %+v", cfg.Peers)
	}
	// Unset sections keep their defaults.
	if cfg.HTTP.Addr != Default().HTTP.Addr {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}

	id := cfg.Identity()
	if id.NodeID != 3 || id.GroupID != 2 || id.Iface != "eth1" || id.SpeedMbps != 1000 {
		t.Errorf("identity = %+v", id)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "node: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SWITCHIO_DIRECTORY", "etcd")
	t.Setenv("SWITCHIO_ETCD_ENDPOINTS", "http://a:2379,http://b:2379")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Directory.Type != DirectoryEtcd || len(cfg.Directory.Endpoints) != 2 {
		t.Errorf("directory = %+v", cfg.Directory)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing ip", func(c *Config) { c.Node.IP = "" }, "node.ip"},
		{"bad port", func(c *Config) { c.Node.RxPort = 70000 }, "out of range"},
		{"same ports", func(c *Config) { c.Node.TxPort = c.Node.RxPort }, "must differ"},
		{"unknown directory", func(c *Config) { c.Directory.Type = "consul" }, "directory.type"},
		{"etcd without endpoints", func(c *Config) { c.Directory.Type = DirectoryEtcd }, "endpoints"},
		{"negative max segments", func(c *Config) { c.Node.MaxSegments = -1 }, "node.max_segments"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"peer clashes with self", func(c *Config) {
			c.Peers = append(c.Peers, Default().Identity().Entry())
		}, "more than once"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
