// Package config loads the switchio YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/switchml/switchio/pkg/directory"
	"github.com/switchml/switchio/pkg/job"
	"github.com/switchml/switchio/pkg/node"
)

// Directory backends.
const (
	DirectoryStatic = "static"
	DirectoryEtcd   = "etcd"
)

// Config holds the switchio configuration.
type Config struct {
	Node      NodeConfig        `yaml:"node" json:"node"`
	Peers     []directory.Entry `yaml:"peers" json:"peers"`
	Directory DirectoryConfig   `yaml:"directory" json:"directory"`
	HTTP      HTTPConfig        `yaml:"http" json:"http"`
	Log       LogConfig         `yaml:"log" json:"log"`
	// OutputFormat is the default CLI output format: table, json or yaml.
	OutputFormat string `yaml:"output_format" json:"output_format"`
}

// NodeConfig describes the local node.
type NodeConfig struct {
	ID              uint16        `yaml:"id" json:"id"`
	Group           uint16        `yaml:"group" json:"group"`
	IP              string        `yaml:"ip" json:"ip"`
	Iface           string        `yaml:"iface" json:"iface"`
	RxPort          int           `yaml:"rx_port" json:"rx_port"`
	TxPort          int           `yaml:"tx_port" json:"tx_port"`
	RPCAddr         string        `yaml:"rpc_addr" json:"rpc_addr"`
	SpeedMbps       int           `yaml:"speed_mbps" json:"speed_mbps"`
	Pacing          bool          `yaml:"pacing" json:"pacing"`
	ReadBatch       int           `yaml:"read_batch" json:"read_batch"`
	SocketBuffer    int           `yaml:"socket_buffer" json:"socket_buffer"`
	MaxSegments     int           `yaml:"max_segments" json:"max_segments"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DirectoryConfig selects where peers are looked up.
type DirectoryConfig struct {
	Type      string   `yaml:"type" json:"type"`
	Endpoints []string `yaml:"endpoints" json:"endpoints"`
	LeaseTTL  int64    `yaml:"lease_ttl" json:"lease_ttl"`
}

// HTTPConfig configures the node API and metrics listener. An empty address
// disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// DefaultPath returns the default config file path: ~/.switchio/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".switchio", "config.yaml")
	}
	return filepath.Join(home, ".switchio", "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:              1,
			IP:              "127.0.0.1",
			RxPort:          9000,
			TxPort:          9001,
			RPCAddr:         "127.0.0.1:50051",
			SpeedMbps:       node.DefaultSpeedMbps,
			MaxSegments:     node.DefaultMaxSegments,
			ShutdownTimeout: 5 * time.Second,
		},
		Directory: DirectoryConfig{
			Type:     DirectoryStatic,
			LeaseTTL: 30,
		},
		HTTP:         HTTPConfig{Addr: "127.0.0.1:9102"},
		Log:          LogConfig{Level: "info", Format: "console"},
		OutputFormat: "table",
	}
}

// Load reads the configuration from the given YAML file path and applies
// environment overrides. If the file does not exist, it returns the default
// Config with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	info, err := os.Stat(path)
	switch {
	case err == nil:
		// Warn if the file is writable by others: it decides which peers
		// this node trusts with its data.
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			fmt.Fprintf(os.Stderr,
				"warning: config file %s has permissions %04o, expected 0644 or stricter.\n",
				path, perm)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SWITCHIO_DIRECTORY"); v != "" {
		cfg.Directory.Type = v
	}
	if v := os.Getenv("SWITCHIO_ETCD_ENDPOINTS"); v != "" {
		cfg.Directory.Endpoints = strings.Split(v, ",")
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Node.IP == "" {
		return fmt.Errorf("node.ip is required")
	}
	for name, port := range map[string]int{"node.rx_port": c.Node.RxPort, "node.tx_port": c.Node.TxPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s %d out of range", name, port)
		}
	}
	if c.Node.RxPort != 0 && c.Node.RxPort == c.Node.TxPort {
		return fmt.Errorf("node.rx_port and node.tx_port must differ")
	}
	if c.Node.SpeedMbps < 0 {
		return fmt.Errorf("node.speed_mbps must not be negative")
	}
	if c.Node.MaxSegments < 0 || uint64(c.Node.MaxSegments) > job.MaxTotal {
		return fmt.Errorf("node.max_segments %d out of range [0, %d]", c.Node.MaxSegments, uint64(job.MaxTotal))
	}

	switch c.Directory.Type {
	case DirectoryStatic, "":
	case DirectoryEtcd:
		if len(c.Directory.Endpoints) == 0 {
			return fmt.Errorf("directory.endpoints is required for the etcd directory")
		}
	default:
		return fmt.Errorf("unknown directory.type %q (want %s or %s)", c.Directory.Type, DirectoryStatic, DirectoryEtcd)
	}

	seen := map[uint16]bool{c.Node.ID: true}
	for _, p := range c.Peers {
		if seen[p.NodeID] {
			return fmt.Errorf("peer node id %d is used more than once", p.NodeID)
		}
		seen[p.NodeID] = true
		if err := p.Validate(); err != nil {
			return fmt.Errorf("peers: %w", err)
		}
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log.format %q (want console or json)", c.Log.Format)
	}
	return nil
}

// Identity converts the node section to a node identity.
func (c *Config) Identity() node.Identity {
	return node.Identity{
		NodeID:    c.Node.ID,
		GroupID:   c.Node.Group,
		IP:        c.Node.IP,
		Iface:     c.Node.Iface,
		RxPort:    c.Node.RxPort,
		TxPort:    c.Node.TxPort,
		RPCAddr:   c.Node.RPCAddr,
		SpeedMbps: c.Node.SpeedMbps,
	}
}
