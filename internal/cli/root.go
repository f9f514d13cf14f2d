// Package cli implements the switchio command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/switchml/switchio/internal/output"
	"github.com/switchml/switchio/pkg/config"
	"github.com/switchml/switchio/pkg/directory"
	"github.com/switchml/switchio/pkg/logging"
	"github.com/switchml/switchio/pkg/node"
	"github.com/switchml/switchio/pkg/observability"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string

	// set in PersistentPreRunE
	cfg       *config.Config
	logger    *zap.Logger
	formatter output.Formatter
)

var rootCmd = &cobra.Command{
	Use:   "switchio",
	Short: "switchio moves tensor segments between nodes over UDP with RPC-driven retransmission",
	Long: `switchio sends fixed-size float32 vectors between nodes as UDP datagrams,
optionally through an aggregating switch, and recovers lost segments over
a gRPC control plane.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if outputFormat != "" {
			cfg.OutputFormat = outputFormat
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", path, err)
		}
		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(cfg.OutputFormat)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// SetFormatter allows tests to inject a formatter.
func SetFormatter(f output.Formatter) {
	formatter = f
}

// RootCmd returns the root command for tests.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.switchio/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table, json, yaml (default \"table\")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// openDirectory returns the peer directory selected by the config.
func openDirectory(c *config.Config, log *zap.Logger) (directory.Directory, error) {
	switch c.Directory.Type {
	case config.DirectoryEtcd:
		return directory.NewEtcdDirectory(c.Directory.Endpoints,
			directory.WithLeaseTTL(c.Directory.LeaseTTL),
			directory.WithEtcdLogger(log))
	default:
		return directory.NewMemoryDirectory(c.Peers...), nil
	}
}

// nodeOptions maps the node section of the config to node options.
func nodeOptions(c *config.Config, dir directory.Directory, m *observability.Metrics, log *zap.Logger) []node.Option {
	opts := []node.Option{
		node.WithLogger(log),
		node.WithMetrics(m),
		node.WithReadBatch(c.Node.ReadBatch),
		node.WithSocketBuffer(c.Node.SocketBuffer),
		node.WithMaxSegments(c.Node.MaxSegments),
	}
	if c.Node.ShutdownTimeout > 0 {
		opts = append(opts, node.WithShutdownTimeout(c.Node.ShutdownTimeout))
	}
	if c.Node.Pacing {
		opts = append(opts, node.WithPacing())
	}
	if dir != nil {
		opts = append(opts, node.WithDirectory(dir))
	}
	return opts
}
