package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/switchml/switchio/internal/api"
	"github.com/switchml/switchio/pkg/node"
	"github.com/switchml/switchio/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a node: receive datagrams, answer control calls and serve the HTTP API",
	Long: `Run a switchio node until interrupted. The node binds its receive and send
sockets and the control-plane listener, registers itself in the configured
directory and, when http.addr is set, serves the job API and /metrics.

Jobs are begun through POST /api/v1/jobs; datagrams for jobs that have not
been begun are counted as stale and dropped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dir, err := openDirectory(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open directory: %w", err)
		}
		defer dir.Close()

		metrics := observability.NewMetrics()
		n, err := node.NewLocal(cfg.Identity(), nodeOptions(cfg, dir, metrics, logger)...)
		if err != nil {
			return err
		}
		defer n.Close()
		if err := n.Start(); err != nil {
			return err
		}

		id := n.Identity()
		fmt.Fprintf(cmd.OutOrStdout(), "node %d serving: rx %s:%d, tx %s:%d, rpc %s\n",
			id.NodeID, id.IP, id.RxPort, id.IP, id.TxPort, id.RPCAddr)

		var srv *api.Server
		errc := make(chan error, 1)
		if cfg.HTTP.Addr != "" {
			lis, err := net.Listen("tcp", cfg.HTTP.Addr)
			if err != nil {
				return fmt.Errorf("http listener %s: %w", cfg.HTTP.Addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "http api on %s\n", lis.Addr())
			srv = api.NewServer(n, metrics, dir, logger)
			go func() { errc <- srv.Serve(lis) }()
		}

		select {
		case <-ctx.Done():
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("http api: %w", err)
			}
		}

		logger.Info("shutting down", zap.Uint16("node_id", id.NodeID))
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		}
		return n.Close()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
