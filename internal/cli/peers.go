package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/switchml/switchio/pkg/directory"
)

// PeerRow is one directory entry as printed by "switchio peers".
type PeerRow struct {
	NodeID   uint16 `json:"node_id" yaml:"node_id" table:"NODE"`
	GroupID  uint16 `json:"group_id" yaml:"group_id" table:"GROUP"`
	Data     string `json:"data" yaml:"data" table:"DATA"`
	RPC      string `json:"rpc" yaml:"rpc" table:"RPC"`
	Speed    int    `json:"speed_mbps" yaml:"speed_mbps" table:"MBPS"`
	Instance string `json:"instance,omitempty" yaml:"instance,omitempty" table:"INSTANCE"`
}

func peerRow(e directory.Entry) PeerRow {
	return PeerRow{
		NodeID:   e.NodeID,
		GroupID:  e.GroupID,
		Data:     fmt.Sprintf("%s:%d", e.IP, e.RxPort),
		RPC:      e.RPCAddr,
		Speed:    e.SpeedMbps,
		Instance: e.Instance,
	}
}

var peersWatch bool

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the nodes in the configured directory",
	Long: `List the nodes in the configured directory. With --watch and the etcd
directory, registrations and removals are printed as they happen until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := openDirectory(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open directory: %w", err)
		}
		defer dir.Close()

		entries, err := dir.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list peers: %w", err)
		}
		rows := make([]PeerRow, len(entries))
		for i, e := range entries {
			rows[i] = peerRow(e)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(rows))

		if !peersWatch {
			return nil
		}
		etcd, ok := dir.(*directory.EtcdDirectory)
		if !ok {
			return fmt.Errorf("--watch needs the etcd directory, not %q", cfg.Directory.Type)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		for ev := range etcd.Watch(ctx) {
			switch ev.Type {
			case directory.EventPut:
				fmt.Fprintf(cmd.OutOrStdout(), "+ node %d at %s:%d rpc %s\n",
					ev.Entry.NodeID, ev.Entry.IP, ev.Entry.RxPort, ev.Entry.RPCAddr)
			case directory.EventDelete:
				fmt.Fprintf(cmd.OutOrStdout(), "- node %d\n", ev.Entry.NodeID)
			}
		}
		return nil
	},
}

func init() {
	peersCmd.Flags().BoolVarP(&peersWatch, "watch", "w", false, "follow directory changes (etcd only)")
	rootCmd.AddCommand(peersCmd)
}
