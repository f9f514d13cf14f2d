package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/switchml/switchio/pkg/node"
	"github.com/switchml/switchio/pkg/observability"
	"github.com/switchml/switchio/pkg/packet"
)

// SendResult summarises one send.
type SendResult struct {
	JobID      uint32        `json:"job_id" yaml:"job_id" table:"JOB"`
	Peer       uint16        `json:"peer" yaml:"peer" table:"PEER"`
	Segments   int           `json:"segments" yaml:"segments" table:"SEGMENTS"`
	Skipped    int           `json:"skipped" yaml:"skipped" table:"SKIPPED"`
	PacketsOut int64         `json:"packets_sent" yaml:"packets_sent" table:"PACKETS"`
	Recovery   time.Duration `json:"recovery" yaml:"recovery" table:"RECOVERY"`
}

var (
	sendTo       uint16
	sendJob      uint32
	sendSegments int
	sendValue    float32
	sendGroup    uint16
	sendBypass   bool
	sendSkip     []uint
	sendTimeout  time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a job to a peer and retransmit whatever it reports missing",
	Long: `Send --segments vectors as job --job to node --to, then ask the peer which
segments it is missing and push those over the control plane.

The peer must already track the job (see POST /api/v1/jobs on "switchio
serve"). --skip leaves segments off the datagram path so the recovery path
can be exercised. The sender binds ephemeral ports and does not register
itself.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendSegments < 1 {
			return fmt.Errorf("--segments must be at least 1")
		}
		skip := make(map[uint32]bool, len(sendSkip))
		for _, s := range sendSkip {
			if s >= uint(sendSegments) {
				return fmt.Errorf("--skip %d is not a segment of a %d-segment job", s, sendSegments)
			}
			skip[uint32(s)] = true
		}

		ctx := cmd.Context()
		if sendTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, sendTimeout)
			defer cancel()
		}

		dir, err := openDirectory(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open directory: %w", err)
		}
		defer dir.Close()

		peer, err := node.Resolve(ctx, dir, sendTo)
		if err != nil {
			return fmt.Errorf("failed to resolve node %d: %w", sendTo, err)
		}
		defer peer.Close()

		id := cfg.Identity()
		id.RxPort, id.TxPort, id.RPCAddr = 0, 0, ""
		metrics := observability.NewMetrics()
		n, err := node.NewLocal(id, nodeOptions(cfg, nil, metrics, logger)...)
		if err != nil {
			return err
		}
		defer n.Close()

		all := make([]*packet.Packet, sendSegments)
		var wire []*packet.Packet
		for i := range all {
			p, err := n.NewPacket(sendJob, uint32(i), sendGroup, sendBypass, fill(sendValue+float32(i)))
			if err != nil {
				return err
			}
			all[i] = p
			if !skip[uint32(i)] {
				wire = append(wire, p)
			}
		}
		if err := n.Send(ctx, peer, wire...); err != nil {
			return err
		}

		elapsed, err := n.CheckAndRetransmit(ctx, peer, sendJob, all)
		if err != nil {
			return fmt.Errorf("failed to recover job %d on node %d: %w", sendJob, sendTo, err)
		}
		logger.Debug("send finished", zap.Uint32("job_id", sendJob), zap.Duration("recovery", elapsed))

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(SendResult{
			JobID:      sendJob,
			Peer:       sendTo,
			Segments:   sendSegments,
			Skipped:    len(skip),
			PacketsOut: metrics.GetMetrics()["packets_sent"],
			Recovery:   elapsed,
		}))
		return nil
	},
}

func fill(v float32) []float32 {
	out := make([]float32, packet.VectorLen)
	for i := range out {
		out[i] = v
	}
	return out
}

func init() {
	f := sendCmd.Flags()
	f.Uint16Var(&sendTo, "to", 0, "destination node id")
	f.Uint32Var(&sendJob, "job", 0, "job id")
	f.IntVar(&sendSegments, "segments", 1, "number of segments to send")
	f.Float32Var(&sendValue, "value", 1, "value of segment 0; segment i carries value+i")
	f.Uint16Var(&sendGroup, "group", 0, "multicast group id")
	f.BoolVar(&sendBypass, "bypass", false, "ask the switch not to aggregate")
	f.UintSliceVar(&sendSkip, "skip", nil, "segment ids to leave off the datagram path")
	f.DurationVar(&sendTimeout, "timeout", 30*time.Second, "overall deadline, 0 for none")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(sendCmd)
}
