package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchml/switchio/pkg/node"
	"github.com/switchml/switchio/pkg/observability"
)

// RecvResult summarises one receive.
type RecvResult struct {
	JobID     uint32        `json:"job_id" yaml:"job_id" table:"JOB"`
	Source    uint16        `json:"source" yaml:"source" table:"SOURCE"`
	Received  int           `json:"received" yaml:"received" table:"RECEIVED"`
	Expected  int           `json:"expected" yaml:"expected" table:"EXPECTED"`
	LossRatio float64       `json:"loss_ratio" yaml:"loss_ratio" table:"LOSS"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed" table:"ELAPSED"`
	Complete  bool          `json:"complete" yaml:"complete" table:"COMPLETE"`
}

var (
	recvFrom     uint16
	recvJob      uint32
	recvSegments int
	recvWorkers  int
	recvTimeout  time.Duration
)

var recvCmd = &cobra.Command{
	Use:   "recv",
	Short: "Run a node until one job from a peer is complete",
	Long: `Bind the configured node, begin job --job from node --from and block until
every segment has arrived, either as a datagram or through retransmission.
The summary is printed even when the deadline expires first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if recvTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, recvTimeout)
			defer cancel()
		}

		dir, err := openDirectory(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open directory: %w", err)
		}
		defer dir.Close()

		n, err := node.NewLocal(cfg.Identity(), nodeOptions(cfg, dir, observability.NewMetrics(), logger)...)
		if err != nil {
			return err
		}
		defer n.Close()

		start := time.Now()
		j, err := n.ReceiveAsyncFrom(recvFrom, recvJob, recvSegments, recvWorkers)
		if err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return err
		}
		waitErr := j.Wait(ctx)
		n.ReleaseFrom(recvFrom, recvJob)

		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(RecvResult{
			JobID:     recvJob,
			Source:    recvFrom,
			Received:  j.Received(),
			Expected:  j.Total(),
			LossRatio: j.LossRatio(),
			Elapsed:   time.Since(start),
			Complete:  j.Complete(),
		}))
		if waitErr != nil {
			return fmt.Errorf("job %d from node %d incomplete: %w", recvJob, recvFrom, waitErr)
		}
		return nil
	},
}

func init() {
	f := recvCmd.Flags()
	f.Uint16Var(&recvFrom, "from", 0, "source node id")
	f.Uint32Var(&recvJob, "job", 0, "job id")
	f.IntVar(&recvSegments, "segments", 1, "number of segments expected")
	f.IntVar(&recvWorkers, "workers", 1, "number of contributing workers")
	f.DurationVar(&recvTimeout, "timeout", 0, "give up after this long, 0 to wait indefinitely")
	recvCmd.MarkFlagRequired("from")
	recvCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(recvCmd)
}
