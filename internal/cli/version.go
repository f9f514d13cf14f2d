package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/switchml/switchio/pkg/control"
	"github.com/switchml/switchio/pkg/packet"
)

// version is set at build time via -ldflags "-X github.com/switchml/switchio/internal/cli.version=x.y.z"
var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the switchio version and wire parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "switchio version %s\n", version)
		fmt.Fprintf(out, "control service: %s\n", control.ServiceName)
		fmt.Fprintf(out, "packet: %d-byte header, %d x %s payload\n", packet.HeaderSize, packet.VectorLen, packet.DataTypeFloat32)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
