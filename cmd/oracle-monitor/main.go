// Command oracle-monitor exports Prometheus metrics about the price
// submissions of Agoric oracle operators.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "oracle-monitor",
		Short:         "Monitor Agoric price-feed oracles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file (optional)")

	root.AddCommand(
		newMonitorCmd(opts),
		newFeedsCmd(opts),
		newPriceCmd(opts),
		newVersionCmd(),
	)
	return root
}
