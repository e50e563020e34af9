// Command fieldsync is the offline capture agent for construction site
// inspection forms. `fieldsync serve` runs the agent daemon; the remaining
// subcommands talk to a running daemon over its local API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var agentURL string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fieldsync",
		Short: "Offline-first capture and sync agent for site inspection forms",
		Long: `fieldsync captures inspection forms on site, queues them durably while
offline, and syncs them to the remote backend when connectivity returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&agentURL, "agent-url", "http://localhost:8787",
		"base URL of the running agent daemon")

	root.AddCommand(
		newServeCmd(),
		newListCmd(),
		newStatusCmd(),
		newSyncCmd(),
		newRetryCmd(),
		newDeleteCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
