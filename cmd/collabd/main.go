// Command collabd runs the collaborative session server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collabd",
		Short: "Real-time collaborative session server",
		Long: `collabd is the gateway for real-time collaborative editing sessions.

Clients connect over WebSocket, authenticate with a bearer token, and
join a session by id. The server merges their document updates, relays
them to the other participants, and persists the delta log to the
configured store (memory, Redis, or S3).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
