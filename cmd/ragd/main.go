// Ragd is a document ingestion and retrieval daemon.
//
// It chunks and embeds documents into a Qdrant collection, degrades to a
// persisted local index when Qdrant is unreachable, and serves similarity
// queries with optional answer generation over HTTP.
//
// Usage:
//
//	# Start the server with defaults
//	ragd serve
//
//	# Configure via file and environment
//	ragd serve --config config.yaml
//	RAGD_QDRANT_HOST=qdrant.internal ragd serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "ragd",
		Short:         "Document ingestion and retrieval daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ragd\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", gitCommit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	}
}
