// Command nsgflow runs the NSG flow-log pipeline stages, the blob watcher and
// the rescan API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nsgflow",
	Short: "Ship Azure NSG flow logs to a SIEM",
	Long: `Reads NSG flow-log blobs incrementally and delivers denormalized
flow records to the configured output.

Stages:
  stage1    chunk the blocks a blob gained since its checkpoint
  worker    consume a stage topic (--stage split|transmit)
  watch     poll the source container and run stage 1 on grown blobs
  tail      print stage and dead-letter messages

Configuration is read from --config, or from the environment when no file
is given.

Examples:
  # Chunk one blob
  nsgflow stage1 --blob "resourceId=/SUBSCRIPTIONS/.../PT1H.json"

  # Run the transmit worker with JSON logs
  LOG_FORMAT=json nsgflow worker --stage transmit --config nsgflow.yaml

  # Replay a blob from its first block
  nsgflow rescan "resourceId=/SUBSCRIPTIONS/.../PT1H.json"`,
	SilenceUsage: true,
	Version:      version,
}

// Execute adds all child commands to the root command and runs it
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: environment)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(
		newStage1Cmd(),
		newWorkerCmd(),
		newWatchCmd(),
		newRescanCmd(),
		newServeCmd(),
		newTailCmd(),
		newTestKafkaCmd(),
	)
}

func main() {
	Execute()
}
