package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doananhhung/livechat-sub002/cmd/worker"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "livechat-relay",
		Short: "Livechat event relay and webhook delivery pipeline",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}
