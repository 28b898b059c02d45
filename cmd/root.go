package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"weave/logx"
)

var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "Weave block-graph consensus node CLI",
	Long:  "Command line interface for running and managing a weave consensus node.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
