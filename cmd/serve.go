package cmd

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordination service",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
