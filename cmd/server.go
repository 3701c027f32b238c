package cmd

import (
	"github.com/mosaichq/backoffice/internal/api"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the back-office API server",
	Run: func(cmd *cobra.Command, args []string) {
		s := api.New()
		s.Start()
	},
}

// Register the "server" command
func init() {
	rootCmd.AddCommand(serverCmd)
}
