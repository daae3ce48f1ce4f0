package cmd

import (
	"github.com/spf13/cobra"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a summary of the archive and its recent runs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "Recent runs to summarize (0 disables)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	sorter, cleanup, err := buildSorter()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := sorter.LoadIndex(); err != nil {
		return batchError(err)
	}
	return sorter.Status(statusRuns)
}
