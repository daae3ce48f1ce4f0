package cmd

import (
	"fmt"

	"mediasort/internal"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync all sources into the archive once",
	Long: `Sync scans every configured source directory, moves new media into the
date-structured archive and diverts duplicates into the duplicates
directory. Files whose capture time cannot be determined stay in the
source for a future run.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	sorter, cleanup, err := buildSorter()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := sorter.LoadIndex(); err != nil {
		return batchError(err)
	}
	if err := sorter.Sync(); err != nil {
		return batchError(err)
	}

	stats := sorter.Stats()
	fmt.Printf("✅ Sync complete: %d scanned, %d placed, %d duplicates, %d skipped, %d errors\n",
		stats.Scanned, stats.Placed, stats.Duplicates, stats.Skipped, stats.Errors)
	return nil
}

// batchError surfaces the fix-it suggestion for errors that stopped the
// whole batch before handing the error back to cobra.
func batchError(err error) error {
	syncErr := internal.ClassifySyncError("", err)
	if internal.Fatal(syncErr) {
		fmt.Printf("💥 %s\n", syncErr.Suggestion)
	}
	return err
}
