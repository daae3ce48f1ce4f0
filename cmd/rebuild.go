package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuilddb",
	Short: "Rebuild the duplicate index from the archive",
	Long: `Rebuilddb walks the archive and regenerates the duplicate index from the
files actually present. Use it after rearranging the archive by hand or
when the index file is corrupt.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	sorter, cleanup, err := buildSorter()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := sorter.Rebuild(); err != nil {
		return batchError(err)
	}

	fmt.Printf("✅ Index rebuilt: %d entries\n", sorter.Index().Len())
	return nil
}
