package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Sync continuously, watching the sources for changes",
	Long: `Monitor runs an immediate sync and then keeps syncing on a fixed
interval. Filesystem events on the source directories schedule an extra
pass as soon as the tree settles. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	sorter, cleanup, err := buildSorter()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := sorter.LoadIndex(); err != nil {
		return batchError(err)
	}

	stop := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\n🛑 Stopping monitor")
		close(stop)
	}()

	fmt.Println("👀 Monitoring sources, Ctrl-C to stop")
	if err := sorter.Monitor(stop); err != nil {
		return batchError(err)
	}
	return nil
}
