package cmd

import (
	"mediasort/internal"

	"github.com/spf13/cobra"
)

// Version is overridden at startup from the embedded VERSION file.
var Version = "dev"

var (
	configFlag string
	debugFlag  bool
	quietFlag  bool
)

var rootCmd = &cobra.Command{
	Use:     "mediasort",
	Short:   "Mediasort photo and movie archiver",
	Long:    "Mediasort moves photos and movies from inbox directories into a date-structured archive, keeping a content-addressed index to detect duplicates.",
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

// ApplyVersion pushes the current Version value onto the root command.
func ApplyVersion() {
	rootCmd.Version = Version
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "/etc/mediasort.yml", "Configuration file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "Suppress progress output")
}

// buildSorter loads the config and wires everything a subcommand needs.
// The returned cleanup closes the metadata oracle and flushes the logger.
func buildSorter() (*internal.Sorter, func(), error) {
	cfg, err := internal.LoadConfig(configFlag)
	if err != nil {
		return nil, nil, err
	}

	log, err := internal.NewLogger(cfg.LogPath(), cfg.Output.LogToStderr, debugFlag)
	if err != nil {
		return nil, nil, err
	}
	for _, warning := range cfg.Warnings {
		log.Warn(warning)
	}

	meta := internal.NewMetadataSource(log)
	sorter := internal.NewSorter(cfg, meta, quietFlag, log)

	cleanup := func() {
		meta.Close()
		log.Sync()
	}
	return sorter, cleanup, nil
}
