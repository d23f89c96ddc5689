package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	app := &application{}
	rootCmd := &cobra.Command{
		Use:          "snaporm",
		Short:        "Snapshot-tracking ORM demo over a SQLite library catalog",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initConfig()
		},
	}

	app.setupFlags(rootCmd)
	rootCmd.AddCommand(
		newMigrateCommand(app),
		newSeedCommand(app),
		newListCommand(app),
		newServeCommand(app),
	)
	return rootCmd
}
