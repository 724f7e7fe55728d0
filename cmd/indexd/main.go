// Command indexd is a thin CLI shim over the drive-indexing core
// (internal/core), the way the file browser this package was extracted
// from drives it internally: pick a volume, index it, ask it questions.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lumipallolabs/indexd/internal/logging"
)

var verbose bool

func main() {
	os.Exit(run())
}

func run() int {
	log := logging.New()

	root := &cobra.Command{
		Use:   "indexd",
		Short: "Drive indexing core CLI",
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newScanCmd(log))
	root.AddCommand(newStatusCmd(log))
	root.AddCommand(newVolumesCmd())
	root.AddCommand(newClearCmd(log))
	root.AddCommand(newAutostartCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
