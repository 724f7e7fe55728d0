package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lumipallolabs/indexd/internal/core"
	"github.com/lumipallolabs/indexd/internal/logging"
	"github.com/lumipallolabs/indexd/internal/model"
)

func newClearCmd(log *logrus.Logger) *cobra.Command {
	var dataDir string
	var volumeID string

	cmd := &cobra.Command{
		Use:   "clear <path>",
		Short: "Drop and recreate a volume's index, as though never scanned",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			root := args[0]
			if volumeID == "" {
				volumeID = model.SanitizeID(root)
			}
			entry := logging.Component(log, "cli")
			cfg := core.DefaultConfig(volumeID, root, dataDir)

			im, err := core.New(cfg, core.NopSink{}, entry)
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
			defer im.Shutdown()

			if err := im.ClearIndex(); err != nil {
				return fmt.Errorf("clear_index: %w", err)
			}
			entry.WithField("volume_id", volumeID).Info("index cleared")
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", defaultDataDir(), "directory holding the index database")
	cmd.Flags().StringVar(&volumeID, "volume-id", "", "stable ID for the index file (default: derived from path)")
	return cmd
}
