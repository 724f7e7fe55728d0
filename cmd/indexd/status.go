package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lumipallolabs/indexd/internal/core"
	"github.com/lumipallolabs/indexd/internal/logging"
	"github.com/lumipallolabs/indexd/internal/model"
)

func newStatusCmd(log *logrus.Logger) *cobra.Command {
	var dataDir string
	var volumeID string

	cmd := &cobra.Command{
		Use:   "status <path>",
		Short: "Show the index status for a previously scanned path",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			root := args[0]
			if volumeID == "" {
				volumeID = model.SanitizeID(root)
			}
			return runStatus(log, dataDir, volumeID, root)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", defaultDataDir(), "directory holding the index database")
	cmd.Flags().StringVar(&volumeID, "volume-id", "", "stable ID for the index file (default: derived from path)")
	return cmd
}

func runStatus(log *logrus.Logger, dataDir, volumeID, root string) error {
	entry := logging.Component(log, "cli")
	cfg := core.DefaultConfig(volumeID, root, dataDir)

	im, err := core.New(cfg, core.NopSink{}, entry)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer im.Shutdown()

	st, err := im.GetStatus()
	if err != nil {
		return fmt.Errorf("get_index_status: %w", err)
	}

	fmt.Printf("volume:       %s (%s)\n", st.VolumeID, st.VolumePath)
	fmt.Printf("state:        %s\n", st.State)
	fmt.Printf("total entries: %s\n", st.TotalEntries)
	fmt.Printf("scan completed at: %s\n", st.ScanCompletedAt)
	fmt.Printf("db size:      %s\n", humanize.Bytes(uint64(st.DBFileSizeBytes)))
	fmt.Printf("clamped propagations: %s\n", st.ClampedPropagations)
	return nil
}
