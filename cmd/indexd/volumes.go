package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lumipallolabs/indexd/internal/model"
)

func newVolumesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "volumes",
		Short: "List volumes available for indexing",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			volumes, err := model.ListVolumes()
			if err != nil {
				return fmt.Errorf("list volumes: %w", err)
			}
			for _, v := range volumes {
				fmt.Printf("%-20s %-30s %10s / %10s (%.1f%% used)\n",
					v.ID, v.Path, humanize.Bytes(uint64(v.UsedBytes())), humanize.Bytes(uint64(v.TotalBytes)), v.UsedPercent())
			}
			return nil
		},
	}
}
