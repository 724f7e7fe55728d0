package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumipallolabs/indexd/internal/config"
)

// newAutostartCmd exposes the indexing_enabled setting spec.md §6
// describes as the auto-start policy contract: "the system consults an
// indexing_enabled setting. If explicitly false, never auto-start."
func newAutostartCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "autostart [enable|disable|status]",
		Short: "View or change whether indexing resumes automatically on launch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			mgr := config.NewManager(dataDir)
			if err := mgr.Load(); err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			defer mgr.Close()

			action := "status"
			if len(args) == 1 {
				action = args[0]
			}
			switch action {
			case "enable":
				mgr.SetIndexingEnabled(true)
			case "disable":
				mgr.SetIndexingEnabled(false)
			case "status":
			default:
				return fmt.Errorf("unknown action %q (want enable, disable, or status)", action)
			}

			if err := mgr.Close(); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			fmt.Printf("indexing_enabled: %t\n", mgr.IndexingEnabled())
			if v := mgr.LastVolumeID(); v != "" {
				fmt.Printf("last_volume_id:    %s\n", v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", defaultDataDir(), "directory holding settings.json")
	return cmd
}
