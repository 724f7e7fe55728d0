package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lumipallolabs/indexd/internal/config"
	"github.com/lumipallolabs/indexd/internal/core"
	"github.com/lumipallolabs/indexd/internal/logging"
	"github.com/lumipallolabs/indexd/internal/model"
)

func newScanCmd(log *logrus.Logger) *cobra.Command {
	var dataDir string
	var volumeID string
	var force bool

	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Index a directory tree and keep it up to date until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			root := args[0]
			if volumeID == "" {
				volumeID = model.SanitizeID(root)
			}
			return runScan(log, dataDir, volumeID, root, force)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", defaultDataDir(), "directory holding the index database")
	cmd.Flags().StringVar(&volumeID, "volume-id", "", "stable ID for the index file (default: derived from path)")
	cmd.Flags().BoolVar(&force, "force", false, "scan even if autostart has been disabled via 'indexd autostart disable'")
	return cmd
}

func runScan(log *logrus.Logger, dataDir, volumeID, root string, force bool) error {
	entry := logging.Component(log, "cli")

	settings := config.NewManager(dataDir)
	if err := settings.Load(); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !force && !settings.IndexingEnabled() {
		entry.Warn("indexing_enabled is false; pass --force to scan anyway (see 'indexd autostart')")
		return nil
	}
	settings.SetLastVolumeID(volumeID)
	defer settings.Close()

	sink := newCLISink(entry)
	cfg := core.DefaultConfig(volumeID, root, dataDir)

	im, err := core.New(cfg, sink, entry)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		entry.Info("shutting down")
		if err := im.Shutdown(); err != nil {
			entry.WithError(err).Warn("shutdown")
		}
		cancel()
	}()

	if err := im.ResumeOrScan(ctx); err != nil {
		return fmt.Errorf("resume_or_scan: %w", err)
	}

	<-ctx.Done()
	return nil
}
