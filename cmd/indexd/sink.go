package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// cliSink implements core.EventSink by driving a progress bar the way
// ivoronin-dupedog/internal/progress wraps schollz/progressbar: a
// spinner while the entry count is unknown, switching to a described
// counter once scanning is under way, and plain log lines for the
// events a progress bar can't usefully represent.
type cliSink struct {
	log *logrus.Entry
	bar *progressbar.ProgressBar
}

func newCLISink(log *logrus.Entry) *cliSink {
	return &cliSink{log: log}
}

func (s *cliSink) ScanStarted(volumeID string) {
	s.bar = progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription(fmt.Sprintf("scanning %s", volumeID)),
		progressbar.OptionClearOnFinish(),
	)
}

func (s *cliSink) ScanProgress(volumeID string, entriesScanned, dirsFound int64) {
	if s.bar == nil {
		return
	}
	_ = s.bar.Set64(entriesScanned)
	s.bar.Describe(fmt.Sprintf("scanning %s: %s entries, %s dirs",
		volumeID, humanize.Comma(entriesScanned), humanize.Comma(dirsFound)))
}

func (s *cliSink) ScanComplete(volumeID string, totalEntries, totalDirs, durationMs int64) {
	if s.bar != nil {
		_ = s.bar.Finish()
		s.bar = nil
	}
	s.log.WithFields(logrus.Fields{
		"volume_id":     volumeID,
		"total_entries": humanize.Comma(totalEntries),
		"total_dirs":    humanize.Comma(totalDirs),
		"duration_ms":   durationMs,
	}).Info("scan complete")
}

func (s *cliSink) ReplayProgress(volumeID string, eventsProcessed, estimatedTotal uint64) {
	s.log.WithFields(logrus.Fields{
		"volume_id": volumeID,
		"events":    eventsProcessed,
	}).Debug("replaying journal")
}

func (s *cliSink) DirUpdated(paths []string) {
	s.log.WithField("dirs", len(paths)).Debug("index updated")
}
