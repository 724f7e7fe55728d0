// Package logging configures the structured logger shared by every
// indexing component (spec.md §7 — errors bubble up and are logged, never
// panicked). Components take a *logrus.Entry pre-tagged with a
// "component" field rather than reaching for a package-level logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the root logger. Debug-level output is gated behind
// INDEXD_DEBUG the same way the upstream build gated its own debug log
// behind an environment variable.
func New() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if os.Getenv("INDEXD_DEBUG") != "" {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// Component returns a logger entry tagged for one of the indexing
// pipeline's named components (store, writer, scanner, ...).
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
