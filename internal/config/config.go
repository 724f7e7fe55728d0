// Package config persists the small set of user-facing settings the
// indexing core consults on startup: whether auto-indexing is enabled at
// all, and which volume was indexed last. Saves are debounced the same
// way the upstream settings store batches disk writes.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Settings is the on-disk shape of settings.json (spec.md §6 auto-start
// policy).
type Settings struct {
	IndexingEnabled bool   `json:"indexing_enabled"`
	LastVolumeID    string `json:"last_volume_id,omitempty"`
}

// defaultEnabled is the release-build default; dev builds require the
// INDEXD_AUTOSTART opt-in env var (spec.md §6).
const defaultEnabled = true

// Manager loads settings.json once and persists changes with a debounce,
// mirroring the save-timer pattern the upstream per-app stats store uses.
type Manager struct {
	path         string
	mu           sync.RWMutex
	settings     Settings
	dirty        bool
	saveTimer    *time.Timer
	saveDuration time.Duration
}

// NewManager constructs a Manager backed by settings.json under dataDir.
func NewManager(dataDir string) *Manager {
	return &Manager{
		path:         filepath.Join(dataDir, "settings.json"),
		saveDuration: 2 * time.Second,
		settings:     Settings{IndexingEnabled: defaultEnabled},
	}
}

// Load reads settings.json, defaulting to the release policy if absent.
// In dev builds (INDEXD_DEV set) the default flips to false unless
// INDEXD_AUTOSTART is also set.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.settings = Settings{IndexingEnabled: m.autostartDefault()}
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &m.settings)
}

func (m *Manager) autostartDefault() bool {
	if os.Getenv("INDEXD_DEV") == "" {
		return defaultEnabled
	}
	return os.Getenv("INDEXD_AUTOSTART") != ""
}

// IndexingEnabled reports the current auto-start policy.
func (m *Manager) IndexingEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.IndexingEnabled
}

// SetIndexingEnabled updates the policy and schedules a debounced save
// (spec.md §6 set_indexing_enabled).
func (m *Manager) SetIndexingEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings.IndexingEnabled == enabled {
		return
	}
	m.settings.IndexingEnabled = enabled
	m.scheduleSaveLocked()
}

// LastVolumeID returns the volume ID last indexed, or "" if none.
func (m *Manager) LastVolumeID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.LastVolumeID
}

// SetLastVolumeID records the volume ID to resume indexing on next start.
func (m *Manager) SetLastVolumeID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings.LastVolumeID == id {
		return
	}
	m.settings.LastVolumeID = id
	m.scheduleSaveLocked()
}

func (m *Manager) scheduleSaveLocked() {
	m.dirty = true
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(m.saveDuration, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.dirty {
			_ = m.saveLocked()
		}
	})
}

func (m *Manager) saveLocked() error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.settings, "", "  ")
	if err != nil {
		return err
	}
	m.dirty = false
	return os.WriteFile(m.path, data, 0644)
}

// Close flushes any pending debounced save.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
		m.saveTimer = nil
	}
	if m.dirty {
		return m.saveLocked()
	}
	return nil
}
