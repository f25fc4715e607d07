// Package config resolves the runtime configuration snapshot a
// Producer needs to talk to the Metadata Service: the base URL,
// security key, global id, and a per-install serial id. It merges
// defaults, the process environment, and caller overrides, and
// persists a freshly derived serial id so it survives restarts.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var log = slog.Default()

const preferencesFileName = "preferences.json"

// defaultPublicDir is the fallback "./public" used when the caller
// supplies no PublicDir. It is a relative path, resolved against the
// process working directory, not against the module or the binary.
const defaultPublicDir = "./public"

// Snapshot is the resolved configuration a Producer consumes.
type Snapshot struct {
	BaseURL     string
	SecurityKey string
	GlobalID    string
	SerialID    string
}

// Overrides are caller-supplied values. Empty fields fall through to
// the environment, then to defaults.
type Overrides struct {
	BaseURL     string
	SecurityKey string
	GlobalID    string
	SerialID    string
}

// preferences is the persisted shape of preferences.json.
type preferences struct {
	ProducerSerialID string `json:"PRODUCER_SERIAL_ID"`
}

// Resolver merges overrides, environment, and defaults into a
// Snapshot, deriving and persisting a serial id on first run.
type Resolver struct {
	mu        sync.Mutex
	PublicDir string // "" resolves to defaultPublicDir
	overrides Overrides

	// memorySerialID is the process-scoped fallback used when the
	// preferences file cannot be persisted.
	memorySerialID string
}

// NewResolver returns a Resolver with no caller overrides set.
func NewResolver() *Resolver {
	return &Resolver{}
}

// SetOverrides replaces the caller-override snapshot (Producer
// Façade's setConfigs).
func (r *Resolver) SetOverrides(o Overrides) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides = o
}

// Resolve produces the configuration snapshot. Precedence: caller
// overrides > environment > defaults. A missing BITSKY_BASE_URL or
// GLOBAL_ID is logged as a warning, not returned as an error — the
// core handles their absence downstream (spec.md §4.C).
func (r *Resolver) Resolve() Snapshot {
	r.mu.Lock()
	overrides := r.overrides
	r.mu.Unlock()

	snap := Snapshot{
		BaseURL:     firstNonEmpty(overrides.BaseURL, os.Getenv("BITSKY_BASE_URL")),
		SecurityKey: firstNonEmpty(overrides.SecurityKey, os.Getenv("BITSKY_SECURITY_KEY")),
		GlobalID:    firstNonEmpty(overrides.GlobalID, os.Getenv("GLOBAL_ID")),
		SerialID:    firstNonEmpty(overrides.SerialID, os.Getenv("PRODUCER_SERIAL_ID")),
	}

	if snap.BaseURL == "" {
		log.Warn("BITSKY_BASE_URL not set; producer will operate in a degraded, inactive state")
	}
	if snap.GlobalID == "" {
		log.Warn("GLOBAL_ID not set; producer will operate in a degraded, inactive state")
	}

	if snap.SerialID == "" {
		snap.SerialID = r.deriveAndPersistSerialID()
	}

	return snap
}

// deriveAndPersistSerialID generates a fresh UUID, attempts to persist
// it under the public directory's preferences.json, and falls back to
// an in-memory value for the lifetime of the process if persistence
// fails.
func (r *Resolver) deriveAndPersistSerialID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.memorySerialID != "" {
		return r.memorySerialID
	}

	if existing, ok := r.loadPersistedSerialID(); ok {
		r.memorySerialID = existing
		return existing
	}

	serialID := uuid.NewString()
	if err := r.persistSerialID(serialID); err != nil {
		log.Warn("failed to persist PRODUCER_SERIAL_ID; falling back to in-memory value",
			"error", err)
	}
	r.memorySerialID = serialID
	return serialID
}

func (r *Resolver) publicDir() string {
	if r.PublicDir != "" {
		return r.PublicDir
	}
	return defaultPublicDir
}

func (r *Resolver) preferencesPath() string {
	return filepath.Join(r.publicDir(), preferencesFileName)
}

func (r *Resolver) loadPersistedSerialID() (string, bool) {
	data, err := os.ReadFile(r.preferencesPath())
	if err != nil {
		return "", false
	}
	var prefs preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return "", false
	}
	return prefs.ProducerSerialID, prefs.ProducerSerialID != ""
}

// persistSerialID writes preferences.json atomically: temp file then
// rename, mirroring the teacher's snapshot-write discipline.
func (r *Resolver) persistSerialID(serialID string) error {
	dir := r.publicDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create public dir: %w", err)
	}

	data, err := json.MarshalIndent(preferences{ProducerSerialID: serialID}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	path := r.preferencesPath()
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp preferences: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename preferences: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
