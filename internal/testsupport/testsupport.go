// Package testsupport provides shared fixtures for daemon-level tests.
package testsupport

import (
	"testing"

	"notisd/internal/config"
)

// NewConfig returns a validated config rooted in per-test temp directories.
// Persistence and theme provisioning are disabled so tests stay hermetic;
// callers flip individual fields back on as needed.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.RuntimeDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.ConfigDir = t.TempDir()
	cfg.History.Persist = false
	cfg.Theme.WriteIfMissing = false

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}
