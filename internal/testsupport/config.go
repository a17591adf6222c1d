// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tagflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.AcoustID.APIKey = "test"
	cfg.Paths.LibraryRoot = filepath.Join(base, "library")
	cfg.Paths.BackupRoot = filepath.Join(base, "backups")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Archive.Enabled = false
	cfg.CoverArt.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithKeepOriginals toggles backups on the test config.
func WithKeepOriginals(keep bool) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Organizer.KeepOriginals = keep
	}
}

// WithStubbedFpcalc writes a stub fpcalc executable that emits a fixed
// fingerprint, and prepends it to PATH.
func WithStubbedFpcalc(t testing.TB) ConfigOption {
	return func(cfg *config.Config) {
		binDir := filepath.Join(filepath.Dir(cfg.Paths.DataDir), "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\necho '{\"duration\": 200.0, \"fingerprint\": \"AQAAstub\"}'\n")
		if err := os.WriteFile(filepath.Join(binDir, "fpcalc"), script, 0o755); err != nil {
			t.Fatalf("write stub fpcalc: %v", err)
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			t.Fatalf("set PATH: %v", err)
		}
		t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}
