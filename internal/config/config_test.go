package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Session.ScanDuration)
	assert.Equal(t, 1.0, cfg.Session.PlacementDistance)
	assert.Zero(t, cfg.Session.ScanWatchdog)
	assert.Equal(t, BackendText, cfg.Storage.Backend)
	assert.Equal(t, "ADHocObjectsFile", cfg.Storage.ObjectsFile)
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchorflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  dir: /tmp/anchors
  backend: sqlite
  sqlitePath: /tmp/anchors/objects.db
session:
  scanDuration: 8s
  scanWatchdog: 30s
log:
  format: json
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/anchors", cfg.Storage.Dir)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, 8*time.Second, cfg.Session.ScanDuration)
	assert.Equal(t, 30*time.Second, cfg.Session.ScanWatchdog)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched fields keep their defaults.
	assert.Equal(t, 1.0, cfg.Session.PlacementDistance)
	assert.Equal(t, "ADHocMapFile", cfg.Storage.MapFile)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("session: [unclosed"), 0o644))
	_, err = LoadFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchorflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  placementDistance: 2.5\n"), 0o644))

	t.Setenv("ANCHORFLOW_SESSION_PLACEMENT_DISTANCE", "0.75")
	t.Setenv("ANCHORFLOW_STORAGE_DIR", "/var/lib/anchorflow")
	t.Setenv("ANCHORFLOW_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.Session.PlacementDistance)
	assert.Equal(t, "/var/lib/anchorflow", cfg.Storage.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Session, cfg.Session)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("ANCHORFLOW_SESSION_SCAN_DURATION", "soon")
	_, err := Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = BackendSQLite }, "sqlitePath"},
		{"no dir", func(c *Config) { c.Storage.Dir = "" }, "storage.dir"},
		{"zero scan", func(c *Config) { c.Session.ScanDuration = 0 }, "scanDuration"},
		{"negative distance", func(c *Config) { c.Session.PlacementDistance = -1 }, "placementDistance"},
		{"negative watchdog", func(c *Config) { c.Session.ScanWatchdog = -time.Second }, "scanWatchdog"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero tick", func(c *Config) { c.Loop.TickRate = 0 }, "tickRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "phase", "idle")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"phase":"idle"`)

	_, err = NewLogger(LogConfig{Level: "info", Format: "xml"}, &buf)
	require.Error(t, err)
}
