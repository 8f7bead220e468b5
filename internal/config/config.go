// Package config loads anchorflow settings: built-in defaults, then an
// optional YAML file, then ANCHORFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendText   = "text"
	BackendSQLite = "sqlite"
)

const (
	defaultScanDuration      = 5 * time.Second
	defaultPlacementDistance = 1.0
	defaultTickRate          = 16667 * time.Microsecond
	defaultMaxEventsPerTick  = 1000
	defaultSnapRadius        = 2.0
)

// Config holds initialization parameters for every subsystem.
type Config struct {
	Storage    StorageConfig    `yaml:"storage" envPrefix:"STORAGE_"`
	Session    SessionConfig    `yaml:"session" envPrefix:"SESSION_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Loop       LoopConfig       `yaml:"loop" envPrefix:"LOOP_"`
	Navigation NavigationConfig `yaml:"navigation" envPrefix:"NAV_"`
}

// StorageConfig locates the map marker and the anchor object record.
type StorageConfig struct {
	Dir          string `yaml:"dir" env:"DIR"`
	MapFile      string `yaml:"mapFile" env:"MAP_FILE"`
	ObjectsFile  string `yaml:"objectsFile" env:"OBJECTS_FILE"`
	Backend      string `yaml:"backend" env:"BACKEND"`
	SQLitePath   string `yaml:"sqlitePath" env:"SQLITE_PATH"`
	SnapshotsDir string `yaml:"snapshotsDir" env:"SNAPSHOTS_DIR"`
}

type SessionConfig struct {
	ScanDuration      time.Duration `yaml:"scanDuration" env:"SCAN_DURATION"`
	PlacementDistance float64       `yaml:"placementDistance" env:"PLACEMENT_DISTANCE"`
	// ScanWatchdog bounds a scan that never reports back. Zero disables it.
	ScanWatchdog time.Duration `yaml:"scanWatchdog" env:"SCAN_WATCHDOG"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type LoopConfig struct {
	TickRate         time.Duration `yaml:"tickRate" env:"TICK_RATE"`
	MaxEventsPerTick int           `yaml:"maxEventsPerTick" env:"MAX_EVENTS_PER_TICK"`
}

type NavigationConfig struct {
	SnapRadius float64 `yaml:"snapRadius" env:"SNAP_RADIUS"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	dir := "."
	if d, err := os.UserConfigDir(); err == nil {
		dir = d + string(os.PathSeparator) + "anchorflow"
	}
	return Config{
		Storage: StorageConfig{
			Dir:         dir,
			MapFile:     "ADHocMapFile",
			ObjectsFile: "ADHocObjectsFile",
			Backend:     BackendText,
		},
		Session: SessionConfig{
			ScanDuration:      defaultScanDuration,
			PlacementDistance: defaultPlacementDistance,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Loop: LoopConfig{
			TickRate:         defaultTickRate,
			MaxEventsPerTick: defaultMaxEventsPerTick,
		},
		Navigation: NavigationConfig{
			SnapRadius: defaultSnapRadius,
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	mergeString(&c.Storage.Dir, source.Storage.Dir)
	mergeString(&c.Storage.MapFile, source.Storage.MapFile)
	mergeString(&c.Storage.ObjectsFile, source.Storage.ObjectsFile)
	mergeString(&c.Storage.Backend, source.Storage.Backend)
	mergeString(&c.Storage.SQLitePath, source.Storage.SQLitePath)
	mergeString(&c.Storage.SnapshotsDir, source.Storage.SnapshotsDir)

	if source.Session.ScanDuration > 0 {
		c.Session.ScanDuration = source.Session.ScanDuration
	}
	if source.Session.PlacementDistance > 0 {
		c.Session.PlacementDistance = source.Session.PlacementDistance
	}
	if source.Session.ScanWatchdog > 0 {
		c.Session.ScanWatchdog = source.Session.ScanWatchdog
	}

	mergeString(&c.Log.Level, source.Log.Level)
	mergeString(&c.Log.Format, source.Log.Format)

	if source.Loop.TickRate > 0 {
		c.Loop.TickRate = source.Loop.TickRate
	}
	if source.Loop.MaxEventsPerTick > 0 {
		c.Loop.MaxEventsPerTick = source.Loop.MaxEventsPerTick
	}
	if source.Navigation.SnapRadius > 0 {
		c.Navigation.SnapRadius = source.Navigation.SnapRadius
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// Validate rejects settings no subsystem can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Storage.Dir == "" {
		errs = append(errs, errors.New("storage.dir is required"))
	}
	switch c.Storage.Backend {
	case BackendText:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlitePath is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of %q, %q", c.Storage.Backend, BackendText, BackendSQLite))
	}
	if c.Session.ScanDuration <= 0 {
		errs = append(errs, errors.New("session.scanDuration must be positive"))
	}
	if c.Session.PlacementDistance <= 0 {
		errs = append(errs, errors.New("session.placementDistance must be positive"))
	}
	if c.Session.ScanWatchdog < 0 {
		errs = append(errs, errors.New("session.scanWatchdog must not be negative"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	if c.Loop.TickRate <= 0 {
		errs = append(errs, errors.New("loop.tickRate must be positive"))
	}
	if c.Loop.MaxEventsPerTick <= 0 {
		errs = append(errs, errors.New("loop.maxEventsPerTick must be positive"))
	}
	return errors.Join(errs...)
}

// LoadFile reads a YAML config file, merges it over the defaults, and
// returns the result without validating it.
func LoadFile(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", filename, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filename, err)
	}
	cfg.Merge(&fileCfg)
	return &cfg, nil
}

// ApplyEnv overrides cfg from ANCHORFLOW_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "ANCHORFLOW_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load builds the effective configuration: defaults, the YAML file when
// filename is non-empty, then the environment. The result is validated.
func Load(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename != "" {
		fileCfg, err := LoadFile(filename)
		if err != nil {
			return nil, err
		}
		cfg = *fileCfg
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
