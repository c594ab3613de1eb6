// Package config loads bgio settings from a YAML or JSONC file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	c "bgio/internal"
	"bgio/internal/fileio"
	"bgio/internal/logsink"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

var ErrConfigInvalid = errors.New("invalid config")

type Config struct {
	Backend     string `json:"backend"      yaml:"backend"`
	RingEntries uint32 `json:"ring_entries" yaml:"ring_entries"`
	RingCPU     int    `json:"ring_cpu"     yaml:"ring_cpu"`

	Log   LogConfig   `json:"log"   yaml:"log"`
	Bench BenchConfig `json:"bench" yaml:"bench"`
}

type LogConfig struct {
	Path   string `json:"path"   yaml:"path"`
	Stderr bool   `json:"stderr" yaml:"stderr"`
	// debug, info, warn, error
	Level string `json:"level" yaml:"level"`
}

type BenchConfig struct {
	Dir        string `json:"dir"        yaml:"dir"`
	Workers    int    `json:"workers"    yaml:"workers"`
	Iterations int    `json:"iterations" yaml:"iterations"`
	ChunkKiB   int    `json:"chunk_kib"  yaml:"chunk_kib"`
	Keep       bool   `json:"keep"       yaml:"keep"`
}

func Default() Config {
	return Config{
		Backend:     string(fileio.BackendAuto),
		RingEntries: c.DEFAULT_RING_ENTRIES,
		RingCPU:     -1,
		Log: LogConfig{
			Path:   c.DEFAULT_LOG_PATH,
			Stderr: true,
			Level:  "info",
		},
		Bench: BenchConfig{
			Dir:        ".",
			Workers:    4,
			Iterations: 64,
			ChunkKiB:   256,
		},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" { return cfg, nil }

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) { return cfg, nil }
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = parseJSONC(data, &cfg)
	}
	if err != nil {
		return Default(), fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}
	return cfg, nil
}

func parseJSONC(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil { return fmt.Errorf("invalid JSONC: %w", err) }
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func (cfg Config) Validate() error {
	switch fileio.BackendKind(cfg.Backend) {
	case fileio.BackendAuto, fileio.BackendURing, fileio.BackendOverlapped, fileio.BackendSync:
	default:
		return fmt.Errorf("backend: unknown %q", cfg.Backend)
	}
	if cfg.RingEntries == 0 || cfg.RingEntries&(cfg.RingEntries-1) != 0 {
		return fmt.Errorf("ring_entries: %d is not a power of two", cfg.RingEntries)
	}
	if cfg.RingCPU < -1 {
		return fmt.Errorf("ring_cpu: %d", cfg.RingCPU)
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Bench.Workers < 1 {
		return fmt.Errorf("bench.workers: %d < 1", cfg.Bench.Workers)
	}
	if cfg.Bench.Iterations < 1 {
		return fmt.Errorf("bench.iterations: %d < 1", cfg.Bench.Iterations)
	}
	if cfg.Bench.ChunkKiB < 1 || uint64(cfg.Bench.ChunkKiB)*c.KiB > c.MAX_TRANSFER {
		return fmt.Errorf("bench.chunk_kib: %d out of range", cfg.Bench.ChunkKiB)
	}
	return nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

func (cfg Config) FileIO() fileio.Config {
	return fileio.Config{
		Backend:     fileio.BackendKind(cfg.Backend),
		RingEntries: cfg.RingEntries,
		RingPin:     cfg.RingCPU >= 0,
		RingCPU:     cfg.RingCPU,
	}
}

func (cfg Config) LogSink() logsink.Config {
	lvl, err := cfg.Log.SlogLevel()
	if err != nil { lvl = slog.LevelInfo }
	return logsink.Config{Path: cfg.Log.Path, Stderr: cfg.Log.Stderr, Level: lvl}
}
