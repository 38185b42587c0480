// Package config loads the façade's typed bootstrap Config, either from a
// TOML document (github.com/BurntSushi/toml, grounded in this corpus's
// tinyrange-rtg/lookbusy1344-arm_emulator lineage) or programmatically via
// Default, per SPEC_FULL.md §4.8/§2 (C13).
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/xenoarm/jit64/internal/logging"
)

// Config mirrors spec.md §4.8's init parameters plus the log level
// SPEC_FULL.md §4.8 adds.
type Config struct {
	PageSize           uint32 `toml:"page_size"`
	CacheSize          int    `toml:"cache_size"`
	SMCEnable          bool   `toml:"smc_enable"`
	ConservativeMemory bool   `toml:"conservative_memory"`
	LogLevel           string `toml:"log_level"`
}

// Default returns the configuration a programmatic embedder gets without
// supplying a file: 4096-byte pages (spec.md §4.7's stated default),
// SMC detection on, relaxed (non-conservative) memory ordering, and a
// CacheSize of 4096 bytes (the executable arena's region size, not an
// entry count), logging at info level.
func Default() Config {
	return Config{
		PageSize:           4096,
		CacheSize:          4096,
		SMCEnable:          true,
		ConservativeMemory: false,
		LogLevel:           "info",
	}
}

// Load parses a TOML document at path, filling in Default()'s values for
// any field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants the façade depends on at init: a
// power-of-two page size (required by the &^ (size-1) alignment math in
// spec.md §4.7) and a positive cache size.
func (c Config) Validate() error {
	if c.PageSize == 0 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("config: page_size %d is not a power of two", c.PageSize)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("config: cache_size must be positive, got %d", c.CacheSize)
	}
	return nil
}

// LogLevelValue parses LogLevel into a logging.Level, defaulting to info
// for an unrecognised or empty string.
func (c Config) LogLevelValue() logging.Level {
	switch c.LogLevel {
	case "error":
		return logging.LevelError
	case "warning", "warn":
		return logging.LevelWarning
	case "debug":
		return logging.LevelDebug
	default:
		return logging.LevelInfo
	}
}
