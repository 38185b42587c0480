package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate_RejectsNonPowerOfTwoPageSize(t *testing.T) {
	cfg := Default()
	cfg.PageSize = 4097
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveCacheSize(t *testing.T) {
	cfg := Default()
	cfg.CacheSize = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_OverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jit64.toml")
	err := os.WriteFile(path, []byte("page_size = 8192\nsmc_enable = false\nlog_level = \"debug\"\n"), 0o644)
	assert.NoError(t, err)

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, uint32(8192), cfg.PageSize)
	assert.False(t, cfg.SMCEnable)
	assert.Equal(t, 4096, cfg.CacheSize) // untouched field keeps Default()'s value
}

func TestLoad_RejectsInvalidResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jit64.toml")
	err := os.WriteFile(path, []byte("page_size = 1000\n"), 0o644)
	assert.NoError(t, err)

	_, err = Load(path)
	assert.Error(t, err)
}
