package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Model.Estimators)
	assert.Equal(t, 10, cfg.Model.MaxDepth)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.InDelta(t, 0.2, cfg.Model.TestFraction, 1e-9)
	assert.Equal(t, 2000, cfg.Clean.MinListYear)
	assert.Equal(t, 2020, cfg.Clean.MaxListYear)
	assert.Equal(t, 20, cfg.Clean.MaxYearsUntilSold)
	assert.Equal(t, "models", cfg.Model.ArtifactsDir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("URBANYTICS_SERVER_PORT", "9999")
	os.Setenv("URBANYTICS_STORE_DRIVER", "sqlite")
	defer os.Unsetenv("URBANYTICS_SERVER_PORT")
	defer os.Unsetenv("URBANYTICS_STORE_DRIVER")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
}

func TestInitLogger(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)

	err = InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}
