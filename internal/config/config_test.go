package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "firmenradar.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrentCompanies)
	assert.Equal(t, 45, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, "https://www.handelsregister.de", cfg.Sources.Handelsregister.BaseURL)
	assert.Equal(t, "sessions.json", cfg.Sessions.Path)
	assert.Equal(t, "pdftotext", cfg.Parser.PdfToTextPath)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("FIRMENRADAR_STORE_DRIVER", "postgres")
	t.Setenv("FIRMENRADAR_STORE_DATABASE_URL", "postgres://localhost/firmenradar")
	t.Setenv("FIRMENRADAR_SERVER_PORT", "9090")
	t.Setenv("FIRMENRADAR_LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/firmenradar", cfg.Store.DatabaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
}
