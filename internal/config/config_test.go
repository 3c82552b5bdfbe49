package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, "models", cfg.ModelDirectory)
	require.Equal(t, "predictions.db", cfg.DatabasePath)
	require.InDelta(t, 0.4, cfg.HeatmapAlpha, 1e-9)
	require.Equal(t, int64(10<<20), cfg.MaxUploadSize)
	require.Equal(t, 40_000_000, cfg.MaxImagePixels)
	require.Equal(t, "@daily", cfg.MaintenanceSchedule)
	require.True(t, cfg.WatchModels)
	require.Equal(t, ":8000", cfg.Addr())
	require.Zero(t, cfg.Retention())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HEATMAP_ALPHA", "0.7")
	t.Setenv("RETENTION_DAYS", "30")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.InDelta(t, 0.7, cfg.HeatmapAlpha, 1e-9)
	require.Equal(t, 30*24*time.Hour, cfg.Retention())
}

func TestLoad_DotEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("MODEL_DIR=/srv/models\nDB_PATH=/srv/data.db\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("MODEL_DIR")
		os.Unsetenv("DB_PATH")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	require.Equal(t, "/srv/models", cfg.ModelDirectory)
	require.Equal(t, "/srv/data.db", cfg.DatabasePath)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"alpha above one", "HEATMAP_ALPHA", "1.5"},
		{"negative retention", "RETENTION_DAYS", "-1"},
		{"port out of range", "PORT", "70000"},
		{"not a number", "PORT", "eighty"},
		{"zero pixel budget", "MAX_IMAGE_PIXELS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
		})
	}
}
