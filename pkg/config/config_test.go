package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// TestLoadConfig tests configuration loading
func TestLoadConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "9090")
	t.Setenv("CV_FOLDS", "3")
	t.Setenv("TEST_SIZE", "0.25")
	t.Setenv("N_JOBS", "2")
	t.Setenv("DEFAULT_MODEL", "RandomForest")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("IMPUTE_MISSING", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.CVFolds)
	assert.Equal(t, 0.25, cfg.TestSize)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 30, cfg.TuningIterations)
	assert.Equal(t, models.ModelKindRandomForest, cfg.DefaultModel)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.ImputeMissing)
}

// TestLoadConfigDefaults tests default values
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, 5, cfg.CVFolds)
	assert.Equal(t, int64(42), cfg.RandomSeed)
	assert.Equal(t, 0.2, cfg.TestSize)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, models.ModelKindXGBoost, cfg.DefaultModel)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 100, cfg.SampleLimit)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.True(t, cfg.ImputeMissing)
	assert.Greater(t, cfg.Workers, 0)
	assert.Equal(t, filepath.Join("data", "uploads"), cfg.UploadFolder)
	assert.Equal(t, filepath.Join("data", "wqi.db"), cfg.DatabasePath())
}

func TestTestingProfile(t *testing.T) {
	t.Setenv("ENVIRONMENT", "testing")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.TuningIterations)

	t.Setenv("TUNING_ITERATIONS", "7")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.TuningIterations)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"ENVIRONMENT":   "staging",
		"DEFAULT_MODEL": "LinearRegression",
		"CV_FOLDS":      "1",
		"TEST_SIZE":     "1.5",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=7070\nHISTORY_LIMIT=20\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("HISTORY_LIMIT")
	})

	cfg, err := LoadConfig(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, 20, cfg.HistoryLimit)
}
