package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// Environment profiles
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Config holds the application configuration
type Config struct {
	Environment string
	LogLevel    string
	LogFormat   string
	Port        string
	DatabaseURL string

	// Storage layout
	StorageDir    string
	UploadFolder  string
	ModelFolder   string
	ResultsFolder string

	// HTTP
	MaxUploadBytes int64
	CORSOrigins    []string

	// Training
	DefaultModel     models.ModelKind
	CVFolds          int
	RandomSeed       int64
	TestSize         float64
	TuningIterations int
	Workers          int
	ImputeMissing    bool
	SearchSpacesFile string

	// Reporting
	HistoryLimit int
	SampleLimit  int

	// Retention
	RetentionSchedule string
	RetentionKeepRuns int
	UploadMaxAgeHours int
}

// LoadConfig loads configuration from environment variables, after reading
// any .env files given (missing files are ignored).
func LoadConfig(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	env := strings.ToLower(getEnv("ENVIRONMENT", EnvDevelopment))
	storageDir := getEnv("STORAGE_DIR", "data")

	defaultIterations := 30
	defaultLogLevel := "info"
	defaultLogFormat := "json"
	switch env {
	case EnvTesting:
		defaultIterations = 5
		defaultLogLevel = "warn"
		defaultLogFormat = "console"
	case EnvDevelopment:
		defaultLogLevel = "debug"
		defaultLogFormat = "console"
	}

	config := &Config{
		Environment:       env,
		LogLevel:          getEnv("LOG_LEVEL", defaultLogLevel),
		LogFormat:         getEnv("LOG_FORMAT", defaultLogFormat),
		Port:              getEnv("PORT", "5000"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		StorageDir:        storageDir,
		UploadFolder:      getEnv("UPLOAD_FOLDER", filepath.Join(storageDir, "uploads")),
		ModelFolder:       getEnv("MODEL_FOLDER", filepath.Join(storageDir, "models")),
		ResultsFolder:     getEnv("RESULTS_FOLDER", filepath.Join(storageDir, "results")),
		MaxUploadBytes:    int64(getEnvAsInt("MAX_CONTENT_LENGTH", 50*1024*1024)),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
		CVFolds:           getEnvAsInt("CV_FOLDS", 5),
		RandomSeed:        int64(getEnvAsInt("RANDOM_STATE", 42)),
		TestSize:          getEnvAsFloat("TEST_SIZE", 0.2),
		TuningIterations:  getEnvAsInt("TUNING_ITERATIONS", defaultIterations),
		Workers:           getEnvAsInt("N_JOBS", 0),
		ImputeMissing:     getEnvAsBool("IMPUTE_MISSING", true),
		SearchSpacesFile:  getEnv("SEARCH_SPACES_FILE", ""),
		HistoryLimit:      getEnvAsInt("HISTORY_LIMIT", 50),
		SampleLimit:       getEnvAsInt("SAMPLE_LIMIT", 100),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "@daily"),
		RetentionKeepRuns: getEnvAsInt("RETENTION_KEEP_RUNS", 10),
		UploadMaxAgeHours: getEnvAsInt("UPLOAD_MAX_AGE_HOURS", 168),
	}

	kind, err := models.ParseModelKind(getEnv("DEFAULT_MODEL", string(models.ModelKindXGBoost)))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_MODEL: %w", err)
	}
	config.DefaultModel = kind

	// N_JOBS of 0 or -1 means all cores
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTesting:
	default:
		return fmt.Errorf("unknown ENVIRONMENT %q", c.Environment)
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_CONTENT_LENGTH must be positive")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("HISTORY_LIMIT must be positive")
	}
	if c.SampleLimit < 0 {
		return errors.New("SAMPLE_LIMIT cannot be negative")
	}
	if c.RetentionKeepRuns <= 0 {
		return errors.New("RETENTION_KEEP_RUNS must be positive")
	}
	tc := c.TrainingConfig()
	return tc.Validate()
}

// TrainingConfig returns the training knobs as recorded on a run
func (c *Config) TrainingConfig() models.TrainingConfig {
	return models.TrainingConfig{
		CVFolds:          c.CVFolds,
		TestSize:         c.TestSize,
		RandomSeed:       c.RandomSeed,
		TuningIterations: c.TuningIterations,
		Workers:          c.Workers,
	}
}

// DatabasePath is the SQLite file used when DATABASE_URL is unset
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StorageDir, "wqi.db")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
