package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mimir-aip/waterquality/pkg/config"
	"github.com/mimir-aip/waterquality/pkg/logging"
	"github.com/mimir-aip/waterquality/pkg/metadatastore"
	"github.com/mimir-aip/waterquality/pkg/mlmodel"
	"github.com/mimir-aip/waterquality/pkg/mlmodel/training"
	"github.com/mimir-aip/waterquality/pkg/queue"
	"github.com/mimir-aip/waterquality/pkg/storage"
)

var version = "dev"

type rootOptions struct {
	envFile string
	debug   bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wqi",
		Short: "Water quality index training and prediction",
		Long: `wqi trains regression models that predict the Water Quality Index (WQI)
from physico-chemical measurements, and scores new datasets with them.

Run "wqi serve" for the HTTP API, or use the train, predict, analyze and
models commands directly against the local storage directory.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newTrainCommand(opts))
	cmd.AddCommand(newPredictCommand(opts))
	cmd.AddCommand(newScoreCommand(opts))
	cmd.AddCommand(newAnalyzeCommand(opts))
	cmd.AddCommand(newModelsCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

// app bundles the storage and services shared by every command
type app struct {
	cfg     *config.Config
	store   metadatastore.MetadataStore
	files   *storage.FileStore
	queue   *queue.Queue
	service *mlmodel.Service
	logger  *zap.Logger

	syncLogs func()
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.LoadConfig(opts.envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.debug {
		cfg.LogLevel = "debug"
	}

	logger, syncLogs, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	spaces := training.DefaultSearchSpaces()
	if cfg.SearchSpacesFile != "" {
		spaces, err = training.LoadSearchSpaces(cfg.SearchSpacesFile)
		if err != nil {
			syncLogs()
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		syncLogs()
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	store, err := metadatastore.Open(cfg.DatabaseURL, cfg.DatabasePath())
	if err != nil {
		syncLogs()
		return nil, err
	}
	files, err := storage.NewFileStore(cfg.UploadFolder, cfg.ModelFolder, cfg.ResultsFolder)
	if err != nil {
		store.Close()
		syncLogs()
		return nil, err
	}
	q, err := queue.NewQueue()
	if err != nil {
		files.Close()
		store.Close()
		syncLogs()
		return nil, err
	}

	service := mlmodel.NewService(store, files, q, mlmodel.Options{
		Training:      cfg.TrainingConfig(),
		Spaces:        spaces,
		DefaultModel:  cfg.DefaultModel,
		ImputeMissing: cfg.ImputeMissing,
		HistoryLimit:  cfg.HistoryLimit,
	})

	logger.Debug("Initialized storage",
		zap.String("environment", cfg.Environment),
		zap.String("storage_dir", cfg.StorageDir),
		zap.Bool("postgres", cfg.DatabaseURL != ""))

	return &app{
		cfg:      cfg,
		store:    store,
		files:    files,
		queue:    q,
		service:  service,
		logger:   logger,
		syncLogs: syncLogs,
	}, nil
}

func (a *app) uploadMaxAge() time.Duration {
	return time.Duration(a.cfg.UploadMaxAgeHours) * time.Hour
}

func (a *app) Close() {
	a.queue.Close()
	if err := a.files.Close(); err != nil {
		a.logger.Warn("Failed to close file store", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close metadata store", zap.Error(err))
	}
	a.syncLogs()
}
