package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mimir-aip/waterquality/pkg/models"
	"github.com/mimir-aip/waterquality/pkg/watcher"
)

func newWatchCommand(root *rootOptions) *cobra.Command {
	var dir, modelName string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Score every CSV file dropped into an inbox directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			var kind models.ModelKind
			if modelName != "" {
				if kind, err = models.ParseModelKind(modelName); err != nil {
					return err
				}
			}
			if dir == "" {
				dir = filepath.Join(a.cfg.StorageDir, "inbox")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := watcher.New(dir, func(ctx context.Context, path string) error {
				prediction, err := a.service.Predict(ctx, &models.PredictRequest{
					DatasetPath: path,
					DatasetFile: filepath.Base(path),
					ModelKind:   kind,
				})
				if err != nil {
					return err
				}
				a.logger.Info("Scored inbox file",
					zap.String("file", filepath.Base(path)),
					zap.String("output", prediction.Run.OutputFile),
					zap.Int("rows", prediction.Run.TotalRows))
				return nil
			})
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Inbox directory (default <STORAGE_DIR>/inbox)")
	cmd.Flags().StringVar(&modelName, "model", "", "Model to use instead of the default")
	return cmd
}
