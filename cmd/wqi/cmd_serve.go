package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mimir-aip/waterquality/pkg/api"
	"github.com/mimir-aip/waterquality/pkg/scheduler"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with the training worker and retention scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if port != "" {
				a.cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched := scheduler.NewService(a.store, a.files, scheduler.Policy{
				Schedule:     a.cfg.RetentionSchedule,
				KeepRuns:     a.cfg.RetentionKeepRuns,
				HistoryLimit: a.cfg.HistoryLimit,
				UploadMaxAge: a.uploadMaxAge(),
			})
			if err := sched.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			defer sched.Stop()

			server := api.NewServer(a.service, api.Options{
				Port:           a.cfg.Port,
				CORSOrigins:    a.cfg.CORSOrigins,
				MaxUploadBytes: a.cfg.MaxUploadBytes,
				SampleLimit:    a.cfg.SampleLimit,
			})

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.service.RunWorker(ctx)
			})
			g.Go(func() error {
				return server.Start()
			})
			g.Go(func() error {
				<-ctx.Done()
				a.logger.Info("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				a.queue.Close()
				return server.Shutdown(shutdownCtx)
			})

			a.logger.Info("Water quality service started",
				zap.String("port", a.cfg.Port),
				zap.String("environment", a.cfg.Environment))

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Port to listen on (overrides PORT)")
	return cmd
}
