package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mimir-aip/waterquality/pkg/models"
)

func newTrainCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train <dataset.csv>",
		Short: "Train and rank every model on a labelled dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			path, name, err := stage(a, args[0])
			if err != nil {
				return err
			}

			run, err := a.service.Train(cmd.Context(), &models.TrainRequest{
				DatasetPath: path,
				DatasetFile: name,
			})
			if run != nil {
				fmt.Fprint(cmd.OutOrStdout(), renderLeaderboard(run))
			}
			return err
		},
	}
	return cmd
}

// stage copies a local dataset into the uploads directory
func stage(a *app, path string) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	stored, err := a.service.Upload(name, f)
	if err != nil {
		return "", "", err
	}
	return stored, name, nil
}
