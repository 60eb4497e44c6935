package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mimir-aip/waterquality/pkg/models"
)

func newPredictCommand(root *rootOptions) *cobra.Command {
	var modelName, version, out string

	cmd := &cobra.Command{
		Use:   "predict <dataset.csv>",
		Short: "Predict WQI and quality class for every row of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			req := &models.PredictRequest{ModelVersion: version}
			if modelName != "" {
				kind, err := models.ParseModelKind(modelName)
				if err != nil {
					return err
				}
				req.ModelKind = kind
			}
			req.DatasetPath, req.DatasetFile, err = stage(a, args[0])
			if err != nil {
				return err
			}

			prediction, err := a.service.Predict(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderPrediction(prediction.Run))

			if out == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Results: %s\n", prediction.Run.OutputFile)
				return nil
			}
			if err := exportResult(a, prediction.Run.OutputFile, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelName, "model", "", "Model to use (ridge, svr, random_forest, gradient_boosting, xgboost)")
	cmd.Flags().StringVar(&version, "version", "", "Artifact version to use instead of the latest")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Copy the results CSV to this path")
	return cmd
}

func exportResult(a *app, name, dest string) error {
	src, err := a.service.OpenResult(name)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return dst.Close()
}
