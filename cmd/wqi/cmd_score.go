package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mimir-aip/waterquality/pkg/models"
)

func newScoreCommand(root *rootOptions) *cobra.Command {
	var modelName, version string

	cmd := &cobra.Command{
		Use:   "score <column=value>...",
		Short: "Predict WQI and quality class for a single sample",
		Example: "  wqi score Temp=21 pH=7.2 Conductivity=450 Nitrate=2.5 \\\n" +
			"    Fecal_Coliform=40 Total_Coliform=120 TDS=300 Fluoride=0.4",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseSample(args)
			if err != nil {
				return err
			}

			var kind models.ModelKind
			if modelName != "" {
				if kind, err = models.ParseModelKind(modelName); err != nil {
					return err
				}
			}

			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			result, info, err := a.service.PredictSample(kind, version, raw)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderScore(result, info.Kind.DisplayName(), info.Version))
			return nil
		},
	}

	cmd.Flags().StringVar(&modelName, "model", "", "Model to use (ridge, svr, random_forest, gradient_boosting, xgboost)")
	cmd.Flags().StringVar(&version, "version", "", "Artifact version to use instead of the latest")
	return cmd
}

// parseSample reads column=value pairs; later pairs override earlier ones
func parseSample(args []string) (models.RawSample, error) {
	raw := make(models.RawSample, len(args))
	for _, arg := range args {
		column, value, ok := strings.Cut(arg, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid measurement %q, expected column=value", arg)
		}
		raw[column] = value
	}
	return raw, nil
}
