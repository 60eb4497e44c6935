package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <dataset.csv>",
		Short: "Describe a dataset and check it is ready for training or prediction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			analysis, err := a.service.Analyze(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderAnalysis(analysis))
			return nil
		},
	}
}
