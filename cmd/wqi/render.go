package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mimir-aip/waterquality/pkg/classify"
	"github.com/mimir-aip/waterquality/pkg/mlmodel"
	"github.com/mimir-aip/waterquality/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("6")).
			MarginBottom(1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	bestStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// renderLeaderboard shows every candidate of a run ordered by rank, failed ones last
func renderLeaderboard(run *models.TrainingRun) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Training run %s", run.ID)))
	b.WriteString("\n")

	records := append([]*models.ModelRecord(nil), run.Models...)
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i].Rank, records[j].Rank
		if ri == 0 {
			return false
		}
		return rj == 0 || ri < rj
	})

	t := newTable("Rank", "Model", "CV RMSE", "Test RMSE", "R²", "MAE", "Class acc.", "Version")
	for _, r := range records {
		if r.Status == models.ModelStatusFailed || r.Metrics == nil {
			t.Row("-", r.Name, "failed", "", "", "", "", truncate(r.Error, 30))
			continue
		}
		name := r.Name
		if r.IsBest {
			name = bestStyle.Render(name + " *")
		}
		t.Row(
			fmt.Sprintf("%d", r.Rank),
			name,
			fmt.Sprintf("%.3f ± %.3f", r.Metrics.CVRMSE, r.Metrics.CVRMSEStd),
			fmt.Sprintf("%.3f", r.Metrics.RMSE),
			fmt.Sprintf("%.4f", r.Metrics.R2),
			fmt.Sprintf("%.3f", r.Metrics.MAE),
			fmt.Sprintf("%.1f%%", r.Metrics.ClassAccuracy*100),
			r.Version,
		)
	}
	b.WriteString(t.String())
	b.WriteString("\n")

	b.WriteString(mutedStyle.Render(fmt.Sprintf("%d rows (%d train / %d test), %d imputed cells, %d skipped rows, %.1fs",
		run.DatasetRows, run.TrainSize, run.TestSize, run.ImputedCells, len(run.SkippedRows), run.DurationSeconds)))
	b.WriteString("\n")
	return b.String()
}

// renderPrediction summarises a prediction run
func renderPrediction(run *models.PredictionRun) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Predictions with %s (%s)", run.ModelName, run.ModelVersion)))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Rows: %d  Predicted: %d  Failed: %d\n", run.TotalRows, run.TotalPredictions, run.FailedRows)
	if s := run.Statistics; s != nil {
		fmt.Fprintf(&b, "WQI mean %.2f  median %.2f  min %.2f  max %.2f  std %.2f\n", s.Mean, s.Median, s.Min, s.Max, s.Std)
	}

	t := newTable("Class", "Count")
	for _, label := range classify.Labels() {
		t.Row(string(label), fmt.Sprintf("%d", run.ClassDistribution[label]))
	}
	b.WriteString(t.String())
	b.WriteString("\n")
	return b.String()
}

// renderScore shows the prediction for a single sample
func renderScore(result *models.PredictionResult, modelName, version string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Prediction with %s (%s)", modelName, version)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "WQI %.2f  %s\n", result.PredictedWQI, bestStyle.Render(string(result.Class)))
	return b.String()
}

// renderAnalysis shows the column statistics and readiness of a dataset
func renderAnalysis(a *models.DatasetAnalysis) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d rows, %d columns", a.Rows, a.Columns)))
	b.WriteString("\n")

	t := newTable("Column", "Type", "Missing", "Mean", "Std", "Min", "Max")
	for _, name := range a.ColumnNames {
		row := []string{name, a.DTypes[name], fmt.Sprintf("%d", a.MissingValues[name]), "", "", "", ""}
		if s := a.Statistics[name]; s != nil {
			row[3] = fmt.Sprintf("%.3f", s.Mean)
			row[4] = fmt.Sprintf("%.3f", s.Std)
			row[5] = fmt.Sprintf("%.3f", s.Min)
			row[6] = fmt.Sprintf("%.3f", s.Max)
		}
		t.Row(row...)
	}
	b.WriteString(t.String())
	b.WriteString("\n")

	v := a.Validation
	fmt.Fprintf(&b, "Ready for training: %s\nReady for prediction: %s\n", yesNo(v.ReadyForTraining), yesNo(v.ReadyForPrediction))
	if len(v.MissingFeatures) > 0 {
		b.WriteString(errorStyle.Render("Missing: " + strings.Join(v.MissingFeatures, ", ")))
		b.WriteString("\n")
	}
	return b.String()
}

// renderModels lists stored artifacts
func renderModels(summaries []*mlmodel.ModelSummary) string {
	if len(summaries) == 0 {
		return mutedStyle.Render("No trained models") + "\n"
	}
	t := newTable("Version", "Model", "CV RMSE", "R²", "Size", "Created")
	for _, s := range summaries {
		name := s.Kind.DisplayName()
		if s.IsBest {
			name = bestStyle.Render(name + " *")
		}
		cv, r2 := "", ""
		if s.Metrics != nil {
			cv = fmt.Sprintf("%.3f", s.Metrics.CVRMSE)
			r2 = fmt.Sprintf("%.4f", s.Metrics.R2)
		}
		t.Row(s.Version, name, cv, r2, fmt.Sprintf("%d", s.Size), s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return t.String() + "\n"
}

func yesNo(ok bool) string {
	if ok {
		return bestStyle.Render("yes")
	}
	return errorStyle.Render("no")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
