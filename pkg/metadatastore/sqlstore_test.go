package metadatastore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/waterquality/pkg/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id string, at time.Time) *models.TrainingRun {
	return &models.TrainingRun{
		ID:          id,
		Status:      models.RunStatusCompleted,
		DatasetFile: "water.csv",
		DatasetRows: 120,
		BestModel:   models.ModelKindXGBoost,
		BestVersion: "v-" + id,
		Models: []*models.ModelRecord{
			{
				ID:      id + "-xgb",
				RunID:   id,
				Kind:    models.ModelKindXGBoost,
				Name:    "XGBoost",
				Status:  models.ModelStatusTrained,
				IsBest:  true,
				Rank:    1,
				Version: "v-" + id,
				Metrics: &models.PerformanceMetrics{CVRMSE: 2.5, RMSE: 2.1},
				Hyperparameters: map[string]interface{}{
					"max_depth": float64(6),
				},
				CreatedAt: at,
			},
			{
				ID:        id + "-svr",
				RunID:     id,
				Kind:      models.ModelKindSVR,
				Name:      "SVR",
				Status:    models.ModelStatusFailed,
				Error:     "did not converge",
				CreatedAt: at,
			},
		},
		CreatedAt: at,
	}
}

func TestOpenChoosesSQLiteForPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wqi.db")
	store, err := Open("", path)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.CountTrainingRuns()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSaveAndGetTrainingRun(t *testing.T) {
	store := newTestStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTrainingRun(testRun("run-1", at)))

	got, err := store.GetTrainingRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "water.csv", got.DatasetFile)
	assert.Equal(t, models.ModelKindXGBoost, got.BestModel)
	require.Len(t, got.Models, 2)
	assert.Equal(t, 1, got.ModelsTrained())
	assert.True(t, got.CreatedAt.Equal(at))

	_, err = store.GetTrainingRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveTrainingRunUpserts(t *testing.T) {
	store := newTestStore(t)
	run := testRun("run-1", time.Now())
	require.NoError(t, store.SaveTrainingRun(run))

	run.Status = models.RunStatusFailed
	run.Error = "boom"
	require.NoError(t, store.SaveTrainingRun(run))

	n, err := store.CountTrainingRuns()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetTrainingRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestListTrainingRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.SaveTrainingRun(testRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := store.ListTrainingRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)

	all, err := store.ListTrainingRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	latest, err := store.LatestTrainingRun()
	require.NoError(t, err)
	assert.Equal(t, "run-3", latest.ID)
}

func TestLatestTrainingRunEmpty(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LatestTrainingRun()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModelRecordsByVersion(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveTrainingRun(testRun("run-1", time.Now())))

	record, err := store.GetModelRecordByVersion("v-run-1")
	require.NoError(t, err)
	assert.Equal(t, models.ModelKindXGBoost, record.Kind)
	assert.Equal(t, 2.5, record.Metrics.CVRMSE)
	assert.Equal(t, float64(6), record.Hyperparameters["max_depth"])

	_, err = store.GetModelRecordByVersion("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	records, err := store.ListModelRecords()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPruneTrainingRuns(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveTrainingRun(testRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	removed, err := store.PruneTrainingRuns(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	runs, err := store.ListTrainingRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-4", runs[0].ID)

	records, err := store.ListModelRecords()
	require.NoError(t, err)
	assert.Len(t, records, 4)

	removed, err = store.PruneTrainingRuns(10)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestPredictionRuns(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LatestPredictionRun()
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SavePredictionRun(&models.PredictionRun{
			ID:               fmt.Sprintf("pred-%d", i),
			ModelKind:        models.ModelKindRidge,
			ModelName:        "Ridge",
			ModelVersion:     "abc",
			TotalRows:        10,
			TotalPredictions: 9,
			FailedRows:       1,
			ClassDistribution: map[models.WQIClass]int{
				models.WQIClassGood: 9,
			},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	latest, err := store.LatestPredictionRun()
	require.NoError(t, err)
	assert.Equal(t, "pred-2", latest.ID)
	assert.Equal(t, 9, latest.ClassDistribution[models.WQIClassGood])

	runs, err := store.ListPredictionRuns(0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
