package metadatastore

import (
	"errors"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// MetadataStore persists training history, model records and prediction
// summaries. Model payloads themselves live in the file store.
type MetadataStore interface {
	// Training run operations
	SaveTrainingRun(run *models.TrainingRun) error
	GetTrainingRun(id string) (*models.TrainingRun, error)
	LatestTrainingRun() (*models.TrainingRun, error)
	ListTrainingRuns(limit int) ([]*models.TrainingRun, error)
	CountTrainingRuns() (int, error)
	PruneTrainingRuns(keep int) (int, error)

	// Model record operations
	ListModelRecords() ([]*models.ModelRecord, error)
	GetModelRecordByVersion(version string) (*models.ModelRecord, error)

	// Prediction run operations
	SavePredictionRun(run *models.PredictionRun) error
	LatestPredictionRun() (*models.PredictionRun, error)
	ListPredictionRuns(limit int) ([]*models.PredictionRun, error)

	Close() error
}
