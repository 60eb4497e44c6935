package mlmodel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mimir-aip/waterquality/pkg/models"
	"github.com/mimir-aip/waterquality/pkg/queue"
)

// Submit queues a training request for the background worker
func (s *Service) Submit(req *models.TrainRequest, priority int) (*models.TrainingJob, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("asynchronous training is not enabled")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := &models.TrainingJob{
		ID:          uuid.New().String(),
		Status:      models.JobStatusQueued,
		Priority:    priority,
		Request:     *req,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, fmt.Errorf("failed to enqueue training job: %w", err)
	}

	s.logger.Info("Training job queued", zap.String("job_id", job.ID), zap.String("dataset", req.DatasetFile))
	return s.queue.GetJob(job.ID)
}

// GetJob returns a queued, running or finished training job
func (s *Service) GetJob(id string) (*models.TrainingJob, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	return s.queue.GetJob(id)
}

// CancelJob withdraws a training job that has not started yet
func (s *Service) CancelJob(id string) (*models.TrainingJob, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	job, err := s.queue.Cancel(id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Training job cancelled", zap.String("job_id", id))
	return job, nil
}

// RunWorker drains the training queue until ctx is cancelled or the queue
// is closed. Jobs run one at a time.
func (s *Service) RunWorker(ctx context.Context) error {
	if s.queue == nil {
		return fmt.Errorf("asynchronous training is not enabled")
	}
	s.logger.Info("Training worker started")
	defer s.logger.Info("Training worker stopped")

	for {
		job, err := s.queue.Next(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		s.runJob(ctx, job)
	}
}

func (s *Service) runJob(ctx context.Context, job *models.TrainingJob) {
	logger := s.logger.With(zap.String("job_id", job.ID))
	logger.Info("Training job started")

	req := job.Request
	var run *models.TrainingRun
	var err error
	for {
		run, err = s.Train(ctx, &req)
		// a synchronous run holds the lock; wait for it instead of failing
		if !errors.Is(err, ErrTrainingInProgress) {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(time.Second):
			continue
		}
		break
	}

	status := models.JobStatusCompleted
	runID, msg := "", ""
	if err != nil {
		status = models.JobStatusFailed
		msg = err.Error()
		if ctx.Err() != nil {
			status = models.JobStatusCancelled
		}
		logger.Warn("Training job failed", zap.Error(err))
	} else {
		runID = run.ID
		logger.Info("Training job completed", zap.String("run_id", run.ID))
	}
	if err := s.queue.UpdateJobStatus(job.ID, status, runID, msg); err != nil {
		logger.Error("Failed to update job status", zap.Error(err))
	}
}
