package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mimir-aip/waterquality/pkg/metadatastore"
	"github.com/mimir-aip/waterquality/pkg/storage"
)

// RetentionJobName is the name of the built-in housekeeping job
const RetentionJobName = "retention"

// DefaultArtifactGrace is how long a fresh artifact is kept before any run
// has to reference it. Training writes artifacts before it records the run.
const DefaultArtifactGrace = time.Hour

// Policy controls what the retention job keeps
type Policy struct {
	Schedule      string
	KeepRuns      int
	HistoryLimit  int
	UploadMaxAge  time.Duration
	ArtifactGrace time.Duration // 0 means DefaultArtifactGrace
}

// Report summarises one retention pass
type Report struct {
	UploadsRemoved   int `json:"uploads_removed"`
	ResultsRemoved   int `json:"results_removed"`
	ArtifactsRemoved int `json:"artifacts_removed"`
	RunsPruned       int `json:"runs_pruned"`
}

// Service runs periodic housekeeping jobs
type Service struct {
	store  metadatastore.MetadataStore
	files  *storage.FileStore
	policy Policy
	cron   *cron.Cron
	logger *zap.Logger

	mu   sync.Mutex
	jobs map[string]cron.EntryID // Maps job name to cron entry ID
	now  func() time.Time
}

// NewService creates a new scheduler service
func NewService(store metadatastore.MetadataStore, files *storage.FileStore, policy Policy) *Service {
	if policy.ArtifactGrace <= 0 {
		policy.ArtifactGrace = DefaultArtifactGrace
	}
	return &Service{
		store:  store,
		files:  files,
		policy: policy,
		cron:   cron.New(),
		logger: zap.L().Named("scheduler"),
		jobs:   make(map[string]cron.EntryID),
		now:    time.Now,
	}
}

// Start schedules the retention job and starts the scheduler
func (s *Service) Start() error {
	if s.policy.Schedule != "" {
		err := s.AddJob(RetentionJobName, s.policy.Schedule, func() {
			if _, err := s.RunRetention(); err != nil {
				s.logger.Error("Retention job failed", zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("Job scheduler started",
		zap.String("retention_schedule", s.policy.Schedule),
		zap.Time("next_retention", s.NextRun(RetentionJobName)))
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Job scheduler stopped")
}

// AddJob schedules fn under name, replacing any job of the same name
func (s *Service) AddJob(name, spec string, fn func()) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
	}
	s.jobs[name] = s.cron.Schedule(schedule, cron.FuncJob(fn))
	return nil
}

// NextRun returns the next activation of a job, or the zero time when the
// job is unknown or the scheduler is not running
func (s *Service) NextRun(name string) time.Time {
	s.mu.Lock()
	entryID, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(entryID).Next
}

// RunRetention removes expired uploads and results, prunes training history
// and deletes artifacts not referenced by the newest KeepRuns runs
func (s *Service) RunRetention() (*Report, error) {
	report := &Report{}

	if s.policy.UploadMaxAge > 0 {
		cutoff := s.now().Add(-s.policy.UploadMaxAge)
		n, err := s.files.PruneUploads(cutoff)
		if err != nil {
			return report, fmt.Errorf("failed to prune uploads: %w", err)
		}
		report.UploadsRemoved = n

		if n, err = s.files.PruneResults(cutoff); err != nil {
			return report, fmt.Errorf("failed to prune results: %w", err)
		}
		report.ResultsRemoved = n
	}

	if s.policy.HistoryLimit > 0 {
		n, err := s.store.PruneTrainingRuns(s.policy.HistoryLimit)
		if err != nil {
			return report, err
		}
		report.RunsPruned = n
	}

	if s.policy.KeepRuns > 0 {
		n, err := s.pruneArtifacts()
		if err != nil {
			return report, err
		}
		report.ArtifactsRemoved = n
	}

	s.logger.Info("Retention pass finished",
		zap.Int("uploads_removed", report.UploadsRemoved),
		zap.Int("results_removed", report.ResultsRemoved),
		zap.Int("artifacts_removed", report.ArtifactsRemoved),
		zap.Int("runs_pruned", report.RunsPruned))
	return report, nil
}

// pruneArtifacts keeps every artifact named by one of the newest KeepRuns
// training runs, and every artifact younger than ArtifactGrace. Nothing is
// removed while no run exists.
func (s *Service) pruneArtifacts() (int, error) {
	runs, err := s.store.ListTrainingRuns(s.policy.KeepRuns)
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, nil
	}
	keep := make(map[string]bool)
	for _, run := range runs {
		for _, m := range run.Models {
			if m.Version != "" {
				keep[m.Version] = true
			}
		}
	}

	artifacts, err := s.files.ListArtifacts()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.policy.ArtifactGrace)
	removed := 0
	for _, a := range artifacts {
		if keep[a.Version] || a.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.files.DeleteArtifact(a.Version); err != nil {
			return removed, fmt.Errorf("failed to delete artifact %s: %w", a.Version, err)
		}
		removed++
	}
	return removed, nil
}
