package models

import "time"

// JobStatus represents the current status of a queued training job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Done reports whether the status is terminal
func (s JobStatus) Done() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// TrainingJob is an asynchronous training request waiting for the training worker
type TrainingJob struct {
	ID           string       `json:"job_id"`
	Status       JobStatus    `json:"status"`
	Priority     int          `json:"priority"`
	Request      TrainRequest `json:"request"`
	SubmittedAt  time.Time    `json:"submitted_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	RunID        string       `json:"run_id,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}
