package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mimir-aip/waterquality/pkg/models"
)

var (
	// ErrClosed is returned by operations on a closed queue
	ErrClosed = errors.New("queue closed")

	// ErrJobNotFound is returned for unknown or pruned job IDs
	ErrJobNotFound = errors.New("job not found")

	// ErrNotCancellable is returned when cancelling a job that already started
	ErrNotCancellable = errors.New("job is no longer queued")
)

// DefaultJobRetention is the number of finished jobs kept for status lookups
const DefaultJobRetention = 100

// Queue provides in-memory training job queue operations with priority support
type Queue struct {
	mu        sync.RWMutex
	pq        *PriorityQueue
	jobs      map[string]*models.TrainingJob
	seq       uint64
	retention int
	ready     chan struct{}
	closed    bool
}

// NewQueue creates a new in-memory queue instance
func NewQueue() (*Queue, error) {
	pq := make(PriorityQueue, 0)
	heap.Init(&pq)

	return &Queue{
		pq:        &pq,
		jobs:      make(map[string]*models.TrainingJob),
		retention: DefaultJobRetention,
		ready:     make(chan struct{}, 1),
	}, nil
}

// Enqueue adds a training job to the queue. Higher priority jobs are served
// first; equal priorities are served in submission order.
func (q *Queue) Enqueue(job *models.TrainingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if _, exists := q.jobs[job.ID]; exists {
		return fmt.Errorf("job already queued: %s", job.ID)
	}

	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	q.seq++
	heap.Push(q.pq, &PriorityQueueItem{
		JobID:    job.ID,
		Priority: job.Priority,
		seq:      q.seq,
	})
	q.jobs[job.ID] = job

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue retrieves the next queued job and marks it running. It returns nil
// when no job is waiting.
func (q *Queue) Dequeue() (*models.TrainingJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	for q.pq.Len() > 0 {
		item := heap.Pop(q.pq).(*PriorityQueueItem)
		job, ok := q.jobs[item.JobID]
		// pruned or cancelled while waiting
		if !ok || job.Status != models.JobStatusQueued {
			continue
		}
		now := time.Now().UTC()
		job.Status = models.JobStatusRunning
		job.StartedAt = &now
		copied := *job
		return &copied, nil
	}
	return nil, nil
}

// Next blocks until a job is available, the context is done or the queue
// is closed
func (q *Queue) Next(ctx context.Context) (*models.TrainingJob, error) {
	for {
		job, err := q.Dequeue()
		if err != nil || job != nil {
			return job, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, ok := <-q.ready:
			if !ok {
				return nil, ErrClosed
			}
		}
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(jobID string) (*models.TrainingJob, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	copied := *job
	return &copied, nil
}

// UpdateJobStatus updates the status of a job. runID is recorded when set.
func (q *Queue) UpdateJobStatus(jobID string, status models.JobStatus, runID, errorMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	job.Status = status
	if runID != "" {
		job.RunID = runID
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}

	now := time.Now().UTC()
	switch {
	case status == models.JobStatusRunning:
		job.StartedAt = &now
	case status.Done():
		job.CompletedAt = &now
		q.pruneFinished()
	}
	return nil
}

// Cancel marks a queued job as cancelled and removes it from the heap.
// Running or finished jobs are left alone.
func (q *Queue) Cancel(jobID string) (*models.TrainingJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status != models.JobStatusQueued {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCancellable, jobID, job.Status)
	}
	for _, item := range *q.pq {
		if item.JobID == jobID {
			heap.Remove(q.pq, item.index)
			break
		}
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = &now
	q.pruneFinished()

	copied := *job
	return &copied, nil
}

// QueueLength returns the number of jobs waiting to run
func (q *Queue) QueueLength() (int64, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var n int64
	for _, item := range *q.pq {
		if job, ok := q.jobs[item.JobID]; ok && job.Status == models.JobStatusQueued {
			n++
		}
	}
	return n, nil
}

// Close wakes any waiting consumer and rejects further work
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ready)
	}
	return nil
}

// pruneFinished drops the oldest finished jobs beyond the retention limit.
// Callers hold q.mu.
func (q *Queue) pruneFinished() {
	var finished []*models.TrainingJob
	for _, job := range q.jobs {
		if job.Status.Done() {
			finished = append(finished, job)
		}
	}
	if len(finished) <= q.retention {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CompletedAt.Before(*finished[j].CompletedAt)
	})
	for _, job := range finished[:len(finished)-q.retention] {
		delete(q.jobs, job.ID)
	}
}

// PriorityQueueItem represents an item in the priority queue
type PriorityQueueItem struct {
	JobID    string
	Priority int // Higher value = served first
	seq      uint64
	index    int // Index in heap
}

// PriorityQueue implements heap.Interface
type PriorityQueue []*PriorityQueueItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority > pq[j].Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *PriorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*PriorityQueueItem)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}
