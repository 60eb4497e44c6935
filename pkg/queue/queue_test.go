package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/waterquality/pkg/models"
)

func newJob(id string, priority int) *models.TrainingJob {
	return &models.TrainingJob{
		ID:       id,
		Priority: priority,
		Request:  models.TrainRequest{DatasetPath: "/tmp/" + id + ".csv"},
	}
}

func TestEnqueueDequeue(t *testing.T) {
	q, err := NewQueue()
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(newJob("job-1", 0)))

	job, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.False(t, job.SubmittedAt.IsZero())

	job, err = q.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestPriorityThenFIFO(t *testing.T) {
	q, err := NewQueue()
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(newJob("low-1", 0)))
	require.NoError(t, q.Enqueue(newJob("high", 5)))
	require.NoError(t, q.Enqueue(newJob("low-2", 0)))

	var order []string
	for {
		job, err := q.Dequeue()
		require.NoError(t, err)
		if job == nil {
			break
		}
		order = append(order, job.ID)
	}
	assert.Equal(t, []string{"high", "low-1", "low-2"}, order)
}

func TestDuplicateJobRejected(t *testing.T) {
	q, _ := NewQueue()
	require.NoError(t, q.Enqueue(newJob("job-1", 0)))
	assert.Error(t, q.Enqueue(newJob("job-1", 0)))
}

func TestQueueLength(t *testing.T) {
	q, _ := NewQueue()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(newJob(fmt.Sprintf("job-%d", i), 0)))
	}
	n, err := q.QueueLength()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = q.Cancel("job-1")
	require.NoError(t, err)
	n, _ = q.QueueLength()
	assert.Equal(t, int64(2), n)

	_, err = q.Dequeue()
	require.NoError(t, err)
	n, _ = q.QueueLength()
	assert.Equal(t, int64(1), n)
}

func TestCancelledJobIsSkipped(t *testing.T) {
	q, _ := NewQueue()
	require.NoError(t, q.Enqueue(newJob("a", 0)))
	require.NoError(t, q.Enqueue(newJob("b", 0)))
	cancelled, err := q.Cancel("a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)

	job, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "b", job.ID)

	_, err = q.Cancel("b")
	assert.ErrorIs(t, err, ErrNotCancellable)
	_, err = q.Cancel("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPrunedCancelledJobDoesNotBreakDequeue(t *testing.T) {
	q, _ := NewQueue()
	q.retention = 1

	require.NoError(t, q.Enqueue(newJob("low", 0)))
	_, err := q.Cancel("low")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	for _, id := range []string{"first", "second"} {
		require.NoError(t, q.Enqueue(newJob(id, 5)))
		job, err := q.Dequeue()
		require.NoError(t, err)
		require.Equal(t, id, job.ID)
		require.NoError(t, q.UpdateJobStatus(id, models.JobStatusCompleted, "", ""))
		time.Sleep(time.Millisecond)
	}

	_, err = q.GetJob("low")
	assert.ErrorIs(t, err, ErrJobNotFound)

	job, err := q.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, 0, q.pq.Len())
}

func TestDequeueSkipsMissingJobs(t *testing.T) {
	q, _ := NewQueue()
	require.NoError(t, q.Enqueue(newJob("gone", 9)))
	require.NoError(t, q.Enqueue(newJob("kept", 0)))
	delete(q.jobs, "gone")

	job, err := q.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "kept", job.ID)
}

func TestUpdateJobStatus(t *testing.T) {
	q, _ := NewQueue()
	require.NoError(t, q.Enqueue(newJob("job-1", 0)))

	require.NoError(t, q.UpdateJobStatus("job-1", models.JobStatusRunning, "", ""))
	job, err := q.GetJob("job-1")
	require.NoError(t, err)
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, q.UpdateJobStatus("job-1", models.JobStatusCompleted, "run-9", ""))
	job, _ = q.GetJob("job-1")
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "run-9", job.RunID)
	require.NotNil(t, job.CompletedAt)

	assert.Error(t, q.UpdateJobStatus("missing", models.JobStatusFailed, "", "x"))
	_, err = q.GetJob("missing")
	assert.Error(t, err)
}

func TestFinishedJobsArePruned(t *testing.T) {
	q, _ := NewQueue()
	q.retention = 2
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("job-%d", i)
		require.NoError(t, q.Enqueue(newJob(id, 0)))
		_, err := q.Dequeue()
		require.NoError(t, err)
		require.NoError(t, q.UpdateJobStatus(id, models.JobStatusCompleted, "", ""))
		time.Sleep(time.Millisecond)
	}

	_, err := q.GetJob("job-0")
	assert.Error(t, err)
	_, err = q.GetJob("job-3")
	assert.NoError(t, err)
}

func TestNextBlocksUntilEnqueue(t *testing.T) {
	q, _ := NewQueue()
	defer q.Close()

	got := make(chan *models.TrainingJob, 1)
	go func() {
		job, err := q.Next(context.Background())
		if err == nil {
			got <- job
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(newJob("late", 0)))

	select {
	case job := <-got:
		assert.Equal(t, "late", job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return the enqueued job")
	}
}

func TestNextHonoursContextAndClose(t *testing.T) {
	q, _ := NewQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Close())
	_, err = q.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Enqueue(newJob("x", 0)), ErrClosed)
}
