package queue

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/telemetry"
	"github.com/openclaw/export-worker-go/internal/util"
)

// eventBuffer bounds the status events waiting for the SSE forwarder.
const eventBuffer = 256

// JobQueue is a bounded in-memory FIFO of jobs with a status table.
//
// Capacity is enforced by slots: Enqueue takes a slot before it takes the
// lock, so a full queue blocks producers without blocking readers. busy holds
// a single token that a consumer owns while its job is processing.
type JobQueue struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*model.Job
	order  []int64

	slots  chan struct{}
	ready  chan int64
	busy   chan struct{}
	active int64

	events chan model.JobEvent
	now    func() time.Time
}

func NewJobQueue(capacity int) *JobQueue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &JobQueue{
		jobs:   make(map[int64]*model.Job),
		slots:  make(chan struct{}, capacity),
		ready:  make(chan int64, capacity),
		busy:   make(chan struct{}, 1),
		events: make(chan model.JobEvent, eventBuffer),
		now:    time.Now,
	}
	q.busy <- struct{}{}
	return q
}

// Enqueue appends a job and returns its id. It blocks while the queue is at
// capacity until ctx is done.
func (q *JobQueue) Enqueue(ctx context.Context, jobType model.JobType, ownerID int64, payload map[string]any) (int64, error) {
	if !util.IsValidEnum(string(jobType), model.JobTypes) {
		return 0, apperrors.UnknownJobType(string(jobType))
	}
	if ownerID <= 0 {
		return 0, apperrors.InvalidInput("ownerId", "must be a positive id")
	}

	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	q.mu.Lock()
	q.nextID++
	job := &model.Job{
		ID:        q.nextID,
		Type:      jobType,
		OwnerID:   ownerID,
		Payload:   maps.Clone(payload),
		Status:    model.JobStatusPending,
		CreatedAt: q.now(),
	}
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.ready <- job.ID
	q.emit(job)
	q.mu.Unlock()

	telemetry.JobsEnqueued.WithLabelValues(string(jobType)).Inc()
	telemetry.QueueDepthGauge.Set(float64(len(q.ready)))

	log.Debug().Int64("jobId", job.ID).Str("jobType", string(jobType)).Int64("ownerId", ownerID).Msg("job enqueued")
	return job.ID, nil
}

// Dequeue waits for the next pending job and marks it processing. Only one
// job is processing at a time; a second caller waits until the first job is
// marked completed or failed.
func (q *JobQueue) Dequeue(ctx context.Context) (model.Job, error) {
	select {
	case <-q.busy:
	case <-ctx.Done():
		return model.Job{}, ctx.Err()
	}

	for {
		var id int64
		select {
		case id = <-q.ready:
		case <-ctx.Done():
			q.busy <- struct{}{}
			return model.Job{}, ctx.Err()
		}
		<-q.slots
		telemetry.QueueDepthGauge.Set(float64(len(q.ready)))

		q.mu.Lock()
		job, ok := q.jobs[id]
		if !ok || job.Status != model.JobStatusPending {
			// Resolved while waiting.
			q.mu.Unlock()
			continue
		}
		now := q.now()
		job.Status = model.JobStatusProcessing
		job.StartedAt = &now
		q.active = id
		q.emit(job)
		snapshot := copyJob(job)
		q.mu.Unlock()

		telemetry.ProcessingGauge.Set(1)
		return snapshot, nil
	}
}

func (q *JobQueue) MarkCompleted(id int64) {
	q.finish(id, model.JobStatusCompleted, "")
}

func (q *JobQueue) MarkFailed(id int64, reason string) {
	q.finish(id, model.JobStatusFailed, reason)
}

func (q *JobQueue) finish(id int64, status model.JobStatus, reason string) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		log.Warn().Int64("jobId", id).Str("status", string(status)).Msg("status update for unknown job ignored")
		return
	}
	if job.Status.IsTerminal() {
		q.mu.Unlock()
		return
	}

	now := q.now()
	job.Status = status
	job.FailureReason = reason
	job.FinishedAt = &now
	q.emit(job)

	wasActive := q.active == id
	if wasActive {
		q.active = 0
	}
	jobType := string(job.Type)
	var elapsed time.Duration
	if job.StartedAt != nil {
		elapsed = now.Sub(*job.StartedAt)
	}
	q.mu.Unlock()

	if status == model.JobStatusCompleted {
		telemetry.JobsCompleted.WithLabelValues(jobType).Inc()
	} else {
		telemetry.JobsFailed.WithLabelValues(jobType).Inc()
	}
	if wasActive {
		telemetry.JobDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
		telemetry.ProcessingGauge.Set(0)
		q.busy <- struct{}{}
	}
}

// StatusOf returns the job's status, or JobStatusUnknown for an id the queue
// never issued. Issued jobs are kept for the life of the process.
func (q *JobQueue) StatusOf(id int64) model.JobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[id]; ok {
		return job.Status
	}
	return model.JobStatusUnknown
}

func (q *JobQueue) Get(id int64) (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return copyJob(job), true
}

// TasksOwnedBy returns a snapshot of the owner's jobs in insertion order.
func (q *JobQueue) TasksOwnedBy(ownerID int64) []model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]model.Job, 0)
	for _, id := range q.order {
		if job := q.jobs[id]; job != nil && job.OwnerID == ownerID {
			result = append(result, copyJob(job))
		}
	}
	return result
}

// Len is the number of jobs waiting to be dequeued.
func (q *JobQueue) Len() int {
	return len(q.ready)
}

func (q *JobQueue) Capacity() int {
	return cap(q.slots)
}

// Events delivers every status change in the order it happened. Events are
// dropped when nobody drains the channel.
func (q *JobQueue) Events() <-chan model.JobEvent {
	return q.events
}

// emit must be called with q.mu held.
func (q *JobQueue) emit(job *model.Job) {
	event := model.JobEvent{
		JobID:   job.ID,
		Type:    job.Type,
		OwnerID: job.OwnerID,
		Status:  job.Status,
		Reason:  job.FailureReason,
		At:      q.now(),
	}
	select {
	case q.events <- event:
	default:
		log.Warn().Int64("jobId", job.ID).Str("status", string(job.Status)).Msg("job event buffer full, dropping event")
	}
}

func copyJob(job *model.Job) model.Job {
	c := *job
	c.Payload = maps.Clone(job.Payload)
	return c
}
