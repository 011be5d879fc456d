package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/transport"
)

// Handler executes a job of one type. A returned error fails the job; its
// user-facing text is forwarded to the owner.
type Handler func(ctx context.Context, job model.Job) error

// Queue is the consumer side of the job queue.
type Queue interface {
	Dequeue(ctx context.Context) (model.Job, error)
	MarkCompleted(id int64)
	MarkFailed(id int64, reason string)
}

// Runner is the single consumer of the job queue.
type Runner struct {
	queue    Queue
	notifier transport.Notifier
	handlers map[model.JobType]Handler
}

func NewRunner(queue Queue, notifier transport.Notifier) *Runner {
	return &Runner{
		queue:    queue,
		notifier: notifier,
		handlers: make(map[model.JobType]Handler),
	}
}

// RegisterHandler binds a handler to a job type.
func (r *Runner) RegisterHandler(jobType model.JobType, handler Handler) {
	if jobType == "" || handler == nil {
		return
	}
	r.handlers[jobType] = handler
}

// Run processes jobs until ctx is cancelled. It returns nil on cancellation
// and an error only when owners can no longer be notified. Cancellation is
// observed between jobs only: a dequeued job runs to a terminal status on a
// context detached from ctx.
func (r *Runner) Run(ctx context.Context) error {
	log.Info().Int("handlers", len(r.handlers)).Msg("job runner started")
	defer log.Info().Msg("job runner stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}

		if err := r.process(context.WithoutCancel(ctx), job); err != nil {
			return err
		}
	}
}

// process runs one job to a terminal status. The returned error is fatal to
// the loop.
func (r *Runner) process(ctx context.Context, job model.Job) error {
	logger := log.With().Int64("jobId", job.ID).Str("jobType", string(job.Type)).Int64("ownerId", job.OwnerID).Logger()
	logger.Info().Msg("processing job")

	err := r.runJob(ctx, job)
	if err == nil {
		r.queue.MarkCompleted(job.ID)
		logger.Info().Msg("job completed")
		return nil
	}

	if errors.Is(err, transport.ErrNotifierUnavailable) {
		r.queue.MarkFailed(job.ID, "notification channel unavailable")
		logger.Error().Err(err).Msg("notification channel unavailable, stopping runner")
		return fmt.Errorf("job %d: %w", job.ID, err)
	}

	reason := failureReason(err)
	r.queue.MarkFailed(job.ID, reason)
	logger.Warn().Err(err).Msg("job failed")

	if notifyErr := r.notifier.SendText(ctx, job.OwnerID, failureText(job, reason)); notifyErr != nil {
		if errors.Is(notifyErr, transport.ErrNotifierUnavailable) {
			logger.Error().Err(notifyErr).Msg("notification channel unavailable, stopping runner")
			return fmt.Errorf("job %d: %w", job.ID, notifyErr)
		}
		logger.Warn().Err(notifyErr).Msg("failed to notify owner about job failure")
	}
	return nil
}

// runJob dispatches by type and turns a handler panic into an error.
func (r *Runner) runJob(ctx context.Context, job model.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Int64("jobId", job.ID).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("job handler panicked")
			err = errHandlerPanic
		}
	}()

	handler, ok := r.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler registered for type %q", job.Type)
	}
	return handler(ctx, job)
}
