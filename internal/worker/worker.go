package worker

import (
	"context"
	"log"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"
	"flowengine/internal/metrics"

	"github.com/google/uuid"
)

// Worker drains the background job queue. Detached phase work runs here so
// the per-flow execution lock is never held across long-running calls.
type Worker struct {
	workerID string
	queue    ports.BackgroundQueue
	eventBus ports.EventBus
	registry JobRegistry
}

func NewWorker(q ports.BackgroundQueue, bus ports.EventBus, reg JobRegistry) *Worker {
	return &Worker{
		workerID: uuid.New().String(),
		queue:    q,
		eventBus: bus,
		registry: reg,
	}
}

// ProcessNextJob handles exactly ONE job lifecycle
func (w *Worker) ProcessNextJob(ctx context.Context) {
	// 1. POP: Wait until a job is available
	job, err := w.queue.Pop(ctx)
	if err != nil {
		log.Printf("Worker error popping from queue: %v", err)
		return
	}

	// 2. EXECUTE: Find the right function and run it
	handler, err := w.registry.Handler(job.JobType)
	if err != nil {
		log.Printf("Worker %s: %v", w.workerID, err)
		metrics.BackgroundJobs.WithLabelValues(job.JobType, "unknown").Inc()
		w.publishCompletion(ctx, job, err)
		return
	}

	err = handler(ctx, job)
	if err != nil {
		log.Printf("Worker %s: job %s (%s) failed: %v", w.workerID, job.ID, job.JobType, err)
		metrics.BackgroundJobs.WithLabelValues(job.JobType, "failed").Inc()
		w.publishCompletion(ctx, job, err)
		return
	}

	// 3. COMPLETE: publish the completion signal
	metrics.BackgroundJobs.WithLabelValues(job.JobType, "completed").Inc()
	w.publishCompletion(ctx, job, nil)
	log.Printf("Worker %s successfully finished job %s (%s)", w.workerID, job.ID, job.JobType)
}

func (w *Worker) publishCompletion(ctx context.Context, job domain.BackgroundJob, jobErr error) {
	event := domain.BackgroundJobCompletedEvent{
		JobID:           job.ID,
		FlowID:          job.FlowID,
		Phase:           job.Phase,
		JobType:         job.JobType,
		Success:         jobErr == nil,
		ClientAccountID: job.ClientAccountID,
		EngagementID:    job.EngagementID,
	}
	if jobErr != nil {
		event.Error = jobErr.Error()
	}
	if err := w.eventBus.PublishJobCompleted(ctx, event); err != nil {
		log.Printf("Worker %s failed to publish completion for job %s: %v", w.workerID, job.ID, err)
	}
}

// StartPool launches multiple concurrent worker loops
func (w *Worker) StartPool(ctx context.Context, concurrency int) {
	log.Printf("Starting worker pool with %d concurrent workers...", concurrency)

	for i := 0; i < concurrency; i++ {
		go func(threadID int) {
			log.Printf("Worker thread %d (ID: %s) started", threadID, w.workerID)
			for {
				select {
				case <-ctx.Done():
					log.Printf("Worker thread %d (ID: %s) shutting down", threadID, w.workerID)
					return
				default:
					w.ProcessNextJob(ctx)
				}
			}
		}(i)
	}
}
