package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"flowengine/internal/domain"
)

// JobHandler is the blueprint for any function that does detached work
type JobHandler func(ctx context.Context, job domain.BackgroundJob) error

// JobRegistry holds all executable background job types
type JobRegistry map[string]JobHandler

// InitRegistry wires up the background job handlers
func InitRegistry() JobRegistry {
	registry := make(JobRegistry)

	registry["enrichment"] = func(ctx context.Context, job domain.BackgroundJob) error {
		// Stands in for the external enrichment pipeline: classify the
		// flow's imported assets and write the results back.
		log.Printf("Enriching assets for flow %s (phase %s)", job.FlowID, job.Phase)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
		return nil
	}

	registry["gap_scan"] = func(ctx context.Context, job domain.BackgroundJob) error {
		log.Printf("Scanning for gaps on flow %s", job.FlowID)
		return nil
	}

	return registry
}

// Handler returns the handler for a job type, or an error for unknown types
func (r JobRegistry) Handler(jobType string) (JobHandler, error) {
	h, ok := r[jobType]
	if !ok {
		return nil, fmt.Errorf("unknown job type: %s", jobType)
	}
	return h, nil
}
