package domain

import (
	"github.com/google/uuid"
)

// BackgroundJob is the unit of detached work dispatched by a phase handler.
// It is serialized onto the background queue and picked up by the worker pool.
type BackgroundJob struct {
	ID              uuid.UUID      `json:"id"`
	FlowID          uuid.UUID      `json:"flow_id"`
	Phase           string         `json:"phase"`
	JobType         string         `json:"job_type"` // e.g., "enrichment", "gap_scan"
	Payload         map[string]any `json:"payload,omitempty"`
	ClientAccountID uuid.UUID      `json:"client_account_id"`
	EngagementID    uuid.UUID      `json:"engagement_id"`
}

// BackgroundJobCompletedEvent is published to Redis Pub/Sub by the worker
// when a detached job finishes. The completion listener uses it to resume
// flows paused on awaiting_background.
type BackgroundJobCompletedEvent struct {
	JobID           uuid.UUID `json:"job_id"`
	FlowID          uuid.UUID `json:"flow_id"`
	Phase           string    `json:"phase"`
	JobType         string    `json:"job_type"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	ClientAccountID uuid.UUID `json:"client_account_id"`
	EngagementID    uuid.UUID `json:"engagement_id"`
}
