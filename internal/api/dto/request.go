package dto

import "github.com/google/uuid"

type CreateFlowRequest struct {
	FlowType string         `json:"flow_type" binding:"required"`
	Name     string         `json:"name" binding:"required"`
	Config   map[string]any `json:"config"`
}

type CreateFlowResponse struct {
	FlowID       uuid.UUID `json:"flow_id"`
	FlowType     string    `json:"flow_type"`
	Status       string    `json:"status"`
	CurrentPhase string    `json:"current_phase"`
}

type ExecutePhaseRequest struct {
	Phase string         `json:"phase" binding:"required"`
	Input map[string]any `json:"input"`
}

type RepairRequest struct {
	OptionID string     `json:"option_id" binding:"required"`
	TargetID *uuid.UUID `json:"target_id"`
}

type GapResolutionDTO struct {
	GapID uuid.UUID `json:"gap_id" binding:"required"`
	Value string    `json:"value" binding:"required"`
}

type BulkPreviewRequest struct {
	TargetIDs []uuid.UUID `json:"target_ids" binding:"required,min=1"`
	Fields    []string    `json:"fields"`
}

type BulkSubmitRequest struct {
	Resolutions []GapResolutionDTO `json:"resolutions" binding:"required,min=1"`
	Strategy    string             `json:"conflict_strategy" binding:"required,oneof=skip overwrite"`
}
