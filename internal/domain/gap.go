package domain

import (
	"time"

	"github.com/google/uuid"
)

type GapResolutionStatus string

const (
	GapPending  GapResolutionStatus = "pending"
	GapResolved GapResolutionStatus = "resolved"
)

// Gap is one detected missing or incorrect attribute on a target entity,
// scoped to a child flow. Gaps are created by scan phases and mutated only
// through bulk submission or a single-item update; they are never deleted,
// superseded gaps are marked resolved instead.
type Gap struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;"`
	ChildFlowID uuid.UUID `gorm:"type:uuid;index;not null"`

	ClientAccountID uuid.UUID `gorm:"type:uuid;index;not null"`
	EngagementID    uuid.UUID `gorm:"type:uuid;index;not null"`

	TargetID  uuid.UUID `gorm:"type:uuid;index;not null"`
	FieldName string    `gorm:"type:varchar(100);not null;index"`
	Question  string    `gorm:"type:varchar(255)"`
	Priority  int       `gorm:"default:4"` // 1 (highest) .. 4

	ResolutionStatus GapResolutionStatus `gorm:"type:varchar(20);default:'pending';index"`
	ResolvedValue    *string             `gorm:"type:text"`
	ResolvedBy       *uuid.UUID          `gorm:"type:uuid"`
	ResolvedAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewGap(childFlow *ChildFlow, targetID uuid.UUID, fieldName, question string, priority int) *Gap {
	if priority < 1 || priority > 4 {
		priority = 4
	}
	return &Gap{
		ID:               uuid.New(),
		ChildFlowID:      childFlow.ID,
		ClientAccountID:  childFlow.ClientAccountID,
		EngagementID:     childFlow.EngagementID,
		TargetID:         targetID,
		FieldName:        fieldName,
		Question:         question,
		Priority:         priority,
		ResolutionStatus: GapPending,
		CreatedAt:        time.Now(),
	}
}

func (g *Gap) Resolve(value string, by uuid.UUID) {
	now := time.Now()
	g.ResolutionStatus = GapResolved
	g.ResolvedValue = &value
	g.ResolvedBy = &by
	g.ResolvedAt = &now
}

// Conflict is computed during a bulk preview pass and never persisted. It
// represents divergent existing values across multiple targets for one field.
type Conflict struct {
	FieldName      string   `json:"field_name"`
	DistinctValues []string `json:"distinct_values"`
	ConflictCount  int      `json:"conflict_count"` // number of distinct non-null values
	TargetCount    int      `json:"target_count"`
}
