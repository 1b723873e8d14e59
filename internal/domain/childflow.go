package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChildFlow holds the flow-type-specific configuration and phase-local state
// for one master flow. There is at most one per (flow, flow_type) pair and it
// is only ever deleted by cascading deletion of its master flow.
type ChildFlow struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;"`
	FlowID   uuid.UUID `gorm:"type:uuid;index;not null"`
	FlowType FlowType  `gorm:"type:varchar(50);not null"`

	ClientAccountID uuid.UUID `gorm:"type:uuid;index;not null"`
	EngagementID    uuid.UUID `gorm:"type:uuid;index;not null"`

	AutomationTier   string         `gorm:"type:varchar(50)"`
	CollectionConfig datatypes.JSON `gorm:"type:jsonb"`
	PhaseState       datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewChildFlow(flow *Flow, config datatypes.JSON) *ChildFlow {
	return &ChildFlow{
		ID:               uuid.New(),
		FlowID:           flow.ID,
		FlowType:         flow.FlowType,
		ClientAccountID:  flow.ClientAccountID,
		EngagementID:     flow.EngagementID,
		CollectionConfig: config,
		CreatedAt:        time.Now(),
	}
}
