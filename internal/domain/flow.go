package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type FlowType string

const (
	FlowTypeDiscovery  FlowType = "discovery"
	FlowTypeAssessment FlowType = "assessment"
	FlowTypeCollection FlowType = "collection"
)

type FlowStatus string

const (
	FlowInitialized FlowStatus = "initialized"
	FlowActive      FlowStatus = "active"
	FlowProcessing  FlowStatus = "processing"
	FlowPaused      FlowStatus = "paused"
	FlowCompleted   FlowStatus = "completed"
	FlowFailed      FlowStatus = "failed"
	FlowCancelled   FlowStatus = "cancelled"
)

// allowedTransitions is the master flow state machine. Any non-terminal
// status may additionally move to failed or cancelled.
var allowedTransitions = map[FlowStatus][]FlowStatus{
	FlowInitialized: {FlowActive, FlowProcessing},
	FlowActive:      {FlowProcessing, FlowPaused, FlowCompleted},
	FlowProcessing:  {FlowActive, FlowPaused, FlowCompleted},
	FlowPaused:      {FlowActive, FlowProcessing, FlowCompleted},
}

// TenantScope identifies the owning tenant. It is opaque to the engine and
// attached to every call; records are always read and written through it.
type TenantScope struct {
	ClientAccountID uuid.UUID
	EngagementID    uuid.UUID
	UserID          uuid.UUID
}

type Flow struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;"`
	FlowType FlowType  `gorm:"type:varchar(50);not null;index"`
	Name     string    `gorm:"type:varchar(255);not null"`

	// Tenant scope. Present on every record, checked on every read.
	ClientAccountID uuid.UUID `gorm:"type:uuid;index;not null"`
	EngagementID    uuid.UUID `gorm:"type:uuid;index;not null"`

	// State
	Status       FlowStatus `gorm:"type:varchar(20);default:'initialized'"`
	CurrentPhase string     `gorm:"type:varchar(100);not null"`
	RetryCount   int        `gorm:"default:0"`
	PausedReason string     `gorm:"type:varchar(100)"`
	Version      int        `gorm:"default:1"`

	// Relationships
	ParentFlowID *uuid.UUID  `gorm:"type:uuid;index"`
	ChildFlows   []ChildFlow `gorm:"foreignKey:FlowID"`

	// Append-only audit logs, stored as ordered JSONB arrays.
	PhaseTransitions datatypes.JSON `gorm:"type:jsonb"`
	ErrorHistory     datatypes.JSON `gorm:"type:jsonb"`

	// Open extension bag. Orchestration never reads typed state out of here.
	Metadata datatypes.JSON `gorm:"type:jsonb"`

	// Audit
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PhaseTransition is one immutable entry of the phase_transitions log.
type PhaseTransition struct {
	Phase     string    `json:"phase"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorRecord is one immutable entry of the error_history log.
type ErrorRecord struct {
	Phase     string    `json:"phase"`
	Error     string    `json:"error"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// --- FACTORY ---
func NewFlow(flowType FlowType, name string, firstPhase string, scope TenantScope) *Flow {
	return &Flow{
		ID:              uuid.New(),
		FlowType:        flowType,
		Name:            name,
		ClientAccountID: scope.ClientAccountID,
		EngagementID:    scope.EngagementID,
		Status:          FlowInitialized,
		CurrentPhase:    firstPhase,
		Version:         1,
		CreatedAt:       time.Now(),
	}
}

// --- METHODS ---
func (f *Flow) IsTerminal() bool {
	return f.Status == FlowCompleted || f.Status == FlowFailed || f.Status == FlowCancelled
}

// CanTransition reports whether the state machine permits moving to next.
// failed and cancelled are reachable from every non-terminal status.
func (f *Flow) CanTransition(next FlowStatus) bool {
	if f.IsTerminal() {
		return false
	}
	if next == FlowFailed || next == FlowCancelled {
		return true
	}
	for _, s := range allowedTransitions[f.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func (f *Flow) Scope() TenantScope {
	return TenantScope{ClientAccountID: f.ClientAccountID, EngagementID: f.EngagementID}
}
