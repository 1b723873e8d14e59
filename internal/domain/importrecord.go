package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportRecord is one batch of imported source data. The data_import phase
// creates these against its flow; an import whose flow row can no longer be
// resolved is the orphan the corruption recovery heuristics look for.
type ImportRecord struct {
	ID     uuid.UUID  `gorm:"type:uuid;primary_key;"`
	FlowID *uuid.UUID `gorm:"type:uuid;index"`

	ClientAccountID uuid.UUID `gorm:"type:uuid;index;not null"`
	EngagementID    uuid.UUID `gorm:"type:uuid;index;not null"`

	Source      string `gorm:"type:varchar(100);not null"`
	RecordCount int    `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewImportRecord(flowID uuid.UUID, scope TenantScope, source string, recordCount int) *ImportRecord {
	id := flowID
	return &ImportRecord{
		ID:              uuid.New(),
		FlowID:          &id,
		ClientAccountID: scope.ClientAccountID,
		EngagementID:    scope.EngagementID,
		Source:          source,
		RecordCount:     recordCount,
		CreatedAt:       time.Now(),
	}
}
