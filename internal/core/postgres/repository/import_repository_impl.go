package repository

import (
	"context"
	"time"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type importRepository struct {
	db *gorm.DB
}

// NewImportRepository creates a new instance of ImportRepository
func NewImportRepository(db *gorm.DB) ports.ImportRepository {
	return &importRepository{db: db}
}

func (r *importRepository) Create(ctx context.Context, rec *domain.ImportRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *importRepository) FindByFlowID(ctx context.Context, flowID uuid.UUID) ([]domain.ImportRecord, error) {
	var records []domain.ImportRecord
	err := r.db.WithContext(ctx).Where("flow_id = ?", flowID).Find(&records).Error
	return records, err
}

// FindOrphansInWindow returns imports in the tenant scope created since the
// given time whose flow reference is missing or dangling.
func (r *importRepository) FindOrphansInWindow(ctx context.Context, scope domain.TenantScope, since time.Time) ([]domain.ImportRecord, error) {
	var records []domain.ImportRecord
	err := r.db.WithContext(ctx).
		Where("client_account_id = ? AND engagement_id = ? AND created_at >= ?",
			scope.ClientAccountID, scope.EngagementID, since).
		Where("flow_id IS NULL OR flow_id NOT IN (SELECT id FROM flows)").
		Find(&records).Error
	return records, err
}

// AttachToFlow links orphaned imports to targetFlowID. The flow_id guard
// keeps re-applied repairs from counting rows that are already attached.
func (r *importRepository) AttachToFlow(ctx context.Context, importIDs []uuid.UUID, targetFlowID uuid.UUID) (int64, error) {
	if len(importIDs) == 0 {
		return 0, nil
	}
	var attached int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.ImportRecord{}).
			Where("id IN ?", importIDs).
			Where("flow_id IS NULL OR flow_id != ?", targetFlowID).
			Update("flow_id", targetFlowID)
		if result.Error != nil {
			return result.Error
		}
		attached = result.RowsAffected
		return nil
	})
	return attached, err
}
