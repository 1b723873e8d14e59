package repository

import (
	"context"
	"errors"
	"time"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gapRepository struct {
	db *gorm.DB
}

// NewGapRepository creates a new instance of GapRepository
func NewGapRepository(db *gorm.DB) ports.GapRepository {
	return &gapRepository{db: db}
}

func (r *gapRepository) CreateMany(ctx context.Context, gaps []domain.Gap) error {
	if len(gaps) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&gaps).Error
}

func (r *gapRepository) FindByIDs(ctx context.Context, scope domain.TenantScope, ids []uuid.UUID) ([]domain.Gap, error) {
	var gaps []domain.Gap
	if len(ids) == 0 {
		return gaps, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ? AND client_account_id = ? AND engagement_id = ?",
			ids, scope.ClientAccountID, scope.EngagementID).
		Find(&gaps).Error
	return gaps, err
}

func (r *gapRepository) FindByChildFlow(ctx context.Context, scope domain.TenantScope, childFlowID uuid.UUID) ([]domain.Gap, error) {
	var gaps []domain.Gap
	err := r.db.WithContext(ctx).
		Where("child_flow_id = ? AND client_account_id = ? AND engagement_id = ?",
			childFlowID, scope.ClientAccountID, scope.EngagementID).
		Order("priority asc, created_at asc").
		Find(&gaps).Error
	return gaps, err
}

// ApplyResolutions applies one chunk inside a single transaction. Any error
// rolls the whole chunk back; previously committed chunks are unaffected.
func (r *gapRepository) ApplyResolutions(ctx context.Context, scope domain.TenantScope, resolutions []ports.GapResolution, overwrite bool) (int, int, error) {
	var updated, skipped int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, res := range resolutions {
			var gap domain.Gap
			err := tx.Where("id = ? AND client_account_id = ? AND engagement_id = ?",
				res.GapID, scope.ClientAccountID, scope.EngagementID).
				First(&gap).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			if err != nil {
				return err
			}

			if gap.ResolvedValue != nil && !overwrite {
				skipped++
				continue
			}

			now := time.Now()
			err = tx.Model(&domain.Gap{}).
				Where("id = ?", gap.ID).
				Updates(map[string]interface{}{
					"resolution_status": domain.GapResolved,
					"resolved_value":    res.Value,
					"resolved_by":       res.ResolvedBy,
					"resolved_at":       now,
				}).Error
			if err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return updated, skipped, nil
}
