package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type flowRepository struct {
	db *gorm.DB
}

// NewFlowRepository creates a new instance of FlowRepository
func NewFlowRepository(db *gorm.DB) ports.FlowRepository {
	return &flowRepository{db: db}
}

func (r *flowRepository) CreateFlowWithChild(ctx context.Context, flow *domain.Flow, child *domain.ChildFlow) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(flow).Error; err != nil {
			return err
		}
		return tx.Create(child).Error
	})
}

func (r *flowRepository) GetByID(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) (*domain.Flow, error) {
	var flow domain.Flow
	err := r.db.WithContext(ctx).
		Where("id = ? AND client_account_id = ? AND engagement_id = ?",
			flowID, scope.ClientAccountID, scope.EngagementID).
		First(&flow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &flow, nil
}

func (r *flowRepository) GetChildFlow(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) (*domain.ChildFlow, error) {
	var child domain.ChildFlow
	err := r.db.WithContext(ctx).
		Where("flow_id = ? AND client_account_id = ? AND engagement_id = ?",
			flowID, scope.ClientAccountID, scope.EngagementID).
		First(&child).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &child, nil
}

func (r *flowRepository) FindChildByFlowID(ctx context.Context, flowID uuid.UUID) (*domain.ChildFlow, error) {
	var child domain.ChildFlow
	err := r.db.WithContext(ctx).Where("flow_id = ?", flowID).First(&child).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &child, nil
}

// CreateFlowForOrphans commits the recovery flow, its child and the import
// re-links together. A failed attach rolls the new flow back with it, so a
// retried repair never finds a half-built flow.
func (r *flowRepository) CreateFlowForOrphans(ctx context.Context, flow *domain.Flow, child *domain.ChildFlow, importIDs []uuid.UUID) (int64, error) {
	var attached int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(flow).Error; err != nil {
			return err
		}
		if err := tx.Create(child).Error; err != nil {
			return err
		}
		result := tx.Model(&domain.ImportRecord{}).
			Where("id IN ?", importIDs).
			Where("flow_id IS NULL OR flow_id != ?", flow.ID).
			Update("flow_id", flow.ID)
		if result.Error != nil {
			return result.Error
		}
		attached = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return attached, nil
}

// ApplyTransition re-reads the row inside the transaction, appends to the
// JSONB audit arrays in memory and writes everything back guarded by the
// version column. RowsAffected == 0 means another writer got there first.
func (r *flowRepository) ApplyTransition(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope, update ports.TransitionUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var flow domain.Flow
		err := tx.Where("id = ? AND client_account_id = ? AND engagement_id = ?",
			flowID, scope.ClientAccountID, scope.EngagementID).
			First(&flow).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if flow.Version != update.ExpectedVersion {
			return domain.ErrVersionConflict
		}
		if update.Status != flow.Status && !flow.CanTransition(update.Status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, flow.Status, update.Status)
		}

		transitions, err := appendEntry(flow.PhaseTransitions, update.Transition)
		if err != nil {
			return fmt.Errorf("append phase transition: %w", err)
		}
		errHistory, err := appendEntry(flow.ErrorHistory, update.ErrorEntry)
		if err != nil {
			return fmt.Errorf("append error record: %w", err)
		}

		result := tx.Model(&domain.Flow{}).
			Where("id = ? AND version = ?", flowID, update.ExpectedVersion).
			Updates(map[string]interface{}{
				"status":            update.Status,
				"current_phase":     update.CurrentPhase,
				"retry_count":       update.RetryCount,
				"paused_reason":     update.PausedReason,
				"phase_transitions": transitions,
				"error_history":     errHistory,
				"version":           update.ExpectedVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrVersionConflict
		}
		return nil
	})
}

// appendEntry appends one structured entry to a JSONB array column. A nil
// entry leaves the array unchanged.
func appendEntry[T any](raw []byte, entry *T) ([]byte, error) {
	var entries []T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, err
		}
	}
	if entry == nil {
		if len(raw) == 0 {
			return []byte("[]"), nil
		}
		return raw, nil
	}
	entries = append(entries, *entry)
	return json.Marshal(entries)
}
