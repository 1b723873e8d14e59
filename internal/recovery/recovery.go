package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"
	"flowengine/internal/flowtype"
	"flowengine/internal/metrics"

	"github.com/google/uuid"
)

// ConfidenceFloor is the minimum heuristic confidence worth surfacing.
// Anything weaker is treated as no discovery at all.
const ConfidenceFloor = 0.6

const (
	HeuristicChildReference = "child_flow_reference"
	HeuristicFlowImports    = "flow_import_reference"
	HeuristicTenantWindow   = "tenant_window_proximity"
)

const (
	RepairLinkToExistingFlow  = "link_to_existing_flow"
	RepairCreateFlowForOrphan = "create_flow_for_orphan"
)

// DiscoveredStatus is a heuristic answer for a flow that failed direct
// resolution. Confidence and Heuristic let callers tell it apart from an
// authoritative read.
type DiscoveredStatus struct {
	FlowID        uuid.UUID       `json:"flow_id"`
	FlowType      domain.FlowType `json:"flow_type,omitempty"`
	Heuristic     string          `json:"heuristic"`
	Confidence    float64         `json:"confidence"`
	OrphanedCount int             `json:"orphaned_count,omitempty"`
	Details       string          `json:"details,omitempty"`
}

// RepairOption is one safe, reversible repair action. The set is closed;
// nothing here is ever destructive.
type RepairOption struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	RequiresTarget bool   `json:"requires_target"`
}

// RepairResult reports what a repair did. NoOp is success: the preconditions
// were already gone, typically because a concurrent caller repaired first.
type RepairResult struct {
	Option          string     `json:"option"`
	NoOp            bool       `json:"no_op"`
	AttachedRecords int64      `json:"attached_records"`
	CreatedFlowID   *uuid.UUID `json:"created_flow_id,omitempty"`
}

// Service implements the corruption recovery heuristics over the
// FlowStateStore. It never mutates audit logs, only re-links orphaned data.
type Service struct {
	flows    ports.FlowRepository
	imports  ports.ImportRepository
	registry *flowtype.Registry
	window   time.Duration
}

func NewService(flows ports.FlowRepository, imports ports.ImportRepository, registry *flowtype.Registry, window time.Duration) *Service {
	return &Service{flows: flows, imports: imports, registry: registry, window: window}
}

// SmartDiscovery applies the heuristics in order and returns the first hit
// at or above the confidence floor, tagged with the heuristic that fired.
// A nil result means the flow is genuinely unresolvable.
func (s *Service) SmartDiscovery(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) (*DiscoveredStatus, error) {
	// 1. A child flow still referencing the missing master row.
	child, err := s.flows.FindChildByFlowID(ctx, flowID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if child != nil && child.ClientAccountID == scope.ClientAccountID && child.EngagementID == scope.EngagementID {
		metrics.SmartDiscoveries.WithLabelValues(HeuristicChildReference, "hit").Inc()
		return &DiscoveredStatus{
			FlowID:     flowID,
			FlowType:   child.FlowType,
			Heuristic:  HeuristicChildReference,
			Confidence: 0.9,
			Details:    "child flow record survives the missing master row",
		}, nil
	}
	metrics.SmartDiscoveries.WithLabelValues(HeuristicChildReference, "miss").Inc()

	// 2. Import records still pointing at the missing flow.
	records, err := s.imports.FindByFlowID(ctx, flowID)
	if err != nil {
		return nil, err
	}
	records = inScope(records, scope)
	if len(records) > 0 {
		metrics.SmartDiscoveries.WithLabelValues(HeuristicFlowImports, "hit").Inc()
		return &DiscoveredStatus{
			FlowID:        flowID,
			Heuristic:     HeuristicFlowImports,
			Confidence:    0.7,
			OrphanedCount: len(records),
			Details:       fmt.Sprintf("%d import record(s) reference the missing flow", len(records)),
		}, nil
	}
	metrics.SmartDiscoveries.WithLabelValues(HeuristicFlowImports, "miss").Inc()

	// 3. Orphaned imports for the tenant inside the discovery window.
	orphans, err := s.imports.FindOrphansInWindow(ctx, scope, time.Now().Add(-s.window))
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		metrics.SmartDiscoveries.WithLabelValues(HeuristicTenantWindow, "hit").Inc()
		return &DiscoveredStatus{
			FlowID:        flowID,
			Heuristic:     HeuristicTenantWindow,
			Confidence:    0.6,
			OrphanedCount: len(orphans),
			Details:       fmt.Sprintf("%d orphaned import(s) in the tenant's recent window", len(orphans)),
		}, nil
	}
	metrics.SmartDiscoveries.WithLabelValues(HeuristicTenantWindow, "miss").Inc()

	return nil, nil
}

// ProposeRepairs enumerates the closed set of repair actions applicable to
// the discovery result.
func (s *Service) ProposeRepairs(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) ([]RepairOption, error) {
	discovered, err := s.SmartDiscovery(ctx, flowID, scope)
	if err != nil {
		return nil, err
	}
	if discovered == nil {
		return nil, nil
	}
	return []RepairOption{
		{
			ID:             RepairLinkToExistingFlow,
			Description:    "attach the orphaned records to an existing flow you name",
			RequiresTarget: true,
		},
		{
			ID:          RepairCreateFlowForOrphan,
			Description: "create a new flow and attach the orphaned records to it",
		},
	}, nil
}

// ApplyRepair executes one proposed option. Preconditions are re-verified
// immediately before mutating; when they no longer hold the repair returns a
// no-op success rather than an error, so re-running an applied repair (or
// racing a concurrent caller) is harmless.
func (s *Service) ApplyRepair(ctx context.Context, flowID uuid.UUID, optionID string, targetID *uuid.UUID, scope domain.TenantScope) (*RepairResult, error) {
	switch optionID {
	case RepairLinkToExistingFlow:
		return s.linkToExistingFlow(ctx, flowID, targetID, scope)
	case RepairCreateFlowForOrphan:
		return s.createFlowForOrphan(ctx, flowID, scope)
	default:
		return nil, fmt.Errorf("unknown repair option %q", optionID)
	}
}

func (s *Service) linkToExistingFlow(ctx context.Context, flowID uuid.UUID, targetID *uuid.UUID, scope domain.TenantScope) (*RepairResult, error) {
	if targetID == nil {
		return nil, fmt.Errorf("repair %s requires a target flow", RepairLinkToExistingFlow)
	}

	// Precondition: the target flow must exist in the caller's scope.
	if _, err := s.flows.GetByID(ctx, *targetID, scope); err != nil {
		return nil, err
	}

	orphanIDs, err := s.orphanIDs(ctx, flowID, scope)
	if err != nil {
		return nil, err
	}
	if len(orphanIDs) == 0 {
		return &RepairResult{Option: RepairLinkToExistingFlow, NoOp: true}, nil
	}

	attached, err := s.imports.AttachToFlow(ctx, orphanIDs, *targetID)
	if err != nil {
		return nil, err
	}
	if attached == 0 {
		// A concurrent caller repaired first.
		return &RepairResult{Option: RepairLinkToExistingFlow, NoOp: true}, nil
	}

	metrics.RepairsApplied.WithLabelValues(RepairLinkToExistingFlow).Inc()
	log.Printf("Recovery: attached %d orphaned import(s) of %s to flow %s", attached, flowID, *targetID)
	return &RepairResult{Option: RepairLinkToExistingFlow, AttachedRecords: attached}, nil
}

func (s *Service) createFlowForOrphan(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) (*RepairResult, error) {
	orphanIDs, err := s.orphanIDs(ctx, flowID, scope)
	if err != nil {
		return nil, err
	}
	if len(orphanIDs) == 0 {
		return &RepairResult{Option: RepairCreateFlowForOrphan, NoOp: true}, nil
	}

	firstPhase, err := s.registry.FirstPhase(domain.FlowTypeDiscovery)
	if err != nil {
		return nil, err
	}

	flow := domain.NewFlow(domain.FlowTypeDiscovery, "recovered orphan data", firstPhase, scope)
	meta, _ := json.Marshal(map[string]any{
		"source":           "corruption_recovery",
		"migrated_at":      time.Now().Format(time.RFC3339),
		"original_flow_id": flowID,
	})
	flow.Metadata = meta
	child := domain.NewChildFlow(flow, nil)

	// One transaction: a failed attach must not leave a flow behind, or a
	// retried repair would create a duplicate.
	attached, err := s.flows.CreateFlowForOrphans(ctx, flow, child, orphanIDs)
	if err != nil {
		return nil, err
	}

	metrics.RepairsApplied.WithLabelValues(RepairCreateFlowForOrphan).Inc()
	log.Printf("Recovery: created flow %s for %d orphaned import(s) of %s", flow.ID, attached, flowID)
	return &RepairResult{Option: RepairCreateFlowForOrphan, AttachedRecords: attached, CreatedFlowID: &flow.ID}, nil
}

// orphanIDs collects imports still referencing the missing flow plus any
// unattached orphans in the tenant's window.
func (s *Service) orphanIDs(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) ([]uuid.UUID, error) {
	records, err := s.imports.FindByFlowID(ctx, flowID)
	if err != nil {
		return nil, err
	}
	records = inScope(records, scope)

	orphans, err := s.imports.FindOrphansInWindow(ctx, scope, time.Now().Add(-s.window))
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, r := range records {
		if !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	for _, r := range orphans {
		if r.FlowID == nil && !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func inScope(records []domain.ImportRecord, scope domain.TenantScope) []domain.ImportRecord {
	var out []domain.ImportRecord
	for _, r := range records {
		if r.ClientAccountID == scope.ClientAccountID && r.EngagementID == scope.EngagementID {
			out = append(out, r)
		}
	}
	return out
}
