package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"
	"flowengine/internal/executor"
	"flowengine/internal/flowtype"
	"flowengine/internal/metrics"
	"flowengine/internal/recovery"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DiscoveryMethodDirect    = "direct"
	DiscoveryMethodHeuristic = "heuristic"
)

// FlowStatus is the caller-facing status of one flow. DiscoveryMethod tells
// an authoritative read apart from a heuristic one; RepairOptions is only
// populated when the flow could not be resolved directly.
type FlowStatus struct {
	FlowID          uuid.UUID                `json:"flow_id"`
	FlowType        domain.FlowType          `json:"flow_type,omitempty"`
	Name            string                   `json:"name,omitempty"`
	Status          domain.FlowStatus        `json:"status,omitempty"`
	CurrentPhase    string                   `json:"current_phase,omitempty"`
	RetryCount      int                      `json:"retry_count"`
	PausedReason    string                   `json:"paused_reason,omitempty"`
	DiscoveryMethod string                   `json:"discovery_method"`
	Confidence      float64                  `json:"confidence"`
	Heuristic       string                   `json:"heuristic,omitempty"`
	RepairOptions   []recovery.RepairOption  `json:"repair_options,omitempty"`
	Transitions     []domain.PhaseTransition `json:"phase_transitions,omitempty"`
	Errors          []domain.ErrorRecord     `json:"error_history,omitempty"`
}

// PhaseResponse is what ExecutePhase hands back to the caller: the phase
// result, the decision taken on it and the flow state after the transition.
type PhaseResponse struct {
	Result   domain.PhaseResult `json:"result"`
	Decision domain.Decision    `json:"decision"`
	Status   domain.FlowStatus  `json:"status"`
	Phase    string             `json:"current_phase"`
	Chained  *PhaseResponse     `json:"chained,omitempty"`
}

// Orchestrator is the top-level flow API. Flow state lives exclusively in
// the store; nothing in memory is authoritative across a restart.
type Orchestrator struct {
	flows        ports.FlowRepository
	executor     *executor.Executor
	decider      ports.PhaseDecisionProvider
	recovery     *recovery.Service
	registry     *flowtype.Registry
	retryCeiling int

	// Per-flow in-process advisory locks. The processing status acts as the
	// cross-process equivalent.
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

func NewOrchestrator(
	flows ports.FlowRepository,
	exec *executor.Executor,
	decider ports.PhaseDecisionProvider,
	rec *recovery.Service,
	registry *flowtype.Registry,
	retryCeiling int,
) *Orchestrator {
	return &Orchestrator{
		flows:        flows,
		executor:     exec,
		decider:      decider,
		recovery:     rec,
		registry:     registry,
		retryCeiling: retryCeiling,
	}
}

// CreateFlow allocates a master flow and its child flow in one transaction.
func (o *Orchestrator) CreateFlow(ctx context.Context, flowType domain.FlowType, name string, config datatypes.JSON, scope domain.TenantScope) (*domain.Flow, error) {
	firstPhase, err := o.registry.FirstPhase(flowType)
	if err != nil {
		return nil, err
	}

	flow := domain.NewFlow(flowType, name, firstPhase, scope)
	initial, _ := json.Marshal([]domain.PhaseTransition{{
		Phase:     firstPhase,
		Status:    string(domain.FlowInitialized),
		Timestamp: time.Now(),
	}})
	flow.PhaseTransitions = initial
	flow.ErrorHistory = datatypes.JSON([]byte("[]"))

	child := domain.NewChildFlow(flow, config)
	if err := o.flows.CreateFlowWithChild(ctx, flow, child); err != nil {
		return nil, err
	}

	log.Printf("Orchestrator: created %s flow %s (%s)", flowType, flow.ID, name)
	return flow, nil
}

// GetFlowStatus resolves the flow directly; when the direct lookup misses it
// falls back to smart discovery before surfacing NotFound, attaching repair
// options so the caller can act on a degraded answer.
func (o *Orchestrator) GetFlowStatus(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope, includeDetails bool) (*FlowStatus, error) {
	flow, err := o.flows.GetByID(ctx, flowID, scope)
	if err == nil {
		status := &FlowStatus{
			FlowID:          flow.ID,
			FlowType:        flow.FlowType,
			Name:            flow.Name,
			Status:          flow.Status,
			CurrentPhase:    flow.CurrentPhase,
			RetryCount:      flow.RetryCount,
			PausedReason:    flow.PausedReason,
			DiscoveryMethod: DiscoveryMethodDirect,
			Confidence:      1.0,
		}
		if includeDetails {
			status.Transitions = decodeTransitions(flow.PhaseTransitions)
			status.Errors = decodeErrors(flow.ErrorHistory)
		}
		return status, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}

	discovered, derr := o.recovery.SmartDiscovery(ctx, flowID, scope)
	if derr != nil {
		return nil, derr
	}
	if discovered == nil {
		return nil, domain.ErrNotFound
	}

	options, derr := o.recovery.ProposeRepairs(ctx, flowID, scope)
	if derr != nil {
		return nil, derr
	}
	log.Printf("Orchestrator: flow %s resolved heuristically via %s (confidence %.2f)",
		flowID, discovered.Heuristic, discovered.Confidence)
	return &FlowStatus{
		FlowID:          flowID,
		FlowType:        discovered.FlowType,
		DiscoveryMethod: DiscoveryMethodHeuristic,
		Confidence:      discovered.Confidence,
		Heuristic:       discovered.Heuristic,
		RepairOptions:   options,
	}, nil
}

// ExecutePhase runs one phase of the flow under the per-flow advisory lock
// and applies the resulting transition. When the decision asks for immediate
// continuation it chains exactly one follow-on phase; phases are never
// auto-chained beyond that.
func (o *Orchestrator) ExecutePhase(ctx context.Context, flowID uuid.UUID, phaseName string, input datatypes.JSON, scope domain.TenantScope) (*PhaseResponse, error) {
	unlock, ok := o.tryLock(flowID)
	if !ok {
		return nil, domain.ErrExecutionInFlight
	}
	defer unlock()

	return o.executeLocked(ctx, flowID, phaseName, input, scope, true)
}

func (o *Orchestrator) executeLocked(ctx context.Context, flowID uuid.UUID, phaseName string, input datatypes.JSON, scope domain.TenantScope, allowChain bool) (*PhaseResponse, error) {
	flow, err := o.flows.GetByID(ctx, flowID, scope)
	if err != nil {
		return nil, err
	}
	if flow.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowTerminal, flow.Status)
	}
	if flow.Status == domain.FlowProcessing {
		// Another process holds the row-level claim.
		return nil, domain.ErrExecutionInFlight
	}
	if !o.registry.IsRegistered(flow.FlowType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFlowType, flow.FlowType)
	}

	child, err := o.flows.GetChildFlow(ctx, flowID, scope)
	if err != nil {
		return nil, err
	}

	// Claim: move to processing guarded by the version column. This is the
	// cross-process half of the per-flow mutual exclusion.
	claim := ports.TransitionUpdate{
		ExpectedVersion: flow.Version,
		Status:          domain.FlowProcessing,
		CurrentPhase:    flow.CurrentPhase,
		RetryCount:      flow.RetryCount,
	}
	if err := o.flows.ApplyTransition(ctx, flowID, scope, claim); err != nil {
		if err == domain.ErrVersionConflict {
			return nil, domain.ErrExecutionInFlight
		}
		return nil, err
	}
	claimedVersion := flow.Version + 1

	started := time.Now()
	result := o.executor.ExecutePhase(ctx, child, phaseName, input)
	metrics.PhaseDuration.WithLabelValues(string(flow.FlowType), phaseName).Observe(time.Since(started).Seconds())
	metrics.PhaseExecutions.WithLabelValues(string(flow.FlowType), phaseName, string(result.Kind)).Inc()

	decision, err := o.decider.Decide(ctx, flow.FlowType, phaseName, result, flow.RetryCount)
	if err != nil {
		// Contract violation from the provider. Release the claim as failed.
		o.release(ctx, flowID, scope, claimedVersion, flow, phaseName, err)
		return nil, err
	}
	metrics.Decisions.WithLabelValues(string(flow.FlowType), string(decision.Action)).Inc()

	update, err := o.buildUpdate(flow, phaseName, result, &decision, claimedVersion)
	if err != nil {
		o.release(ctx, flowID, scope, claimedVersion, flow, phaseName, err)
		return nil, err
	}
	if err := o.flows.ApplyTransition(ctx, flowID, scope, *update); err != nil {
		if err != domain.ErrVersionConflict {
			// The processing claim would dangle otherwise.
			o.release(ctx, flowID, scope, claimedVersion, flow, phaseName, err)
		}
		return nil, err
	}

	resp := &PhaseResponse{
		Result:   result,
		Decision: decision,
		Status:   update.Status,
		Phase:    update.CurrentPhase,
	}
	log.Printf("Orchestrator: flow %s phase %s -> %s (action %s, next %q)",
		flowID, phaseName, result.Kind, decision.Action, decision.NextPhase)

	if allowChain && decision.Action == domain.ActionProceed && decision.Immediate && decision.NextPhase != "" {
		chained, cerr := o.executeLocked(ctx, flowID, decision.NextPhase, nil, scope, false)
		if cerr != nil {
			log.Printf("Orchestrator: chained phase %s of flow %s failed to start: %v", decision.NextPhase, flowID, cerr)
		} else {
			resp.Chained = chained
		}
	}
	return resp, nil
}

// buildUpdate maps a decision onto the optimistic transition that realizes it.
func (o *Orchestrator) buildUpdate(flow *domain.Flow, phaseName string, result domain.PhaseResult, decision *domain.Decision, expectedVersion int) (*ports.TransitionUpdate, error) {
	update := &ports.TransitionUpdate{
		ExpectedVersion: expectedVersion,
		CurrentPhase:    flow.CurrentPhase,
		RetryCount:      flow.RetryCount,
		Transition: &domain.PhaseTransition{
			Phase:     phaseName,
			Status:    string(result.Kind),
			Timestamp: time.Now(),
		},
	}

	switch decision.Action {
	case domain.ActionProceed:
		if decision.NextPhase == "" {
			terminal, err := o.registry.TerminalPhase(flow.FlowType)
			if err != nil {
				return nil, err
			}
			if phaseName != terminal {
				return nil, fmt.Errorf("%w: cannot complete %s flow on non-terminal phase %q",
					domain.ErrUnknownPhase, flow.FlowType, phaseName)
			}
			update.Status = domain.FlowCompleted
			update.CurrentPhase = terminal
			update.RetryCount = 0
			return update, nil
		}
		if !o.registry.Contains(flow.FlowType, decision.NextPhase) {
			return nil, fmt.Errorf("%w: decision proposed phase %q for flow type %s",
				domain.ErrUnknownPhase, decision.NextPhase, flow.FlowType)
		}
		update.Status = domain.FlowActive
		update.CurrentPhase = decision.NextPhase
		update.RetryCount = 0
		return update, nil

	case domain.ActionPause:
		update.Status = domain.FlowPaused
		update.PausedReason = pauseReason(result)
		return update, nil

	case domain.ActionRetry:
		update.RetryCount = flow.RetryCount + 1
		update.ErrorEntry = &domain.ErrorRecord{
			Phase:     phaseName,
			Error:     result.Cause,
			Details:   decision.Reasoning,
			Timestamp: time.Now(),
		}
		if update.RetryCount > o.retryCeiling {
			// Ceiling reached: force the failure regardless of the verdict.
			update.Status = domain.FlowFailed
			return update, nil
		}
		update.Status = domain.FlowActive
		return update, nil

	case domain.ActionFail:
		update.Status = domain.FlowFailed
		update.ErrorEntry = &domain.ErrorRecord{
			Phase:     phaseName,
			Error:     result.Cause,
			Details:   decision.Reasoning,
			Timestamp: time.Now(),
		}
		return update, nil

	default:
		return nil, fmt.Errorf("unrecognized decision action %q", decision.Action)
	}
}

// release drops a processing claim after an internal error, recording the
// cause so the claim can never be left dangling silently.
func (o *Orchestrator) release(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope, claimedVersion int, flow *domain.Flow, phaseName string, cause error) {
	update := ports.TransitionUpdate{
		ExpectedVersion: claimedVersion,
		Status:          domain.FlowFailed,
		CurrentPhase:    flow.CurrentPhase,
		RetryCount:      flow.RetryCount,
		ErrorEntry: &domain.ErrorRecord{
			Phase:     phaseName,
			Error:     cause.Error(),
			Timestamp: time.Now(),
		},
	}
	if err := o.flows.ApplyTransition(ctx, flowID, scope, update); err != nil {
		log.Printf("Orchestrator: failed to release claim on flow %s: %v", flowID, err)
	}
}

// CancelFlow cancels a non-terminal flow. Safe to call concurrently with an
// in-flight ExecutePhase: the version conflict is retried, so the in-flight
// execution completes normally and cancellation lands as the next transition.
func (o *Orchestrator) CancelFlow(ctx context.Context, flowID uuid.UUID, scope domain.TenantScope) error {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		flow, err := o.flows.GetByID(ctx, flowID, scope)
		if err != nil {
			return err
		}
		if flow.IsTerminal() {
			return fmt.Errorf("%w: %s", domain.ErrFlowTerminal, flow.Status)
		}
		if flow.Status == domain.FlowProcessing && i < attempts-1 {
			// An execution holds the claim. Let its transition commit so
			// the phase result is not lost; cancellation lands after it.
			// A claim still held on the last attempt is treated as a
			// crashed process and cancelled anyway.
			time.Sleep(50 * time.Millisecond)
			continue
		}

		update := ports.TransitionUpdate{
			ExpectedVersion: flow.Version,
			Status:          domain.FlowCancelled,
			CurrentPhase:    flow.CurrentPhase,
			RetryCount:      flow.RetryCount,
			Transition: &domain.PhaseTransition{
				Phase:     flow.CurrentPhase,
				Status:    string(domain.FlowCancelled),
				Timestamp: time.Now(),
			},
		}
		err = o.flows.ApplyTransition(ctx, flowID, scope, update)
		if err == nil {
			log.Printf("Orchestrator: flow %s cancelled", flowID)
			return nil
		}
		if err != domain.ErrVersionConflict {
			return err
		}
		// An execution is finishing; wait for its transition to commit.
		time.Sleep(50 * time.Millisecond)
	}
	return domain.ErrVersionConflict
}

// RepairOrphanedData executes one proposed repair option.
func (o *Orchestrator) RepairOrphanedData(ctx context.Context, flowID uuid.UUID, optionID string, targetID *uuid.UUID, scope domain.TenantScope) (*recovery.RepairResult, error) {
	return o.recovery.ApplyRepair(ctx, flowID, optionID, targetID, scope)
}

// ResumeFromBackground applies a background-job completion signal. The flow
// must still be paused on the phase the job belongs to; anything else means
// the signal is stale and is dropped.
func (o *Orchestrator) ResumeFromBackground(ctx context.Context, event domain.BackgroundJobCompletedEvent) error {
	scope := domain.TenantScope{ClientAccountID: event.ClientAccountID, EngagementID: event.EngagementID}
	flow, err := o.flows.GetByID(ctx, event.FlowID, scope)
	if err != nil {
		return err
	}
	if flow.Status != domain.FlowPaused || flow.CurrentPhase != event.Phase {
		log.Printf("Orchestrator: dropping stale completion for flow %s phase %s", event.FlowID, event.Phase)
		return nil
	}

	update := ports.TransitionUpdate{
		ExpectedVersion: flow.Version,
		CurrentPhase:    flow.CurrentPhase,
		Transition: &domain.PhaseTransition{
			Phase:     event.Phase,
			Timestamp: time.Now(),
		},
	}

	if !event.Success {
		update.Status = domain.FlowFailed
		update.RetryCount = flow.RetryCount
		update.Transition.Status = "background_failed"
		update.ErrorEntry = &domain.ErrorRecord{
			Phase:     event.Phase,
			Error:     event.Error,
			Timestamp: time.Now(),
		}
		return o.flows.ApplyTransition(ctx, event.FlowID, scope, update)
	}

	next, err := o.registry.NextAfter(flow.FlowType, event.Phase)
	if err != nil {
		return err
	}
	update.Transition.Status = "background_completed"
	if next == "" {
		update.Status = domain.FlowCompleted
	} else {
		update.Status = domain.FlowActive
		update.CurrentPhase = next
	}
	if err := o.flows.ApplyTransition(ctx, event.FlowID, scope, update); err != nil {
		return err
	}
	log.Printf("Orchestrator: flow %s resumed after background %s (next phase %q)", event.FlowID, event.JobType, next)
	return nil
}

func (o *Orchestrator) tryLock(flowID uuid.UUID) (func(), bool) {
	m, _ := o.locks.LoadOrStore(flowID, &sync.Mutex{})
	mtx := m.(*sync.Mutex)
	if !mtx.TryLock() {
		return nil, false
	}
	return mtx.Unlock, true
}

func pauseReason(result domain.PhaseResult) string {
	if result.Reason != "" {
		return result.Reason
	}
	if result.Kind == domain.PhaseAwaitingBackground {
		return "background_generation"
	}
	return "awaiting_user_input"
}

func decodeTransitions(raw datatypes.JSON) []domain.PhaseTransition {
	var entries []domain.PhaseTransition
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &entries)
	}
	return entries
}

func decodeErrors(raw datatypes.JSON) []domain.ErrorRecord {
	var entries []domain.ErrorRecord
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &entries)
	}
	return entries
}
