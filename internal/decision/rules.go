package decision

import (
	"context"
	"encoding/json"
	"fmt"

	"flowengine/internal/domain"
	"flowengine/internal/flowtype"
)

// RuleBasedProvider is the deterministic fallback PhaseDecisionProvider. The
// orchestrator's correctness never depends on an external model: given the
// same inputs this provider always returns the same verdict.
type RuleBasedProvider struct {
	registry     *flowtype.Registry
	retryCeiling int
}

func NewRuleBasedProvider(registry *flowtype.Registry, retryCeiling int) *RuleBasedProvider {
	return &RuleBasedProvider{registry: registry, retryCeiling: retryCeiling}
}

func (p *RuleBasedProvider) Decide(ctx context.Context, flowType domain.FlowType, phaseName string, result domain.PhaseResult, retryCount int) (domain.Decision, error) {
	if !p.registry.IsRegistered(flowType) {
		return domain.Decision{}, fmt.Errorf("%w: %s", domain.ErrInvalidFlowType, flowType)
	}

	switch result.Kind {
	case domain.PhaseAwaitingBackground:
		// A background operation is still in flight. The contract forbids
		// FAIL here: the completion signal resumes the flow, not us.
		return domain.Decision{
			Action:     domain.ActionPause,
			Confidence: 1.0,
			Reasoning:  "background operation in flight",
		}, nil

	case domain.PhaseAwaitingInput:
		return domain.Decision{
			Action:     domain.ActionPause,
			Confidence: 1.0,
			Reasoning:  "awaiting user input: " + result.Reason,
		}, nil

	case domain.PhaseErrored:
		if retryCount >= p.retryCeiling {
			return domain.Decision{
				Action:     domain.ActionFail,
				Confidence: 1.0,
				Reasoning:  fmt.Sprintf("retry ceiling %d exceeded", p.retryCeiling),
			}, nil
		}
		return domain.Decision{
			Action:     domain.ActionRetry,
			Confidence: 1.0,
			Reasoning:  fmt.Sprintf("retry %d of %d", retryCount+1, p.retryCeiling),
		}, nil

	case domain.PhaseCompleted, domain.PhaseSkipped:
		next, err := p.registry.NextAfter(flowType, phaseName)
		if err != nil {
			// Next phase cannot be determined: fail loudly, never complete
			// a flow silently on an unknown phase.
			return domain.Decision{
				Action:     domain.ActionFail,
				Confidence: 1.0,
				Reasoning:  err.Error(),
			}, nil
		}
		return domain.Decision{
			Action:     domain.ActionProceed,
			NextPhase:  next, // "" means the sequence is finished
			Immediate:  wantsImmediate(result),
			Confidence: 1.0,
			Reasoning:  "phase " + phaseName + " " + string(result.Kind),
		}, nil

	default:
		return domain.Decision{}, fmt.Errorf("unrecognized phase result kind %q", result.Kind)
	}
}

// wantsImmediate reports whether the phase result asked for the next phase to
// run within the same request. The orchestrator still bounds chaining to a
// single hop.
func wantsImmediate(result domain.PhaseResult) bool {
	if len(result.Data) == 0 {
		return false
	}
	var data struct {
		AutoContinue bool `json:"auto_continue"`
	}
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return false
	}
	return data.AutoContinue
}
