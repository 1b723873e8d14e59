package flowtype

import (
	"context"
	"fmt"

	"flowengine/internal/domain"

	"gorm.io/datatypes"
)

// PhaseHandler is the blueprint for the work of one phase. Handlers are pure
// with respect to orchestration state: they read their inputs, do their work
// and return a result. They never touch current_phase or flow status.
type PhaseHandler func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult

// PhaseDescriptor is one entry of a flow type's ordered phase sequence.
type PhaseDescriptor struct {
	Name    string
	Handler PhaseHandler
}

// Registry maps each flow type to its ordered phase sequence. It is built at
// startup and rejects bad registrations immediately, so unregistered types
// and duplicate phases can never surface as call-time surprises.
type Registry struct {
	sequences map[domain.FlowType][]PhaseDescriptor
}

func NewRegistry() *Registry {
	return &Registry{sequences: make(map[domain.FlowType][]PhaseDescriptor)}
}

func (r *Registry) Register(flowType domain.FlowType, phases []PhaseDescriptor) error {
	if flowType == "" {
		return fmt.Errorf("register: empty flow type")
	}
	if _, exists := r.sequences[flowType]; exists {
		return fmt.Errorf("register: flow type %q already registered", flowType)
	}
	if len(phases) == 0 {
		return fmt.Errorf("register: flow type %q has no phases", flowType)
	}
	seen := make(map[string]bool, len(phases))
	for _, p := range phases {
		if p.Name == "" {
			return fmt.Errorf("register: flow type %q has a phase with no name", flowType)
		}
		if p.Handler == nil {
			return fmt.Errorf("register: phase %q of flow type %q has no handler", p.Name, flowType)
		}
		if seen[p.Name] {
			return fmt.Errorf("register: duplicate phase %q for flow type %q", p.Name, flowType)
		}
		seen[p.Name] = true
	}
	r.sequences[flowType] = phases
	return nil
}

func (r *Registry) IsRegistered(flowType domain.FlowType) bool {
	_, ok := r.sequences[flowType]
	return ok
}

// FirstPhase returns the entry phase for a flow type.
func (r *Registry) FirstPhase(flowType domain.FlowType) (string, error) {
	seq, ok := r.sequences[flowType]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidFlowType, flowType)
	}
	return seq[0].Name, nil
}

// TerminalPhase returns the last phase of a flow type's sequence. A flow may
// only be marked completed while sitting on this phase.
func (r *Registry) TerminalPhase(flowType domain.FlowType) (string, error) {
	seq, ok := r.sequences[flowType]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidFlowType, flowType)
	}
	return seq[len(seq)-1].Name, nil
}

func (r *Registry) Contains(flowType domain.FlowType, phase string) bool {
	for _, p := range r.sequences[flowType] {
		if p.Name == phase {
			return true
		}
	}
	return false
}

// NextAfter returns the phase following the given one, or "" when the given
// phase is the terminal phase of the sequence.
func (r *Registry) NextAfter(flowType domain.FlowType, phase string) (string, error) {
	seq, ok := r.sequences[flowType]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidFlowType, flowType)
	}
	for i, p := range seq {
		if p.Name == phase {
			if i == len(seq)-1 {
				return "", nil
			}
			return seq[i+1].Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s has no phase %q", domain.ErrUnknownPhase, flowType, phase)
}

// Handler looks up the handler for a phase of a registered flow type.
func (r *Registry) Handler(flowType domain.FlowType, phase string) (PhaseHandler, error) {
	seq, ok := r.sequences[flowType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidFlowType, flowType)
	}
	for _, p := range seq {
		if p.Name == phase {
			return p.Handler, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no phase %q", domain.ErrUnknownPhase, flowType, phase)
}
