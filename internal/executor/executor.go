package executor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"flowengine/internal/domain"
	"flowengine/internal/flowtype"

	"gorm.io/datatypes"
)

// Executor runs one phase of a child flow. It owns no orchestration state;
// which phase runs next is decided elsewhere.
type Executor struct {
	registry *flowtype.Registry
}

func NewExecutor(registry *flowtype.Registry) *Executor {
	return &Executor{registry: registry}
}

// ExecutePhase looks the handler up and runs it. An unknown phase for a
// registered flow type is a hard Errored result, never a silent success
// that would truncate the workflow.
func (e *Executor) ExecutePhase(ctx context.Context, childFlow *domain.ChildFlow, phaseName string, input datatypes.JSON) domain.PhaseResult {
	handler, err := e.registry.Handler(childFlow.FlowType, phaseName)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPhase) {
			log.Printf("Executor: unknown phase %q for flow type %s", phaseName, childFlow.FlowType)
			return domain.ErroredResult(err.Error())
		}
		return domain.ErroredResult(err.Error())
	}

	return runHandler(ctx, handler, childFlow, phaseName, input)
}

// runHandler converts a panicking handler into an Errored result so that a
// bad handler can never take the orchestrator down with it.
func runHandler(ctx context.Context, handler flowtype.PhaseHandler, childFlow *domain.ChildFlow, phaseName string, input datatypes.JSON) (result domain.PhaseResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Executor: phase %q panicked: %v", phaseName, r)
			result = domain.ErroredResult(fmt.Sprintf("phase %s panicked: %v", phaseName, r))
		}
	}()
	return handler(ctx, childFlow, input)
}
