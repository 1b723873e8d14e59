package executor

import (
	"context"
	"encoding/json"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"
	"flowengine/internal/flowtype"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Phase names of the collection sequence.
const (
	PhaseScopeDefinition = "scope_definition"
	PhaseGapScan         = "gap_scan"
	PhaseBulkCollection  = "bulk_collection"
	PhaseVerification    = "verification"
)

type scopeDefinitionInput struct {
	Targets []uuid.UUID `json:"targets"`
}

type gapScanInput struct {
	Targets []uuid.UUID `json:"targets"`
	Fields  []string    `json:"fields"`
}

// CollectionHandlers builds the ordered phase sequence for collection flows.
func CollectionHandlers(gaps ports.GapRepository) []flowtype.PhaseDescriptor {
	return []flowtype.PhaseDescriptor{
		{Name: PhaseScopeDefinition, Handler: scopeDefinitionHandler()},
		{Name: PhaseGapScan, Handler: gapScanHandler(gaps)},
		{Name: PhaseBulkCollection, Handler: bulkCollectionHandler(gaps)},
		{Name: PhaseVerification, Handler: verificationHandler(gaps)},
	}
}

func scopeDefinitionHandler() flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		var in scopeDefinitionInput
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return domain.ErroredResult("scope_definition: bad input: " + err.Error())
			}
		}
		if len(in.Targets) == 0 {
			return domain.AwaitingInputResult("awaiting_user_input")
		}
		out, _ := json.Marshal(map[string]any{"scoped_targets": len(in.Targets)})
		return domain.CompletedResult(out)
	}
}

func gapScanHandler(gaps ports.GapRepository) flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		var in gapScanInput
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return domain.ErroredResult("gap_scan: bad input: " + err.Error())
			}
		}
		if len(in.Targets) == 0 || len(in.Fields) == 0 {
			return domain.SkippedResult("nothing to scan")
		}

		var detected []domain.Gap
		for _, target := range in.Targets {
			for _, field := range in.Fields {
				g := domain.NewGap(childFlow, target, field, "Collect "+field, 2)
				detected = append(detected, *g)
			}
		}
		if err := gaps.CreateMany(ctx, detected); err != nil {
			return domain.ErroredResult("gap_scan: " + err.Error())
		}
		out, _ := json.Marshal(map[string]any{"gaps_detected": len(detected)})
		return domain.CompletedResult(out)
	}
}

// bulkCollectionHandler does not resolve anything itself; callers resolve
// gaps through the bulk mutation service while this phase waits. The phase
// completes once no pending gaps remain.
func bulkCollectionHandler(gaps ports.GapRepository) flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		all, err := gaps.FindByChildFlow(ctx, scopeOf(childFlow), childFlow.ID)
		if err != nil {
			return domain.ErroredResult("bulk_collection: " + err.Error())
		}
		pending := 0
		for _, g := range all {
			if g.ResolutionStatus == domain.GapPending {
				pending++
			}
		}
		if pending > 0 {
			return domain.AwaitingInputResult("awaiting_user_input")
		}
		out, _ := json.Marshal(map[string]any{"gaps_resolved": len(all)})
		return domain.CompletedResult(out)
	}
}

func verificationHandler(gaps ports.GapRepository) flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		all, err := gaps.FindByChildFlow(ctx, scopeOf(childFlow), childFlow.ID)
		if err != nil {
			return domain.ErroredResult("verification: " + err.Error())
		}
		for _, g := range all {
			if g.ResolutionStatus != domain.GapResolved {
				return domain.ErroredResult("verification: unresolved gap " + g.ID.String())
			}
		}
		out, _ := json.Marshal(map[string]any{"verified_gaps": len(all)})
		return domain.CompletedResult(out)
	}
}
