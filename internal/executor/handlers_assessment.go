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

// Phase names of the assessment sequence.
const (
	PhaseEnvironmentScan  = "environment_scan"
	PhaseReadinessScoring = "readiness_scoring"
	PhaseGapAnalysis      = "gap_analysis"
	PhaseRecommendation   = "recommendation"
)

type environmentScanInput struct {
	Targets []uuid.UUID `json:"targets"`
}

type gapAnalysisInput struct {
	Targets []uuid.UUID `json:"targets"`
	Fields  []string    `json:"fields"`
}

// AssessmentHandlers builds the ordered phase sequence for assessment flows.
func AssessmentHandlers(gaps ports.GapRepository) []flowtype.PhaseDescriptor {
	return []flowtype.PhaseDescriptor{
		{Name: PhaseEnvironmentScan, Handler: environmentScanHandler()},
		{Name: PhaseReadinessScoring, Handler: readinessScoringHandler()},
		{Name: PhaseGapAnalysis, Handler: gapAnalysisHandler(gaps)},
		{Name: PhaseRecommendation, Handler: recommendationHandler()},
	}
}

func environmentScanHandler() flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		var in environmentScanInput
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return domain.ErroredResult("environment_scan: bad input: " + err.Error())
			}
		}
		if len(in.Targets) == 0 {
			return domain.SkippedResult("no targets in scope")
		}
		out, _ := json.Marshal(map[string]any{"targets_scanned": len(in.Targets)})
		return domain.CompletedResult(out)
	}
}

func readinessScoringHandler() flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		out, _ := json.Marshal(map[string]any{"tier": childFlow.AutomationTier})
		return domain.CompletedResult(out)
	}
}

// gapAnalysisHandler materializes one gap per missing (target, field) pair.
// Gaps are never deleted afterwards; bulk submission marks them resolved.
func gapAnalysisHandler(gaps ports.GapRepository) flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		var in gapAnalysisInput
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return domain.ErroredResult("gap_analysis: bad input: " + err.Error())
			}
		}
		if len(in.Targets) == 0 || len(in.Fields) == 0 {
			return domain.SkippedResult("nothing to analyze")
		}

		var detected []domain.Gap
		for _, target := range in.Targets {
			for i, field := range in.Fields {
				priority := 1 + i%4
				g := domain.NewGap(childFlow, target, field, "What is the value of "+field+"?", priority)
				detected = append(detected, *g)
			}
		}
		if err := gaps.CreateMany(ctx, detected); err != nil {
			return domain.ErroredResult("gap_analysis: " + err.Error())
		}

		out, _ := json.Marshal(map[string]any{"gaps_detected": len(detected)})
		return domain.CompletedResult(out)
	}
}

func recommendationHandler() flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		out, _ := json.Marshal(map[string]any{"recommendation": "proceed_to_collection"})
		return domain.CompletedResult(out)
	}
}
