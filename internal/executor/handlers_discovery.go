package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"
	"flowengine/internal/flowtype"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Phase names of the discovery sequence.
const (
	PhaseDataImport          = "data_import"
	PhaseFieldMapping        = "field_mapping"
	PhaseDataValidation      = "data_validation"
	PhaseAssetClassification = "asset_classification"
	PhaseReportGeneration    = "report_generation"
)

type dataImportInput struct {
	Source      string `json:"source"`
	RecordCount int    `json:"record_count"`
}

type fieldMappingInput struct {
	Mappings map[string]string `json:"mappings"`
}

// DiscoveryHandlers builds the ordered phase sequence for discovery flows.
func DiscoveryHandlers(imports ports.ImportRepository, queue ports.BackgroundQueue, limiter ports.RateLimiter) []flowtype.PhaseDescriptor {
	return []flowtype.PhaseDescriptor{
		{Name: PhaseDataImport, Handler: dataImportHandler(imports)},
		{Name: PhaseFieldMapping, Handler: fieldMappingHandler()},
		{Name: PhaseDataValidation, Handler: dataValidationHandler(imports)},
		{Name: PhaseAssetClassification, Handler: classificationHandler(queue, limiter)},
		{Name: PhaseReportGeneration, Handler: reportGenerationHandler()},
	}
}

// dataImportHandler records an import batch against the flow. The import
// record is also what corruption recovery later searches for.
func dataImportHandler(imports ports.ImportRepository) flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		var in dataImportInput
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return domain.ErroredResult("data_import: bad input: " + err.Error())
			}
		}
		if in.Source == "" {
			in.Source = "manual_upload"
		}

		rec := domain.NewImportRecord(childFlow.FlowID, scopeOf(childFlow), in.Source, in.RecordCount)
		if err := imports.Create(ctx, rec); err != nil {
			return domain.ErroredResult("data_import: " + err.Error())
		}

		out, _ := json.Marshal(map[string]any{
			"import_id":    rec.ID,
			"source":       rec.Source,
			"record_count": rec.RecordCount,
		})
		return domain.CompletedResult(out)
	}
}

func fieldMappingHandler() flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		var in fieldMappingInput
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return domain.ErroredResult("field_mapping: bad input: " + err.Error())
			}
		}
		if len(in.Mappings) == 0 {
			// No mapping supplied: the caller still has to provide one.
			return domain.AwaitingInputResult("awaiting_user_input")
		}
		out, _ := json.Marshal(map[string]any{"mapped_fields": len(in.Mappings)})
		return domain.CompletedResult(out)
	}
}

func dataValidationHandler(imports ports.ImportRepository) flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		records, err := imports.FindByFlowID(ctx, childFlow.FlowID)
		if err != nil {
			return domain.ErroredResult("data_validation: " + err.Error())
		}
		if len(records) == 0 {
			return domain.ErroredResult("data_validation: no import records for flow")
		}
		total := 0
		for _, r := range records {
			total += r.RecordCount
		}
		out, _ := json.Marshal(map[string]any{"imports": len(records), "records_validated": total})
		return domain.CompletedResult(out)
	}
}

// classificationHandler dispatches asset classification as a detached
// enrichment job. The phase pauses on awaiting_background and is resumed by
// the completion listener, not by a timer. The rate limiter keeps a retrying
// caller from queueing the same enrichment twice.
func classificationHandler(queue ports.BackgroundQueue, limiter ports.RateLimiter) flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		allowed, err := limiter.Allow(ctx, "enrichment:"+childFlow.FlowID.String())
		if err != nil {
			return domain.ErroredResult("asset_classification: rate limiter: " + err.Error())
		}
		if !allowed {
			// A job for this flow is already in flight; keep waiting on it.
			return domain.AwaitingBackgroundResult("background_generation")
		}

		job := domain.BackgroundJob{
			ID:              uuid.New(),
			FlowID:          childFlow.FlowID,
			Phase:           PhaseAssetClassification,
			JobType:         "enrichment",
			ClientAccountID: childFlow.ClientAccountID,
			EngagementID:    childFlow.EngagementID,
		}
		if err := queue.Push(ctx, job); err != nil {
			return domain.ErroredResult("asset_classification: queue: " + err.Error())
		}
		log.Printf("Executor: dispatched enrichment job %s for flow %s", job.ID, childFlow.FlowID)
		return domain.AwaitingBackgroundResult("background_generation")
	}
}

func reportGenerationHandler() flowtype.PhaseHandler {
	return func(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
		out, _ := json.Marshal(map[string]any{
			"report": fmt.Sprintf("discovery-report-%s", childFlow.FlowID),
		})
		return domain.CompletedResult(out)
	}
}

func scopeOf(childFlow *domain.ChildFlow) domain.TenantScope {
	return domain.TenantScope{
		ClientAccountID: childFlow.ClientAccountID,
		EngagementID:    childFlow.EngagementID,
	}
}
