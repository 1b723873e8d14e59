package bulk

import (
	"context"
	"fmt"
	"log"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"
	"flowengine/internal/metrics"

	"github.com/google/uuid"
)

// DefaultChunkSize is the fixed chunk size bulk submissions are partitioned
// into when the caller does not tune it.
const DefaultChunkSize = 100

type ConflictStrategy string

const (
	StrategySkip      ConflictStrategy = "skip"
	StrategyOverwrite ConflictStrategy = "overwrite"
)

type PreviewSummary struct {
	TargetCount   int `json:"target_count"`
	FieldCount    int `json:"field_count"`
	ConflictCount int `json:"conflict_count"`
}

type PreviewResult struct {
	Conflicts []domain.Conflict `json:"conflicts"`
	Summary   PreviewSummary    `json:"summary"`
}

// ChunkFailure records one rolled-back chunk: which targets it covered and
// why it failed. Sibling chunks are unaffected.
type ChunkFailure struct {
	Index int    `json:"index"`
	Start int    `json:"start"` // target offsets, inclusive/exclusive
	End   int    `json:"end"`
	Error string `json:"error"`
}

type SubmitResult struct {
	Success      bool           `json:"success"`
	TotalTargets int            `json:"total_targets"`
	Updated      int            `json:"updated"`
	Skipped      int            `json:"skipped"`
	ChunkCount   int            `json:"chunk_count"`
	FailedChunks []ChunkFailure `json:"failed_chunks,omitempty"`
}

// ProgressFunc is invoked after every committed chunk with the running
// updated count, so progress is observable before Submit returns.
type ProgressFunc func(chunkIndex int, updatedSoFar int)

// Service is the chunked, conflict-aware bulk mutation engine over a flow's
// gap set.
type Service struct {
	gaps      ports.GapRepository
	chunkSize int
}

func NewService(gaps ports.GapRepository, chunkSize int) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Service{gaps: gaps, chunkSize: chunkSize}
}

// Preview loads the targets' existing values and reports every field where
// two or more distinct non-null values exist across the set. Read-only; no
// locks held beyond the query.
func (s *Service) Preview(ctx context.Context, scope domain.TenantScope, targetIDs []uuid.UUID, fields []string) (*PreviewResult, error) {
	gaps, err := s.gaps.FindByIDs(ctx, scope, targetIDs)
	if err != nil {
		return nil, err
	}

	fieldFilter := make(map[string]bool, len(fields))
	for _, f := range fields {
		fieldFilter[f] = true
	}

	// field -> distinct non-null value -> occurrence count
	byField := make(map[string]map[string]int)
	targetsPerField := make(map[string]int)
	for _, g := range gaps {
		if len(fieldFilter) > 0 && !fieldFilter[g.FieldName] {
			continue
		}
		targetsPerField[g.FieldName]++
		if g.ResolvedValue == nil {
			continue
		}
		if byField[g.FieldName] == nil {
			byField[g.FieldName] = make(map[string]int)
		}
		byField[g.FieldName][*g.ResolvedValue]++
	}

	var conflicts []domain.Conflict
	for field, values := range byField {
		if len(values) < 2 {
			continue
		}
		distinct := make([]string, 0, len(values))
		for v := range values {
			distinct = append(distinct, v)
		}
		conflicts = append(conflicts, domain.Conflict{
			FieldName:      field,
			DistinctValues: distinct,
			ConflictCount:  len(values),
			TargetCount:    targetsPerField[field],
		})
	}

	return &PreviewResult{
		Conflicts: conflicts,
		Summary: PreviewSummary{
			TargetCount:   len(gaps),
			FieldCount:    len(targetsPerField),
			ConflictCount: len(conflicts),
		},
	}, nil
}

// Submit partitions the resolutions into fixed-size chunks and applies each
// chunk in its own transaction, sequentially. A failing chunk rolls back
// alone; prior chunks stay committed and later chunks are still attempted.
func (s *Service) Submit(ctx context.Context, scope domain.TenantScope, resolutions []ports.GapResolution, strategy ConflictStrategy, progress ProgressFunc) (*SubmitResult, error) {
	if strategy != StrategySkip && strategy != StrategyOverwrite {
		return nil, fmt.Errorf("unknown conflict strategy %q", strategy)
	}

	result := &SubmitResult{TotalTargets: len(resolutions)}
	overwrite := strategy == StrategyOverwrite

	for start := 0; start < len(resolutions); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(resolutions) {
			end = len(resolutions)
		}
		chunkIndex := result.ChunkCount
		result.ChunkCount++

		updated, skipped, err := s.gaps.ApplyResolutions(ctx, scope, resolutions[start:end], overwrite)
		if err != nil {
			metrics.BulkChunksFailed.Inc()
			log.Printf("Bulk: chunk %d (%d..%d) rolled back: %v", chunkIndex, start, end, err)
			result.FailedChunks = append(result.FailedChunks, ChunkFailure{
				Index: chunkIndex,
				Start: start,
				End:   end,
				Error: err.Error(),
			})
			continue
		}

		metrics.BulkChunksCommitted.Inc()
		result.Updated += updated
		result.Skipped += skipped
		if progress != nil {
			progress(chunkIndex, result.Updated)
		}
	}

	result.Success = len(result.FailedChunks) == 0
	return result, nil
}
