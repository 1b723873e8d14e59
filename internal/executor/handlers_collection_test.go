package executor

import (
	"context"
	"fmt"
	"testing"

	"flowengine/internal/core/memory"
	"flowengine/internal/core/ports"
	"flowengine/internal/domain"
	"flowengine/internal/flowtype"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func collectionFixture(t *testing.T) (*Executor, *memory.Store, *domain.ChildFlow) {
	t.Helper()
	store := memory.NewStore()
	registry := flowtype.NewRegistry()
	require.NoError(t, registry.Register(domain.FlowTypeCollection, CollectionHandlers(store)))

	scope := domain.TenantScope{ClientAccountID: uuid.New(), EngagementID: uuid.New()}
	flow := domain.NewFlow(domain.FlowTypeCollection, "Collect", PhaseScopeDefinition, scope)
	child := domain.NewChildFlow(flow, nil)
	require.NoError(t, store.CreateFlowWithChild(context.Background(), flow, child))

	return NewExecutor(registry), store, child
}

func scanInput(targets int, fields ...string) datatypes.JSON {
	ids := make([]string, targets)
	for i := range ids {
		ids[i] = fmt.Sprintf("%q", uuid.New())
	}
	raw := `{"targets":[`
	for i, id := range ids {
		if i > 0 {
			raw += ","
		}
		raw += id
	}
	raw += `],"fields":[`
	for i, f := range fields {
		if i > 0 {
			raw += ","
		}
		raw += fmt.Sprintf("%q", f)
	}
	raw += `]}`
	return datatypes.JSON([]byte(raw))
}

func TestScopeDefinitionAwaitsTargets(t *testing.T) {
	exec, _, child := collectionFixture(t)

	result := exec.ExecutePhase(context.Background(), child, PhaseScopeDefinition, nil)
	assert.Equal(t, domain.PhaseAwaitingInput, result.Kind)
}

func TestGapScanMaterializesGaps(t *testing.T) {
	ctx := context.Background()
	exec, store, child := collectionFixture(t)

	result := exec.ExecutePhase(ctx, child, PhaseGapScan, scanInput(3, "os_version", "owner"))
	require.Equal(t, domain.PhaseCompleted, result.Kind)

	scope := domain.TenantScope{ClientAccountID: child.ClientAccountID, EngagementID: child.EngagementID}
	gaps, err := store.FindByChildFlow(ctx, scope, child.ID)
	require.NoError(t, err)
	assert.Len(t, gaps, 6)
	for _, g := range gaps {
		assert.Equal(t, domain.GapPending, g.ResolutionStatus)
	}
}

func TestGapScanWithoutScopeSkips(t *testing.T) {
	exec, _, child := collectionFixture(t)

	result := exec.ExecutePhase(context.Background(), child, PhaseGapScan, nil)
	assert.Equal(t, domain.PhaseSkipped, result.Kind)
}

func TestBulkCollectionWaitsForPendingGaps(t *testing.T) {
	ctx := context.Background()
	exec, store, child := collectionFixture(t)
	scope := domain.TenantScope{ClientAccountID: child.ClientAccountID, EngagementID: child.EngagementID}

	require.Equal(t, domain.PhaseCompleted, exec.ExecutePhase(ctx, child, PhaseGapScan, scanInput(2, "owner")).Kind)

	result := exec.ExecutePhase(ctx, child, PhaseBulkCollection, nil)
	assert.Equal(t, domain.PhaseAwaitingInput, result.Kind)

	// Verification refuses to pass while anything is unresolved.
	result = exec.ExecutePhase(ctx, child, PhaseVerification, nil)
	assert.Equal(t, domain.PhaseErrored, result.Kind)

	gaps, err := store.FindByChildFlow(ctx, scope, child.ID)
	require.NoError(t, err)
	resolutions := make([]ports.GapResolution, len(gaps))
	for i, g := range gaps {
		resolutions[i] = ports.GapResolution{GapID: g.ID, Value: "filled", ResolvedBy: uuid.New()}
	}
	_, _, err = store.ApplyResolutions(ctx, scope, resolutions, false)
	require.NoError(t, err)

	result = exec.ExecutePhase(ctx, child, PhaseBulkCollection, nil)
	assert.Equal(t, domain.PhaseCompleted, result.Kind)
	result = exec.ExecutePhase(ctx, child, PhaseVerification, nil)
	assert.Equal(t, domain.PhaseCompleted, result.Kind)
}
