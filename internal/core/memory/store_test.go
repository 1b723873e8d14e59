package memory

import (
	"context"
	"testing"

	"flowengine/internal/core/ports"
	"flowengine/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFlow(t *testing.T, store *Store) (*domain.Flow, domain.TenantScope) {
	t.Helper()
	scope := domain.TenantScope{ClientAccountID: uuid.New(), EngagementID: uuid.New()}
	flow := domain.NewFlow(domain.FlowTypeDiscovery, "Seed", "data_import", scope)
	child := domain.NewChildFlow(flow, nil)
	require.NoError(t, store.CreateFlowWithChild(context.Background(), flow, child))
	return flow, scope
}

func TestApplyTransitionRejectsIllegalStatusChange(t *testing.T) {
	store := NewStore()
	flow, scope := seedFlow(t, store)
	ctx := context.Background()

	// initialized cannot jump straight to completed, even at the right
	// version.
	err := store.ApplyTransition(ctx, flow.ID, scope, ports.TransitionUpdate{
		ExpectedVersion: flow.Version,
		Status:          domain.FlowCompleted,
		CurrentPhase:    flow.CurrentPhase,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := store.GetByID(ctx, flow.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, domain.FlowInitialized, got.Status)
	assert.Equal(t, flow.Version, got.Version)
}

func TestApplyTransitionAllowsSameStatusWrite(t *testing.T) {
	store := NewStore()
	flow, scope := seedFlow(t, store)
	ctx := context.Background()

	// Writing the current status is not a transition and stays legal.
	err := store.ApplyTransition(ctx, flow.ID, scope, ports.TransitionUpdate{
		ExpectedVersion: flow.Version,
		Status:          domain.FlowInitialized,
		CurrentPhase:    flow.CurrentPhase,
	})
	require.NoError(t, err)

	got, err := store.GetByID(ctx, flow.ID, scope)
	require.NoError(t, err)
	assert.Equal(t, flow.Version+1, got.Version)
}

func TestApplyTransitionVersionConflict(t *testing.T) {
	store := NewStore()
	flow, scope := seedFlow(t, store)

	err := store.ApplyTransition(context.Background(), flow.ID, scope, ports.TransitionUpdate{
		ExpectedVersion: flow.Version + 7,
		Status:          domain.FlowProcessing,
		CurrentPhase:    flow.CurrentPhase,
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}
