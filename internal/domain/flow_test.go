package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func testScope() TenantScope {
	return TenantScope{ClientAccountID: uuid.New(), EngagementID: uuid.New()}
}

func TestNewFlowDefaults(t *testing.T) {
	scope := testScope()
	f := NewFlow(FlowTypeDiscovery, "Test", "data_import", scope)

	assert.Equal(t, FlowInitialized, f.Status)
	assert.Equal(t, "data_import", f.CurrentPhase)
	assert.Equal(t, 0, f.RetryCount)
	assert.Equal(t, 1, f.Version)
	assert.Equal(t, scope.ClientAccountID, f.ClientAccountID)
	assert.False(t, f.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    FlowStatus
		to      FlowStatus
		allowed bool
	}{
		{FlowInitialized, FlowActive, true},
		{FlowInitialized, FlowProcessing, true},
		{FlowInitialized, FlowCompleted, false},
		{FlowActive, FlowProcessing, true},
		{FlowProcessing, FlowPaused, true},
		{FlowPaused, FlowProcessing, true},
		{FlowPaused, FlowCompleted, true},
		{FlowActive, FlowCompleted, true},
		{FlowCompleted, FlowActive, false},
		{FlowFailed, FlowActive, false},
		{FlowCancelled, FlowProcessing, false},
		// failed and cancelled reachable from every non-terminal status
		{FlowInitialized, FlowFailed, true},
		{FlowProcessing, FlowCancelled, true},
		{FlowPaused, FlowFailed, true},
		{FlowCompleted, FlowCancelled, false},
	}
	for _, tt := range tests {
		f := &Flow{Status: tt.from}
		assert.Equalf(t, tt.allowed, f.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []FlowStatus{FlowCompleted, FlowFailed, FlowCancelled} {
		assert.True(t, (&Flow{Status: s}).IsTerminal())
	}
	for _, s := range []FlowStatus{FlowInitialized, FlowActive, FlowProcessing, FlowPaused} {
		assert.False(t, (&Flow{Status: s}).IsTerminal())
	}
}

func TestNewGapClampsPriority(t *testing.T) {
	child := &ChildFlow{ID: uuid.New(), ClientAccountID: uuid.New(), EngagementID: uuid.New()}

	g := NewGap(child, uuid.New(), "os_version", "What OS?", 2)
	assert.Equal(t, 2, g.Priority)

	g = NewGap(child, uuid.New(), "os_version", "What OS?", 0)
	assert.Equal(t, 4, g.Priority)

	g = NewGap(child, uuid.New(), "os_version", "What OS?", 9)
	assert.Equal(t, 4, g.Priority)
}

func TestGapResolve(t *testing.T) {
	child := &ChildFlow{ID: uuid.New()}
	g := NewGap(child, uuid.New(), "owner", "Who owns this?", 1)
	by := uuid.New()

	g.Resolve("alice", by)

	assert.Equal(t, GapResolved, g.ResolutionStatus)
	assert.Equal(t, "alice", *g.ResolvedValue)
	assert.Equal(t, by, *g.ResolvedBy)
	assert.NotNil(t, g.ResolvedAt)
}
