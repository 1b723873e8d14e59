package flowtype

import (
	"context"
	"testing"

	"flowengine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func noopHandler(ctx context.Context, childFlow *domain.ChildFlow, input datatypes.JSON) domain.PhaseResult {
	return domain.CompletedResult(nil)
}

func testPhases(names ...string) []PhaseDescriptor {
	var out []PhaseDescriptor
	for _, n := range names {
		out = append(out, PhaseDescriptor{Name: n, Handler: noopHandler})
	}
	return out
}

func TestRegisterRejectsBadSequences(t *testing.T) {
	tests := []struct {
		name     string
		flowType domain.FlowType
		phases   []PhaseDescriptor
	}{
		{"empty flow type", "", testPhases("a")},
		{"no phases", "discovery", nil},
		{"unnamed phase", "discovery", []PhaseDescriptor{{Name: "", Handler: noopHandler}}},
		{"nil handler", "discovery", []PhaseDescriptor{{Name: "a"}}},
		{"duplicate phase", "discovery", testPhases("a", "b", "a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			assert.Error(t, r.Register(tt.flowType, tt.phases))
		})
	}
}

func TestRegisterRejectsDuplicateFlowType(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(domain.FlowTypeDiscovery, testPhases("a")))
	assert.Error(t, r.Register(domain.FlowTypeDiscovery, testPhases("b")))
}

func TestSequenceLookups(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(domain.FlowTypeDiscovery, testPhases("first", "middle", "last")))

	first, err := r.FirstPhase(domain.FlowTypeDiscovery)
	require.NoError(t, err)
	assert.Equal(t, "first", first)

	terminal, err := r.TerminalPhase(domain.FlowTypeDiscovery)
	require.NoError(t, err)
	assert.Equal(t, "last", terminal)

	assert.True(t, r.Contains(domain.FlowTypeDiscovery, "middle"))
	assert.False(t, r.Contains(domain.FlowTypeDiscovery, "bogus"))

	next, err := r.NextAfter(domain.FlowTypeDiscovery, "first")
	require.NoError(t, err)
	assert.Equal(t, "middle", next)

	// Terminal phase has no successor.
	next, err = r.NextAfter(domain.FlowTypeDiscovery, "last")
	require.NoError(t, err)
	assert.Equal(t, "", next)

	_, err = r.NextAfter(domain.FlowTypeDiscovery, "bogus")
	assert.ErrorIs(t, err, domain.ErrUnknownPhase)
}

func TestUnregisteredFlowType(t *testing.T) {
	r := NewRegistry()

	_, err := r.FirstPhase("nope")
	assert.ErrorIs(t, err, domain.ErrInvalidFlowType)

	_, err = r.Handler("nope", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidFlowType)

	assert.False(t, r.IsRegistered("nope"))
}
